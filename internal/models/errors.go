package models

import "errors"

// Общие ошибки доменного слоя. Хендлеры мапят их на HTTP-статусы,
// воркер по ним решает, является ли ошибка терминальной для задачи.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("access denied")

	ErrStoryNotFound      = errors.New("story not found")
	ErrSegmentNotFound    = errors.New("segment not found")
	ErrVersionNotFound    = errors.New("image version not found")
	ErrTransitionNotFound = errors.New("transition not found")
	ErrDecorImageNotFound = errors.New("decor image not found")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrVersionMismatch возвращается, когда версия изображения
	// не принадлежит указанному сегменту.
	ErrVersionMismatch = errors.New("image version does not belong to segment")

	// ErrNoCreditRecord и ErrInsufficientCredits различают отсутствие
	// записи баланса и нехватку кредитов: клиент показывает разные экраны.
	ErrNoCreditRecord      = errors.New("no credit record for user")
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrUserHasActiveGeneration возвращается при попытке запустить
	// вторую генерацию сегментов, пока первая еще не финализирована.
	ErrUserHasActiveGeneration = errors.New("user already has an active generation")

	// ErrStaleGeneration означает, что текущая задача принадлежит
	// устаревшей эпохе генерации и ее результаты должны быть отброшены.
	ErrStaleGeneration = errors.New("generation superseded by a newer run")

	// ErrInvalidImageState возвращается декором при переходе,
	// недопустимом из текущего состояния записи.
	ErrInvalidImageState = errors.New("invalid decor image state for operation")

	ErrInvalidVoice       = errors.New("unsupported voiceover voice")
	ErrLineNotFound       = errors.New("structured text line not found")
	ErrEmptyScript        = errors.New("story script is empty")
	ErrInvalidTransition  = errors.New("unsupported transition type")
	ErrInvalidFormat      = errors.New("unsupported story format")
	ErrContentFlagged     = errors.New("content flagged by safety checker")

	ErrImageGenerationFailed = errors.New("image generation failed")
	ErrImageSaveFailed       = errors.New("image save failed")
	ErrVoiceoverFailed       = errors.New("voiceover generation failed")
)
