package interfaces

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"storyreel-server/internal/models"
)

// StoryRepository — доступ к историям.
type StoryRepository interface {
	Create(ctx context.Context, q DBTX, story *models.Story) error
	GetByID(ctx context.Context, q DBTX, id uuid.UUID) (*models.Story, error)
	ListByUserID(ctx context.Context, q DBTX, userID uuid.UUID, status *models.StoryStatus) ([]*models.Story, error)
	UpdateFields(ctx context.Context, q DBTX, id uuid.UUID, title, script, stylePrompt *string, format *models.StoryFormat) error
	UpdateStatus(ctx context.Context, q DBTX, id uuid.UUID, status models.StoryStatus) error
	Delete(ctx context.Context, q DBTX, id uuid.UUID) error

	// StartGeneration переводит историю в processing и стампует новую эпоху.
	StartGeneration(ctx context.Context, q DBTX, id uuid.UUID, generationID string) error
	// SetContext сохраняет производственную библию текущей генерации.
	SetContext(ctx context.Context, q DBTX, id uuid.UUID, contextJSON json.RawMessage) error
	// FinalizeGeneration пишет терминальный статус только если эпоха
	// не устарела. Возвращает models.ErrStaleGeneration иначе.
	FinalizeGeneration(ctx context.Context, q DBTX, id uuid.UUID, generationID string, status models.GenerationStatus, errDetails *string) error
	// SetGenerationStatus пишет статус без проверки эпохи (guided story).
	SetGenerationStatus(ctx context.Context, q DBTX, id uuid.UUID, status models.GenerationStatus, errDetails *string) error
	UpdateScript(ctx context.Context, q DBTX, id uuid.UUID, script string) error
}

// SegmentRepository — доступ к сегментам и их структурированному тексту.
type SegmentRepository interface {
	Create(ctx context.Context, q DBTX, segment *models.Segment) error
	GetByID(ctx context.Context, q DBTX, id uuid.UUID) (*models.Segment, error)
	ListByStoryID(ctx context.Context, q DBTX, storyID uuid.UUID) ([]*models.Segment, error)
	UpdateText(ctx context.Context, q DBTX, id uuid.UUID, text string) error
	SetGenerating(ctx context.Context, q DBTX, id uuid.UUID, generating bool) error
	// SetGenerationResult сбрасывает is_generating и пишет error (nil очищает).
	SetGenerationResult(ctx context.Context, q DBTX, id uuid.UUID, errDetails *string) error
	SetSelectedVersion(ctx context.Context, q DBTX, id uuid.UUID, versionID uuid.UUID) error
	SetStructuredText(ctx context.Context, q DBTX, id uuid.UUID, lines []models.StructuredTextLine) error
	Delete(ctx context.Context, q DBTX, id uuid.UUID) error
	// MaxOrder возвращает максимальный order в истории, -1 если сегментов нет.
	MaxOrder(ctx context.Context, q DBTX, storyID uuid.UUID) (int, error)
	// ShiftOrdersAfter уменьшает на единицу order всех сегментов истории
	// с order больше указанного. Используется после удаления.
	ShiftOrdersAfter(ctx context.Context, q DBTX, storyID uuid.UUID, order int) error
	// Reorder присваивает сегментам плотные order согласно порядку ids.
	Reorder(ctx context.Context, q DBTX, storyID uuid.UUID, ids []uuid.UUID) error
	DeleteByStoryID(ctx context.Context, q DBTX, storyID uuid.UUID) error
}

// ImageVersionRepository — доступ к версиям изображений.
type ImageVersionRepository interface {
	Create(ctx context.Context, q DBTX, version *models.ImageVersion) error
	GetByID(ctx context.Context, q DBTX, id uuid.UUID) (*models.ImageVersion, error)
	ListBySegmentID(ctx context.Context, q DBTX, segmentID uuid.UUID) ([]*models.ImageVersion, error)
	// SetPreviewRef подменяет превью версии после фоновой обработки.
	SetPreviewRef(ctx context.Context, q DBTX, id uuid.UUID, previewRef string) error
	DeleteBySegmentID(ctx context.Context, q DBTX, segmentID uuid.UUID) error
}

// TransitionRepository — переходы между сегментами.
type TransitionRepository interface {
	Upsert(ctx context.Context, q DBTX, transition *models.Transition) error
	DeleteByAfterSegmentID(ctx context.Context, q DBTX, afterSegmentID uuid.UUID) error
	ListByStoryID(ctx context.Context, q DBTX, storyID uuid.UUID) ([]*models.Transition, error)
}

// CreditsRepository — балансы кредитов.
type CreditsRepository interface {
	Get(ctx context.Context, q DBTX, userID uuid.UUID) (*models.Credits, error)
	// Consume атомарно списывает amount. Возвращает ErrNoCreditRecord,
	// если записи нет, и ErrInsufficientCredits при нехватке баланса.
	Consume(ctx context.Context, q DBTX, userID uuid.UUID, amount int) error
	// Add пополняет баланс, создавая запись при необходимости.
	Add(ctx context.Context, q DBTX, userID uuid.UUID, amount int) error
}

// DecorImageRepository — записи пайплайна декорирования.
type DecorImageRepository interface {
	Create(ctx context.Context, q DBTX, img *models.DecorImage) error
	GetByID(ctx context.Context, q DBTX, id uuid.UUID) (*models.DecorImage, error)
	ListByUserID(ctx context.Context, q DBTX, userID uuid.UUID, limit int) ([]*models.DecorImage, error)
	// TransitionState меняет state только из expected-состояния.
	// Возвращает ErrInvalidImageState при гонке.
	TransitionState(ctx context.Context, q DBTX, id uuid.UUID, expected, next models.DecorState) error
	SetGenerated(ctx context.Context, q DBTX, id uuid.UUID, decoratedRef, decoratedURL string) error
	SetError(ctx context.Context, q DBTX, id uuid.UUID, state models.DecorState, errDetails string) error
	ClearDecorated(ctx context.Context, q DBTX, id uuid.UUID) error
	Delete(ctx context.Context, q DBTX, id uuid.UUID) error
}

// InboxRepository — агенты, диалоги и сообщения входящих.
type InboxRepository interface {
	CreateAgent(ctx context.Context, q DBTX, agent *models.Agent) error
	GetAgent(ctx context.Context, q DBTX, id uuid.UUID) (*models.Agent, error)
	ListAgents(ctx context.Context, q DBTX, userID uuid.UUID) ([]*models.Agent, error)
	DeleteAgent(ctx context.Context, q DBTX, id uuid.UUID) error

	CreateConversation(ctx context.Context, q DBTX, conv *models.Conversation) error
	GetConversation(ctx context.Context, q DBTX, id uuid.UUID) (*models.Conversation, error)
	ListConversations(ctx context.Context, q DBTX, userID uuid.UUID) ([]*models.Conversation, error)
	DeleteConversation(ctx context.Context, q DBTX, id uuid.UUID) error

	CreateMessage(ctx context.Context, q DBTX, msg *models.ConversationMessage) error
	ListMessages(ctx context.Context, q DBTX, conversationID uuid.UUID) ([]*models.ConversationMessage, error)
}

// GenerationLock — пер-пользовательская блокировка активной генерации.
type GenerationLock interface {
	// Acquire возвращает models.ErrUserHasActiveGeneration, если
	// блокировка уже удерживается другой генерацией.
	Acquire(ctx context.Context, userID uuid.UUID, generationID string) error
	// Release снимает блокировку, только если она принадлежит generationID.
	Release(ctx context.Context, userID uuid.UUID, generationID string) error
}
