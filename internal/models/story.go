package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StoryStatus — жизненный цикл истории как сущности каталога.
type StoryStatus string

const (
	StoryStatusDraft       StoryStatus = "draft"
	StoryStatusUnpublished StoryStatus = "unpublished"
	StoryStatusPublished   StoryStatus = "published"
	StoryStatusArchived    StoryStatus = "archived"
)

// GenerationStatus — статус фоновой генерации сегментов истории.
// Терминальные статусы: completed и error.
type GenerationStatus string

const (
	GenerationIdle       GenerationStatus = "idle"
	GenerationProcessing GenerationStatus = "processing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationError      GenerationStatus = "error"
)

// StoryFormat задает ориентацию кадра для генерации изображений.
type StoryFormat string

const (
	FormatVertical   StoryFormat = "vertical"   // 1080x1920
	FormatHorizontal StoryFormat = "horizontal" // 1920x1080
)

// ValidFormat проверяет строку формата.
func ValidFormat(f string) bool {
	return f == string(FormatVertical) || f == string(FormatHorizontal)
}

// Story — корневая сущность: сценарий плюс состояние его генерации.
// GenerationID — маркер эпохи: каждая новая генерация сегментов
// перезаписывает его, задачи устаревших эпох не имеют права
// финализировать историю.
type Story struct {
	ID               uuid.UUID        `json:"id"`
	UserID           uuid.UUID        `json:"userId"`
	Title            string           `json:"title"`
	Script           string           `json:"script"`
	Status           StoryStatus      `json:"status"`
	GenerationStatus GenerationStatus `json:"generationStatus"`
	GenerationError  *string          `json:"generationError,omitempty"`
	Format           *StoryFormat     `json:"format,omitempty"`
	StylePrompt      *string          `json:"stylePrompt,omitempty"`
	Context          json.RawMessage  `json:"context,omitempty"`
	GenerationID     *string          `json:"-"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// StoryContext — "производственная библия" истории, которую LLM
// строит один раз на генерацию и которая подмешивается в промпты
// всех сегментов для визуальной согласованности.
type StoryContext struct {
	StoryOutline string     `json:"story_outline"`
	StyleBible   StyleBible `json:"style_bible"`
	ThemeTag     ThemeTag   `json:"theme_tag,omitempty"`
}

// ThemeTag — тег визуальной темы из закрытого набора. Вычисляется один
// раз при построении библии и хранится вместе с ней; промпты кадров
// подбирают ключевые слова по тегу, а не по свободному тексту темы.
type ThemeTag string

const (
	ThemeCinematic ThemeTag = "cinematic"
	ThemeAnime     ThemeTag = "anime"
	ThemePhoto     ThemeTag = "photo"
	ThemeGeneric   ThemeTag = "generic"
)

// StyleBible описывает визуальный стиль истории.
type StyleBible struct {
	VisualTheme       string `json:"visual_theme"`
	Mood              string `json:"mood"`
	ColorPalette      string `json:"color_palette"`
	LightingStyle     string `json:"lighting_style"`
	CharacterDesign   string `json:"character_design"`
	EnvironmentDesign string `json:"environment_design"`
}
