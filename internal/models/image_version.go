package models

import (
	"time"

	"github.com/google/uuid"
)

// ImageSource — происхождение версии изображения.
type ImageSource string

const (
	SourceAIGenerated  ImageSource = "ai_generated"
	SourceAIEdited     ImageSource = "ai_edited"
	SourceUserUploaded ImageSource = "user_uploaded"
)

// ImageVersion — неизменяемая версия изображения сегмента.
// Версии только добавляются; меняется лишь выбор активной версии
// на сегменте. ImageRef и PreviewRef — ссылки в blob-хранилище.
type ImageVersion struct {
	ID         uuid.UUID   `json:"id"`
	SegmentID  uuid.UUID   `json:"segmentId"`
	UserID     uuid.UUID   `json:"userId"`
	Prompt     *string     `json:"prompt,omitempty"`
	ImageRef   string      `json:"imageRef"`
	PreviewRef string      `json:"previewRef"`
	Source     ImageSource `json:"source"`
	CreatedAt  time.Time   `json:"createdAt"`
}
