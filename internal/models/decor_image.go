package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DecorState — состояние записи декорируемого изображения.
// Допустимые переходы:
//
//	uploading -> uploaded -> generating -> generated
//	generated -> generating (регенерация)
type DecorState string

const (
	DecorUploading  DecorState = "uploading"
	DecorUploaded   DecorState = "uploaded"
	DecorGenerating DecorState = "generating"
	DecorGenerated  DecorState = "generated"
)

// DecorBaseImage — база для регенерации: исходник или текущий декор.
type DecorBaseImage string

const (
	DecorBaseOriginal  DecorBaseImage = "original"
	DecorBaseDecorated DecorBaseImage = "decorated"
)

// DecorImage — пользовательское изображение, которое проходит через
// пайплайн декорирования. DecoratedRef заполняется только в generated.
type DecorImage struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"userId"`
	State        DecorState      `json:"state"`
	OriginalRef  string          `json:"originalRef"`
	OriginalURL  string          `json:"originalUrl"`
	DecoratedRef *string         `json:"decoratedRef,omitempty"`
	DecoratedURL *string         `json:"decoratedUrl,omitempty"`
	Settings     json.RawMessage `json:"settings,omitempty"`
	Error        *string         `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}
