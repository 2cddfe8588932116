package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Store — blob-хранилище файлов (изображения, озвучка).
// Ref — непрозрачный ключ объекта, URL — публичная ссылка на него.
type Store interface {
	// Save сохраняет данные и возвращает ref нового объекта.
	Save(ctx context.Context, data []byte, contentType string) (string, error)
	// Open открывает объект на чтение.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// URL возвращает публичную ссылку на объект.
	URL(ref string) string
	// Delete удаляет объект. Удаление несуществующего ref не ошибка.
	Delete(ctx context.Context, ref string) error
}

// extensionFor подбирает расширение файла по content type.
func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ".bin"
	}
}

// newRef генерирует уникальный ключ объекта.
func newRef(contentType string) string {
	return fmt.Sprintf("%s%s", uuid.NewString(), extensionFor(contentType))
}
