package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Compile-time check to ensure localStore implements Store
var _ Store = (*localStore)(nil)

// localStore хранит blob'ы на локальном диске; файлы раздаются
// сервером по StorageBaseURL.
type localStore struct {
	baseDir string
	baseURL string
	logger  *zap.Logger
}

// NewLocalStore creates a disk-backed Store rooted at baseDir.
func NewLocalStore(baseDir, baseURL string, logger *zap.Logger) (Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", baseDir, err)
	}
	return &localStore{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("LocalStore"),
	}, nil
}

func (s *localStore) Save(ctx context.Context, data []byte, contentType string) (string, error) {
	ref := newRef(contentType)
	path := filepath.Join(s.baseDir, ref)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.Error("Failed to write blob", zap.Error(err), zap.String("ref", ref))
		return "", fmt.Errorf("failed to write blob %s: %w", ref, err)
	}
	s.logger.Debug("Blob saved", zap.String("ref", ref), zap.Int("size", len(data)))
	return ref, nil
}

func (s *localStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	// Ref не должен выходить за пределы baseDir
	clean := filepath.Base(ref)
	f, err := os.Open(filepath.Join(s.baseDir, clean))
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", ref, err)
	}
	return f, nil
}

func (s *localStore) URL(ref string) string {
	return s.baseURL + "/" + ref
}

func (s *localStore) Delete(ctx context.Context, ref string) error {
	clean := filepath.Base(ref)
	if err := os.Remove(filepath.Join(s.baseDir, clean)); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to delete blob", zap.Error(err), zap.String("ref", ref))
		return fmt.Errorf("failed to delete blob %s: %w", ref, err)
	}
	return nil
}
