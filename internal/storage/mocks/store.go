package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// Mock Store
type Store struct {
	mock.Mock
}

func (m *Store) Save(ctx context.Context, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, data, contentType)
	return args.String(0), args.Error(1)
}
func (m *Store) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	args := m.Called(ctx, ref)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}
func (m *Store) URL(ref string) string {
	args := m.Called(ref)
	return args.String(0)
}
func (m *Store) Delete(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}
