package segmenter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type mockSplitter struct {
	mock.Mock
}

func (m *mockSplitter) SplitScenes(ctx context.Context, script string) ([]string, error) {
	args := m.Called(ctx, script)
	scenes, _ := args.Get(0).([]string)
	return scenes, args.Error(1)
}

func TestSplit(t *testing.T) {
	ctx := context.Background()

	t.Run("Empty script yields no segments", func(t *testing.T) {
		splitter := new(mockSplitter)
		s := New(splitter, zap.NewNop())

		assert.Empty(t, s.Split(ctx, ""))
		assert.Empty(t, s.Split(ctx, "   \n\t  "))
		splitter.AssertNotCalled(t, "SplitScenes")
	})

	t.Run("Paragraph breaks take priority over LLM", func(t *testing.T) {
		splitter := new(mockSplitter)
		s := New(splitter, zap.NewNop())

		script := "Первая сцена у моря.\n\nВторая сцена в лесу.\n\n\nТретья сцена дома."
		segments := s.Split(ctx, script)

		assert.Equal(t, []string{
			"Первая сцена у моря.",
			"Вторая сцена в лесу.",
			"Третья сцена дома.",
		}, segments)
		splitter.AssertNotCalled(t, "SplitScenes")
	})

	t.Run("Single paragraph goes through LLM", func(t *testing.T) {
		splitter := new(mockSplitter)
		s := New(splitter, zap.NewNop())

		script := "Герой просыпается. Идет на кухню. Видит записку."
		splitter.On("SplitScenes", ctx, script).
			Return([]string{"Герой просыпается.", "Идет на кухню.", "Видит записку."}, nil).Once()

		segments := s.Split(ctx, script)
		assert.Len(t, segments, 3)
		splitter.AssertExpectations(t)
	})

	t.Run("LLM failure degrades to one segment", func(t *testing.T) {
		splitter := new(mockSplitter)
		s := New(splitter, zap.NewNop())

		script := "Одна сплошная сцена без пустых строк."
		splitter.On("SplitScenes", ctx, script).Return(nil, errors.New("model timeout")).Once()

		segments := s.Split(ctx, script)
		assert.Equal(t, []string{script}, segments)
	})

	t.Run("LLM returning nothing degrades to one segment", func(t *testing.T) {
		splitter := new(mockSplitter)
		s := New(splitter, zap.NewNop())

		script := "Сцена."
		splitter.On("SplitScenes", ctx, script).Return([]string{}, nil).Once()

		segments := s.Split(ctx, script)
		assert.Equal(t, []string{script}, segments)
	})

	t.Run("Surrounding whitespace is trimmed", func(t *testing.T) {
		splitter := new(mockSplitter)
		s := New(splitter, zap.NewNop())

		segments := s.Split(ctx, "  Первая.\n\n  Вторая.  \n")
		assert.Equal(t, []string{"Первая.", "Вторая."}, segments)
	})
}
