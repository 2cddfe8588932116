package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"storyreel-server/internal/models"
)

func strPtr(s string) *string { return &s }

func TestMergeStructuredText(t *testing.T) {
	voice := strPtr("nova")
	ref := strPtr("blobs/voiceover-1.mp3")

	t.Run("Unchanged text keeps the voiceover", func(t *testing.T) {
		old := []models.StructuredTextLine{
			{LineID: "l1", Type: models.LineNarration, Text: "Тихое утро.", Voice: voice, VoiceoverRef: ref},
		}
		next := []models.StructuredTextLine{
			{LineID: "l1", Type: models.LineNarration, Text: "Тихое утро."},
		}

		merged := mergeStructuredText(old, next)
		assert.Equal(t, ref, merged[0].VoiceoverRef)
		assert.Equal(t, voice, merged[0].Voice)
	})

	t.Run("Edited text drops the voiceover", func(t *testing.T) {
		old := []models.StructuredTextLine{
			{LineID: "l1", Type: models.LineNarration, Text: "Тихое утро.", Voice: voice, VoiceoverRef: ref, VoiceoverError: strPtr("old error")},
		}
		next := []models.StructuredTextLine{
			{LineID: "l1", Type: models.LineNarration, Text: "Шумное утро."},
		}

		merged := mergeStructuredText(old, next)
		assert.Nil(t, merged[0].VoiceoverRef)
		assert.Nil(t, merged[0].VoiceoverError)
		assert.False(t, merged[0].IsGeneratingVoiceover)
	})

	t.Run("New line has no voiceover", func(t *testing.T) {
		old := []models.StructuredTextLine{
			{LineID: "l1", Text: "Первая строка.", VoiceoverRef: ref},
		}
		next := []models.StructuredTextLine{
			{LineID: "l1", Text: "Первая строка."},
			{LineID: "l2", Type: models.LineDialogue, CharacterName: strPtr("Анна"), Text: "Привет!"},
		}

		merged := mergeStructuredText(old, next)
		assert.Len(t, merged, 2)
		assert.Equal(t, ref, merged[0].VoiceoverRef)
		assert.Nil(t, merged[1].VoiceoverRef)
	})

	t.Run("Removed lines disappear", func(t *testing.T) {
		old := []models.StructuredTextLine{
			{LineID: "l1", Text: "Первая."},
			{LineID: "l2", Text: "Вторая.", VoiceoverRef: ref},
		}
		next := []models.StructuredTextLine{
			{LineID: "l2", Text: "Вторая."},
		}

		merged := mergeStructuredText(old, next)
		assert.Len(t, merged, 1)
		assert.Equal(t, "l2", merged[0].LineID)
		assert.Equal(t, ref, merged[0].VoiceoverRef)
	})

	t.Run("Order follows the new list", func(t *testing.T) {
		old := []models.StructuredTextLine{
			{LineID: "l1", Text: "Первая."},
			{LineID: "l2", Text: "Вторая."},
		}
		next := []models.StructuredTextLine{
			{LineID: "l2", Text: "Вторая."},
			{LineID: "l1", Text: "Первая."},
		}

		merged := mergeStructuredText(old, next)
		assert.Equal(t, "l2", merged[0].LineID)
		assert.Equal(t, "l1", merged[1].LineID)
	})
}

func TestFindLine(t *testing.T) {
	lines := []models.StructuredTextLine{
		{LineID: "l1", Text: "Первая."},
		{LineID: "l2", Text: "Вторая."},
	}

	assert.Equal(t, 0, findLine(lines, "l1"))
	assert.Equal(t, 1, findLine(lines, "l2"))
	assert.Equal(t, -1, findLine(lines, "l3"))
	assert.Equal(t, -1, findLine(nil, "l1"))
}
