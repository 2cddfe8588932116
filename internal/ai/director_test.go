package ai_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"storyreel-server/internal/ai"
	aiMocks "storyreel-server/internal/ai/mocks"
	"storyreel-server/internal/models"
)

func TestDetectThemeTag(t *testing.T) {
	tests := []struct {
		name  string
		theme string
		want  models.ThemeTag
	}{
		{"Cinematic theme", "gritty cinematic noir", models.ThemeCinematic},
		{"Anime theme", "soft anime watercolor", models.ThemeAnime},
		{"Animation counts as anime", "3d animation style", models.ThemeAnime},
		{"Photo theme", "photorealistic documentary", models.ThemePhoto},
		{"Case insensitive", "CINEMATIC epic", models.ThemeCinematic},
		{"Unknown theme falls back to generic", "oil painting collage", models.ThemeGeneric},
		{"Empty theme falls back to generic", "", models.ThemeGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ai.DetectThemeTag(tt.theme))
		})
	}
}

func TestGenerateStoryContextStampsThemeTag(t *testing.T) {
	client := new(aiMocks.Client)
	director := ai.NewDirector(client, zap.NewNop())

	client.On("CompleteJSON", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"story_outline":"Путь героя","style_bible":{"visual_theme":"cinematic noir"}}`,
			ai.UsageInfo{}, nil).Once()

	storyCtx, raw, err := director.GenerateStoryContext(context.Background(), "Сценарий.")
	assert.NoError(t, err)
	assert.Equal(t, models.ThemeCinematic, storyCtx.ThemeTag)

	// Тег уезжает в БД вместе с библией.
	var persisted models.StoryContext
	assert.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Equal(t, models.ThemeCinematic, persisted.ThemeTag)
}
