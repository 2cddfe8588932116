package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/messaging"
	"storyreel-server/internal/models"
)

// handleGuidedStory пишет сценарий по описанию пользователя и сохраняет
// его как script истории.
func (h *Handler) handleGuidedStory(ctx context.Context, log *zap.Logger, payload messaging.GenerationTaskPayload) error {
	storyID, err := uuid.Parse(payload.StoryID)
	if err != nil {
		return fmt.Errorf("invalid story id %q: %w", payload.StoryID, err)
	}
	log = log.With(zap.String("story_id", payload.StoryID))

	fail := func(err error) error {
		if dbErr := h.storyRepo.SetGenerationStatus(ctx, h.pool, storyID, models.GenerationError, errText(err)); dbErr != nil {
			log.Error("Failed to record guided story error", zap.Error(dbErr))
		}
		h.publishUpdate(ctx, log, messaging.ClientUpdatePayload{
			UserID:       payload.UserID,
			UpdateType:   messaging.UpdateTypeStory,
			EntityID:     payload.StoryID,
			StoryID:      payload.StoryID,
			Status:       string(models.GenerationError),
			ErrorDetails: errText(err),
		})
		return err
	}

	script, err := h.director.DraftGuidedScript(ctx, payload.Description)
	if err != nil {
		log.Error("Guided script drafting failed", zap.Error(err))
		return fail(err)
	}

	err = h.txHelper.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		if err := h.storyRepo.UpdateScript(ctx, tx, storyID, script); err != nil {
			return err
		}
		return h.storyRepo.SetGenerationStatus(ctx, tx, storyID, models.GenerationCompleted, nil)
	})
	if err != nil {
		log.Error("Failed to save guided script", zap.Error(err))
		return fail(err)
	}

	h.publishUpdate(ctx, log, messaging.ClientUpdatePayload{
		UserID:     payload.UserID,
		UpdateType: messaging.UpdateTypeStory,
		EntityID:   payload.StoryID,
		StoryID:    payload.StoryID,
		Status:     string(models.GenerationCompleted),
	})
	return nil
}
