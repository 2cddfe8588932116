package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/messaging"
	"storyreel-server/internal/models"
)

// handleSegmentImage генерирует новое изображение одного сегмента.
// Без VersionID это генерация с нуля, с VersionID — правка указанной
// версии по инструкции пользователя. Кредиты уже списаны при постановке.
func (h *Handler) handleSegmentImage(ctx context.Context, log *zap.Logger, payload messaging.GenerationTaskPayload) error {
	segmentID, err := uuid.Parse(payload.SegmentID)
	if err != nil {
		return fmt.Errorf("invalid segment id %q: %w", payload.SegmentID, err)
	}
	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", payload.UserID, err)
	}
	log = log.With(zap.String("segment_id", payload.SegmentID))

	fail := func(err error) error {
		log.Error("Segment image task failed", zap.Error(err))
		if dbErr := h.segmentRepo.SetGenerationResult(ctx, h.pool, segmentID, errText(err)); dbErr != nil {
			log.Error("Failed to record segment error", zap.Error(dbErr))
		}
		h.publishUpdate(ctx, log, messaging.ClientUpdatePayload{
			UserID:       payload.UserID,
			UpdateType:   messaging.UpdateTypeSegment,
			EntityID:     payload.SegmentID,
			StoryID:      payload.StoryID,
			Status:       "error",
			ErrorDetails: errText(err),
		})
		return err
	}

	segment, err := h.segmentRepo.GetByID(ctx, h.pool, segmentID)
	if err != nil {
		return fail(err)
	}
	story, err := h.storyRepo.GetByID(ctx, h.pool, segment.StoryID)
	if err != nil {
		return fail(err)
	}
	vertical := story.Format == nil || *story.Format == models.FormatVertical

	var prompt string
	var baseImage []byte
	source := models.SourceAIGenerated

	if payload.VersionID != "" {
		versionID, err := uuid.Parse(payload.VersionID)
		if err != nil {
			return fail(fmt.Errorf("invalid version id %q: %w", payload.VersionID, err))
		}
		version, err := h.versionRepo.GetByID(ctx, h.pool, versionID)
		if err != nil {
			return fail(err)
		}
		rc, err := h.store.Open(ctx, version.ImageRef)
		if err != nil {
			return fail(fmt.Errorf("%w: open base image: %v", models.ErrImageGenerationFailed, err))
		}
		baseImage, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fail(fmt.Errorf("%w: read base image: %v", models.ErrImageGenerationFailed, err))
		}

		var original string
		if version.Prompt != nil {
			original = *version.Prompt
		}
		prompt = h.director.MergeEditPrompt(ctx, original, payload.EditPrompt)
		source = models.SourceAIEdited
	} else {
		var storyCtx models.StoryContext
		if len(story.Context) > 0 {
			if err := json.Unmarshal(story.Context, &storyCtx); err != nil {
				log.Warn("Failed to decode story context, generating without style bible", zap.Error(err))
			}
		}
		prompt, err = h.director.SynthesizeImagePrompt(ctx, &storyCtx, segment.Text)
		if err != nil {
			return fail(err)
		}
		if story.StylePrompt != nil && *story.StylePrompt != "" {
			prompt = prompt + ", " + h.director.EnhanceStylePrompt(ctx, *story.StylePrompt)
		}
	}

	version, err := h.renderFrame(ctx, log, userID, segmentID, prompt, baseImage, vertical, source)
	if err != nil {
		return fail(err)
	}

	err = h.txHelper.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		if err := h.segmentRepo.SetSelectedVersion(ctx, tx, segmentID, version.ID); err != nil {
			return err
		}
		return h.segmentRepo.SetGenerationResult(ctx, tx, segmentID, nil)
	})
	if err != nil {
		return fail(err)
	}

	h.publishUpdate(ctx, log, messaging.ClientUpdatePayload{
		UserID:     payload.UserID,
		UpdateType: messaging.UpdateTypeSegment,
		EntityID:   payload.SegmentID,
		StoryID:    segment.StoryID.String(),
		Status:     "completed",
	})
	return nil
}
