package worker

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyreel-server/internal/imaging"
	"storyreel-server/internal/messaging"
	"storyreel-server/internal/models"
)

// handleUploadedImage строит превью для загруженной пользователем версии.
// До завершения задачи превью служит оригинал, поэтому провал здесь
// не ломает версию и не пишет ошибок на сегменте.
func (h *Handler) handleUploadedImage(ctx context.Context, log *zap.Logger, payload messaging.GenerationTaskPayload) error {
	versionID, err := uuid.Parse(payload.VersionID)
	if err != nil {
		return fmt.Errorf("invalid version id %q: %w", payload.VersionID, err)
	}
	log = log.With(zap.String("version_id", payload.VersionID))

	version, err := h.versionRepo.GetByID(ctx, h.pool, versionID)
	if err != nil {
		return err
	}

	rc, err := h.store.Open(ctx, version.ImageRef)
	if err != nil {
		return fmt.Errorf("open uploaded image: %w", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("read uploaded image: %w", err)
	}

	img, err := imaging.Decode(data)
	if err != nil {
		return fmt.Errorf("decode uploaded image: %w", err)
	}

	segment, err := h.segmentRepo.GetByID(ctx, h.pool, version.SegmentID)
	if err != nil {
		return err
	}
	story, err := h.storyRepo.GetByID(ctx, h.pool, segment.StoryID)
	if err != nil {
		return err
	}
	vertical := story.Format == nil || *story.Format == models.FormatVertical
	previewW, previewH := imaging.PreviewBox(vertical)

	preview, err := imaging.EncodeJPEG(imaging.ScaleToFit(img, previewW, previewH))
	if err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	previewRef, err := h.store.Save(ctx, preview, "image/jpeg")
	if err != nil {
		return fmt.Errorf("save preview: %w", err)
	}

	if err := h.versionRepo.SetPreviewRef(ctx, h.pool, versionID, previewRef); err != nil {
		if delErr := h.store.Delete(ctx, previewRef); delErr != nil {
			log.Error("Failed to delete orphaned preview blob", zap.String("ref", previewRef), zap.Error(delErr))
		}
		return err
	}

	h.publishUpdate(ctx, log, messaging.ClientUpdatePayload{
		UserID:     payload.UserID,
		UpdateType: messaging.UpdateTypeSegment,
		EntityID:   version.SegmentID.String(),
		StoryID:    segment.StoryID.String(),
		Status:     "completed",
	})
	return nil
}
