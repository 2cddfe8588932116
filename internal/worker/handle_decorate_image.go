package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyreel-server/internal/imaging"
	"storyreel-server/internal/messaging"
	"storyreel-server/internal/models"
)

const defaultDecorPrompt = "tastefully decorated, festive atmosphere, high quality photo"

// decorSettings — интересующие воркер поля настроек декорирования.
type decorSettings struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style"`
}

// handleDecorateImage декорирует пользовательское изображение. Запись
// находится в generating; провал возвращает ее в состояние, из которого
// декорирование можно запустить снова.
func (h *Handler) handleDecorateImage(ctx context.Context, log *zap.Logger, payload messaging.GenerationTaskPayload) error {
	decorID, err := uuid.Parse(payload.DecorImageID)
	if err != nil {
		return fmt.Errorf("invalid decor image id %q: %w", payload.DecorImageID, err)
	}
	log = log.With(zap.String("decor_image_id", payload.DecorImageID))

	img, err := h.decorRepo.GetByID(ctx, h.pool, decorID)
	if err != nil {
		return err
	}
	if img.State != models.DecorGenerating {
		log.Info("Decor image is not in generating state, skipping", zap.String("state", string(img.State)))
		return nil
	}

	// Откатное состояние: без готового декора запись возвращается
	// в uploaded, иначе в generated.
	rollbackState := models.DecorUploaded
	if img.DecoratedRef != nil {
		rollbackState = models.DecorGenerated
	}

	fail := func(err error) error {
		log.Error("Decoration failed", zap.Error(err))
		if dbErr := h.decorRepo.SetError(ctx, h.pool, decorID, rollbackState, err.Error()); dbErr != nil {
			log.Error("Failed to record decoration error", zap.Error(dbErr))
		}
		h.publishUpdate(ctx, log, messaging.ClientUpdatePayload{
			UserID:       payload.UserID,
			UpdateType:   messaging.UpdateTypeDecor,
			EntityID:     payload.DecorImageID,
			Status:       string(rollbackState),
			ErrorDetails: errText(err),
		})
		return err
	}

	baseRef := img.OriginalRef
	var staleDecorRef string
	if payload.BaseImage == string(models.DecorBaseDecorated) {
		if img.DecoratedRef == nil {
			return fail(models.ErrInvalidImageState)
		}
		baseRef = *img.DecoratedRef
		// Прежний декор живет, пока не сохранен новый результат.
		staleDecorRef = *img.DecoratedRef
	}

	rc, err := h.store.Open(ctx, baseRef)
	if err != nil {
		return fail(fmt.Errorf("%w: open base image: %v", models.ErrImageGenerationFailed, err))
	}
	baseData, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fail(fmt.Errorf("%w: read base image: %v", models.ErrImageGenerationFailed, err))
	}

	prompt := defaultDecorPrompt
	if len(img.Settings) > 0 {
		var settings decorSettings
		if err := json.Unmarshal(img.Settings, &settings); err == nil {
			if settings.Prompt != "" {
				prompt = settings.Prompt
			}
			if settings.Style != "" {
				prompt = prompt + ", " + settings.Style
			}
		}
	}

	result, err := h.callImageToImage(ctx, prompt, baseData, 0, 0)
	if err != nil {
		renderErrors.Inc()
		return fail(err)
	}
	if result.NSFW {
		return fail(models.ErrContentFlagged)
	}

	decoded, err := imaging.Decode(result.Image)
	if err != nil {
		return fail(fmt.Errorf("%w: decode decorated image: %v", models.ErrImageGenerationFailed, err))
	}
	webpData, err := imaging.EncodeWEBP(
		imaging.ScaleToFit(decoded, imaging.DecorMaxDimension, imaging.DecorMaxDimension),
		imaging.DecorWebpQuality,
	)
	if err != nil {
		return fail(fmt.Errorf("%w: encode decorated image: %v", models.ErrImageSaveFailed, err))
	}

	newRef, err := h.store.Save(ctx, webpData, "image/webp")
	if err != nil {
		return fail(fmt.Errorf("%w: %v", models.ErrImageSaveFailed, err))
	}

	if err := h.decorRepo.SetGenerated(ctx, h.pool, decorID, newRef, h.store.URL(newRef)); err != nil {
		// Запись не обновилась, новый blob осиротел.
		if delErr := h.store.Delete(ctx, newRef); delErr != nil {
			log.Error("Failed to delete orphaned decorated blob", zap.String("ref", newRef), zap.Error(delErr))
		}
		return fail(err)
	}

	if staleDecorRef != "" && staleDecorRef != newRef {
		if err := h.store.Delete(ctx, staleDecorRef); err != nil {
			log.Error("Failed to delete replaced decorated blob", zap.String("ref", staleDecorRef), zap.Error(err))
		}
	}

	h.publishUpdate(ctx, log, messaging.ClientUpdatePayload{
		UserID:     payload.UserID,
		UpdateType: messaging.UpdateTypeDecor,
		EntityID:   payload.DecorImageID,
		Status:     string(models.DecorGenerated),
	})
	return nil
}
