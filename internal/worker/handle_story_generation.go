package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storyreel-server/internal/imaging"
	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/messaging"
	"storyreel-server/internal/models"
	"storyreel-server/internal/render"
)

// handleStoryGeneration выполняет полную генерацию кадров истории:
// производственная библия, разбиение сценария на сцены, генерация
// изображения каждой сцены с ограниченным параллелизмом. Задача
// финализирует историю только если ее эпоха не была вытеснена.
func (h *Handler) handleStoryGeneration(ctx context.Context, log *zap.Logger, payload messaging.GenerationTaskPayload) error {
	storyID, err := uuid.Parse(payload.StoryID)
	if err != nil {
		return fmt.Errorf("invalid story id %q: %w", payload.StoryID, err)
	}
	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", payload.UserID, err)
	}
	generationID := payload.GenerationID
	log = log.With(zap.String("story_id", payload.StoryID), zap.String("generation_id", generationID))

	// Release сверяет владельца: чужую блокировку этот вызов не снимет.
	defer func() {
		if err := h.lock.Release(context.Background(), userID, generationID); err != nil {
			log.Error("Failed to release generation lock", zap.Error(err))
		}
	}()

	story, err := h.storyRepo.GetByID(ctx, h.pool, storyID)
	if err != nil {
		return fmt.Errorf("failed to load story: %w", err)
	}
	if story.GenerationID == nil || *story.GenerationID != generationID {
		log.Info("Generation epoch superseded before start, skipping")
		return nil
	}

	finalize := func(status models.GenerationStatus, details *string) {
		err := h.storyRepo.FinalizeGeneration(ctx, h.pool, storyID, generationID, status, details)
		if err != nil {
			if errors.Is(err, models.ErrStaleGeneration) {
				log.Info("Finalize skipped, generation superseded")
				return
			}
			log.Error("Failed to finalize generation", zap.Error(err))
			return
		}
		h.publishUpdate(ctx, log, messaging.ClientUpdatePayload{
			UserID:       payload.UserID,
			UpdateType:   messaging.UpdateTypeStory,
			EntityID:     payload.StoryID,
			StoryID:      payload.StoryID,
			Status:       string(status),
			ErrorDetails: details,
		})
	}

	// Пустой сценарий не порождает кадров и завершается успешно,
	// не трогая ни контекст, ни прежние сегменты.
	scenes := h.segmenter.Split(ctx, story.Script)
	if len(scenes) == 0 {
		log.Info("Script produced no scenes, nothing to generate")
		finalize(models.GenerationCompleted, nil)
		return nil
	}
	log.Info("Script segmented", zap.Int("scenes", len(scenes)))

	storyCtx, rawCtx, err := h.director.GenerateStoryContext(ctx, story.Script)
	if err != nil {
		log.Error("Failed to generate story context", zap.Error(err))
		finalize(models.GenerationError, errText(err))
		return err
	}
	if err := h.storyRepo.SetContext(ctx, h.pool, storyID, rawCtx); err != nil {
		log.Error("Failed to save story context", zap.Error(err))
		finalize(models.GenerationError, errText(err))
		return err
	}

	// Блобы прежних кадров собираются до каскадного удаления записей:
	// после коммита ссылки на них больше негде взять.
	staleRefs, err := h.collectStoryBlobRefs(ctx, storyID)
	if err != nil {
		log.Error("Failed to collect stale blob refs", zap.Error(err))
		finalize(models.GenerationError, errText(err))
		return err
	}

	// Новая генерация замещает прежние кадры целиком.
	segments := make([]*models.Segment, len(scenes))
	err = h.txHelper.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		if err := h.segmentRepo.DeleteByStoryID(ctx, tx, storyID); err != nil {
			return err
		}
		for i, scene := range scenes {
			segment := &models.Segment{
				ID:           uuid.New(),
				StoryID:      storyID,
				Order:        i,
				Text:         scene,
				IsGenerating: true,
			}
			if err := h.segmentRepo.Create(ctx, tx, segment); err != nil {
				return err
			}
			segments[i] = segment
		}
		return nil
	})
	if err != nil {
		log.Error("Failed to create segments", zap.Error(err))
		finalize(models.GenerationError, errText(err))
		return err
	}
	for _, ref := range staleRefs {
		if delErr := h.store.Delete(ctx, ref); delErr != nil {
			log.Error("Failed to delete orphaned blob", zap.String("ref", ref), zap.Error(delErr))
		}
	}

	vertical := story.Format == nil || *story.Format == models.FormatVertical
	var stylePrompt string
	if story.StylePrompt != nil && *story.StylePrompt != "" {
		stylePrompt = h.director.EnhanceStylePrompt(ctx, *story.StylePrompt)
	}

	// Ошибки отдельных кадров записаны на сегментах, группу они не рвут,
	// но итоговый статус истории учитывает каждый провал.
	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.segmentConcurrency)
	for _, segment := range segments {
		segment := segment
		g.Go(func() error {
			if err := h.generateSegmentFrame(gctx, log, userID, storyCtx, stylePrompt, segment, vertical); err != nil {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		details := fmt.Sprintf("%d of %d frames failed", n, len(segments))
		finalize(models.GenerationError, &details)
		return nil
	}
	finalize(models.GenerationCompleted, nil)
	return nil
}

// collectStoryBlobRefs собирает ссылки на блобы всех сегментов истории.
func (h *Handler) collectStoryBlobRefs(ctx context.Context, storyID uuid.UUID) ([]string, error) {
	segments, err := h.segmentRepo.ListByStoryID(ctx, h.pool, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	var refs []string
	for _, segment := range segments {
		versions, err := h.versionRepo.ListBySegmentID(ctx, h.pool, segment.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list image versions: %w", err)
		}
		refs = append(refs, models.SegmentBlobRefs(segment, versions)...)
	}
	return refs, nil
}

// generateSegmentFrame генерирует изображение одного кадра. Любая ошибка
// записывается на сегменте, снимает флаг is_generating и возвращается
// вызывающему для подсчета провалов.
func (h *Handler) generateSegmentFrame(
	ctx context.Context,
	log *zap.Logger,
	userID uuid.UUID,
	storyCtx *models.StoryContext,
	stylePrompt string,
	segment *models.Segment,
	vertical bool,
) error {
	log = log.With(zap.String("segment_id", segment.ID.String()), zap.Int("order", segment.Order))

	fail := func(err error) error {
		log.Error("Segment frame generation failed", zap.Error(err))
		if dbErr := h.segmentRepo.SetGenerationResult(ctx, h.pool, segment.ID, errText(err)); dbErr != nil {
			log.Error("Failed to record segment error", zap.Error(dbErr))
		}
		h.publishUpdate(ctx, log, messaging.ClientUpdatePayload{
			UserID:       userID.String(),
			UpdateType:   messaging.UpdateTypeSegment,
			EntityID:     segment.ID.String(),
			StoryID:      segment.StoryID.String(),
			Status:       "error",
			ErrorDetails: errText(err),
		})
		return err
	}

	// Кредит списывается на кадр; провал генерации его не возвращает.
	if err := h.creditsRepo.Consume(ctx, h.pool, userID, models.CostImageGeneration); err != nil {
		return fail(err)
	}

	prompt, err := h.director.SynthesizeImagePrompt(ctx, storyCtx, segment.Text)
	if err != nil {
		return fail(err)
	}
	if stylePrompt != "" {
		prompt = prompt + ", " + stylePrompt
	}

	version, err := h.renderFrame(ctx, log, userID, segment.ID, prompt, nil, vertical, models.SourceAIGenerated)
	if err != nil {
		return fail(err)
	}

	err = h.txHelper.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		if err := h.segmentRepo.SetSelectedVersion(ctx, tx, segment.ID, version.ID); err != nil {
			return err
		}
		return h.segmentRepo.SetGenerationResult(ctx, tx, segment.ID, nil)
	})
	if err != nil {
		return fail(err)
	}

	h.publishUpdate(ctx, log, messaging.ClientUpdatePayload{
		UserID:     userID.String(),
		UpdateType: messaging.UpdateTypeSegment,
		EntityID:   segment.ID.String(),
		StoryID:    segment.StoryID.String(),
		Status:     "completed",
	})
	return nil
}

// renderFrame вызывает провайдер рендеринга, доводит результат до размеров
// кадра, строит превью и сохраняет версию. baseImage включает режим правки.
func (h *Handler) renderFrame(
	ctx context.Context,
	log *zap.Logger,
	userID, segmentID uuid.UUID,
	prompt string,
	baseImage []byte,
	vertical bool,
	source models.ImageSource,
) (*models.ImageVersion, error) {
	frameW, frameH := imaging.FrameSize(vertical)

	var result *renderResult
	var err error
	if baseImage != nil {
		result, err = h.callImageToImage(ctx, prompt, baseImage, frameW, frameH)
	} else {
		result, err = h.callTextToImage(ctx, prompt, frameW, frameH)
	}
	if err != nil {
		renderErrors.Inc()
		return nil, err
	}
	if result.NSFW {
		return nil, models.ErrContentFlagged
	}

	img, err := imaging.Decode(result.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: decode rendered image: %v", models.ErrImageGenerationFailed, err)
	}

	// Маленький результат сначала апскейлится, потом кадрируется.
	bounds := img.Bounds()
	if bounds.Dx() < frameW || bounds.Dy() < frameH {
		upscaled, upErr := h.renderer.Upscale(ctx, result.Image, 2)
		if upErr != nil {
			log.Warn("Upscale failed, continuing with original resolution", zap.Error(upErr))
		} else if upImg, decErr := imaging.Decode(upscaled.Image); decErr == nil {
			img = upImg
		}
	}

	full, err := imaging.EncodeJPEG(imaging.CoverCrop(img, frameW, frameH))
	if err != nil {
		return nil, fmt.Errorf("%w: encode frame: %v", models.ErrImageSaveFailed, err)
	}
	previewW, previewH := imaging.PreviewBox(vertical)
	preview, err := imaging.EncodeJPEG(imaging.ScaleToFit(imaging.CoverCrop(img, frameW, frameH), previewW, previewH))
	if err != nil {
		return nil, fmt.Errorf("%w: encode preview: %v", models.ErrImageSaveFailed, err)
	}

	imageRef, err := h.store.Save(ctx, full, "image/jpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrImageSaveFailed, err)
	}
	previewRef, err := h.store.Save(ctx, preview, "image/jpeg")
	if err != nil {
		if delErr := h.store.Delete(ctx, imageRef); delErr != nil {
			log.Error("Failed to delete orphaned frame blob", zap.String("ref", imageRef), zap.Error(delErr))
		}
		return nil, fmt.Errorf("%w: %v", models.ErrImageSaveFailed, err)
	}

	version := &models.ImageVersion{
		SegmentID:  segmentID,
		UserID:     userID,
		Prompt:     &prompt,
		ImageRef:   imageRef,
		PreviewRef: previewRef,
		Source:     source,
	}
	if err := h.versionRepo.Create(ctx, h.pool, version); err != nil {
		if delErr := h.store.Delete(ctx, imageRef); delErr != nil {
			log.Error("Failed to delete orphaned frame blob", zap.String("ref", imageRef), zap.Error(delErr))
		}
		if delErr := h.store.Delete(ctx, previewRef); delErr != nil {
			log.Error("Failed to delete orphaned preview blob", zap.String("ref", previewRef), zap.Error(delErr))
		}
		return nil, fmt.Errorf("%w: %v", models.ErrImageSaveFailed, err)
	}
	return version, nil
}

// renderResult — срез полей результата рендеринга, нужных пайплайну.
type renderResult struct {
	Image []byte
	NSFW  bool
}

func (h *Handler) callTextToImage(ctx context.Context, prompt string, width, height int) (*renderResult, error) {
	res, err := h.renderer.TextToImage(ctx, render.TextToImageRequest{Prompt: prompt, Width: width, Height: height})
	if err != nil {
		return nil, err
	}
	return &renderResult{Image: res.Image, NSFW: res.NSFW}, nil
}

func (h *Handler) callImageToImage(ctx context.Context, prompt string, base []byte, width, height int) (*renderResult, error) {
	res, err := h.renderer.ImageToImage(ctx, render.ImageToImageRequest{Prompt: prompt, Image: base, Width: width, Height: height})
	if err != nil {
		return nil, err
	}
	return &renderResult{Image: res.Image, NSFW: res.NSFW}, nil
}
