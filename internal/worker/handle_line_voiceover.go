package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/messaging"
	"storyreel-server/internal/models"
)

// errLineGone сигнализирует, что строка исчезла или ее текст был
// отредактирован, пока шла озвучка. Результат в этом случае не пишется.
var errLineGone = errors.New("voiceover line is gone or edited")

// handleLineVoiceover озвучивает одну строку структурированного текста.
// Запись результата точечная: сегмент перечитывается в транзакции и
// меняется только целевая строка, чтобы не затирать параллельные правки
// соседних строк. Терминальное состояние всегда снимает флаг
// is_generating_voiceover.
func (h *Handler) handleLineVoiceover(ctx context.Context, log *zap.Logger, payload messaging.GenerationTaskPayload) error {
	segmentID, err := uuid.Parse(payload.SegmentID)
	if err != nil {
		return fmt.Errorf("invalid segment id %q: %w", payload.SegmentID, err)
	}
	log = log.With(zap.String("segment_id", payload.SegmentID), zap.String("line_id", payload.LineID))

	segment, err := h.segmentRepo.GetByID(ctx, h.pool, segmentID)
	if err != nil {
		return err
	}

	var text string
	found := false
	for i := range segment.StructuredText {
		if segment.StructuredText[i].LineID == payload.LineID {
			text = segment.StructuredText[i].Text
			found = true
			break
		}
	}
	if !found {
		log.Warn("Voiceover line no longer exists, skipping")
		return nil
	}

	fail := func(err error) error {
		log.Error("Voiceover failed", zap.Error(err))
		patchErr := h.patchVoiceoverLine(ctx, segmentID, payload.LineID, text, func(line *models.StructuredTextLine) {
			line.IsGeneratingVoiceover = false
			msg := err.Error()
			line.VoiceoverError = &msg
		})
		if patchErr != nil && !errors.Is(patchErr, errLineGone) {
			log.Error("Failed to record voiceover error", zap.Error(patchErr))
		}
		h.publishUpdate(ctx, log, messaging.ClientUpdatePayload{
			UserID:       payload.UserID,
			UpdateType:   messaging.UpdateTypeLine,
			EntityID:     payload.LineID,
			StoryID:      segment.StoryID.String(),
			Status:       "error",
			ErrorDetails: errText(err),
		})
		return err
	}

	if text == "" {
		return fail(fmt.Errorf("%w: line has no text", models.ErrVoiceoverFailed))
	}

	audio, err := h.director.Speech(ctx, payload.Voice, text)
	if err != nil {
		return fail(err)
	}

	ref, err := h.store.Save(ctx, audio, "audio/mpeg")
	if err != nil {
		return fail(fmt.Errorf("%w: save audio: %v", models.ErrVoiceoverFailed, err))
	}

	var oldRef *string
	err = h.patchVoiceoverLine(ctx, segmentID, payload.LineID, text, func(line *models.StructuredTextLine) {
		oldRef = line.VoiceoverRef
		voice := payload.Voice
		line.Voice = &voice
		line.VoiceoverRef = &ref
		line.IsGeneratingVoiceover = false
		line.VoiceoverError = nil
	})
	if errors.Is(err, errLineGone) {
		// Строку успели отредактировать: свежая озвучка ей не принадлежит.
		log.Warn("Voiceover line changed during synthesis, dropping result")
		if delErr := h.store.Delete(ctx, ref); delErr != nil {
			log.Error("Failed to delete orphaned voiceover blob", zap.String("ref", ref), zap.Error(delErr))
		}
		return nil
	}
	if err != nil {
		if delErr := h.store.Delete(ctx, ref); delErr != nil {
			log.Error("Failed to delete orphaned voiceover blob", zap.String("ref", ref), zap.Error(delErr))
		}
		return fail(err)
	}
	// Прежняя озвучка строки заменена.
	if oldRef != nil && *oldRef != ref {
		if err := h.store.Delete(ctx, *oldRef); err != nil {
			log.Error("Failed to delete replaced voiceover blob", zap.String("ref", *oldRef), zap.Error(err))
		}
	}

	h.publishUpdate(ctx, log, messaging.ClientUpdatePayload{
		UserID:     payload.UserID,
		UpdateType: messaging.UpdateTypeLine,
		EntityID:   payload.LineID,
		StoryID:    segment.StoryID.String(),
		Status:     "completed",
	})
	return nil
}

// patchVoiceoverLine перечитывает сегмент в транзакции и применяет patch
// только к строке lineID. Возвращает errLineGone, если строка исчезла
// или ее текст уже не совпадает с озвученным.
func (h *Handler) patchVoiceoverLine(
	ctx context.Context,
	segmentID uuid.UUID,
	lineID, spokenText string,
	patch func(line *models.StructuredTextLine),
) error {
	return h.txHelper.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		segment, err := h.segmentRepo.GetByID(ctx, tx, segmentID)
		if err != nil {
			return err
		}
		lines := make([]models.StructuredTextLine, len(segment.StructuredText))
		copy(lines, segment.StructuredText)
		for i := range lines {
			if lines[i].LineID != lineID {
				continue
			}
			if lines[i].Text != spokenText {
				return errLineGone
			}
			patch(&lines[i])
			return h.segmentRepo.SetStructuredText(ctx, tx, segmentID, lines)
		}
		return errLineGone
	})
}
