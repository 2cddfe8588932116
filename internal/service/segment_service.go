package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/messaging"
	"storyreel-server/internal/models"
	"storyreel-server/internal/storage"
)

// SegmentService defines the interface for managing segments, their image
// versions and structured text with voiceovers.
type SegmentService interface {
	GetSegment(ctx context.Context, segmentID, userID uuid.UUID) (*models.Segment, error)
	AddSegment(ctx context.Context, storyID, userID uuid.UUID, text string) (*models.Segment, error)
	UpdateText(ctx context.Context, segmentID, userID uuid.UUID, text string) error
	DeleteSegment(ctx context.Context, segmentID, userID uuid.UUID) error
	// Reorder переставляет сегменты истории согласно порядку ids.
	// Набор ids обязан совпадать с набором сегментов истории.
	Reorder(ctx context.Context, storyID, userID uuid.UUID, ids []uuid.UUID) error

	// RegenerateImage списывает кредиты и ставит задачу генерации
	// нового изображения сегмента с нуля.
	RegenerateImage(ctx context.Context, segmentID, userID uuid.UUID) error
	// EditImage списывает кредиты и ставит задачу правки указанной
	// версии изображения по инструкции пользователя.
	EditImage(ctx context.Context, segmentID, userID, versionID uuid.UUID, editPrompt string) error

	ListVersions(ctx context.Context, segmentID, userID uuid.UUID) ([]*models.ImageVersion, error)
	SelectVersion(ctx context.Context, segmentID, userID, versionID uuid.UUID) error
	// UploadVersion сохраняет пользовательское изображение как новую
	// версию, сразу выбирает ее и ставит задачу подготовки превью.
	UploadVersion(ctx context.Context, segmentID, userID uuid.UUID, data []byte, contentType string) (*models.ImageVersion, error)

	// ReplaceStructuredText заменяет структурированный текст сегмента.
	// Строки, чей текст изменился, теряют ссылку на озвучку.
	ReplaceStructuredText(ctx context.Context, segmentID, userID uuid.UUID, lines []models.StructuredTextLine) error
	// GenerateVoiceover списывает кредит и ставит задачу озвучки строки.
	GenerateVoiceover(ctx context.Context, segmentID, userID uuid.UUID, lineID, voice string) error
	DeleteVoiceover(ctx context.Context, segmentID, userID uuid.UUID, lineID string) error
}

type segmentServiceImpl struct {
	pool        *pgxpool.Pool
	txHelper    interfaces.TxManager
	storyRepo   interfaces.StoryRepository
	segmentRepo interfaces.SegmentRepository
	versionRepo interfaces.ImageVersionRepository
	creditsRepo interfaces.CreditsRepository
	publisher   messaging.TaskPublisher
	store       storage.Store
	logger      *zap.Logger
}

// NewSegmentService creates a new instance of SegmentService.
func NewSegmentService(
	pool *pgxpool.Pool,
	txHelper interfaces.TxManager,
	storyRepo interfaces.StoryRepository,
	segmentRepo interfaces.SegmentRepository,
	versionRepo interfaces.ImageVersionRepository,
	creditsRepo interfaces.CreditsRepository,
	publisher messaging.TaskPublisher,
	store storage.Store,
	logger *zap.Logger,
) SegmentService {
	return &segmentServiceImpl{
		pool:        pool,
		txHelper:    txHelper,
		storyRepo:   storyRepo,
		segmentRepo: segmentRepo,
		versionRepo: versionRepo,
		creditsRepo: creditsRepo,
		publisher:   publisher,
		store:       store,
		logger:      logger.Named("SegmentService"),
	}
}

// getOwnedSegment загружает сегмент и проверяет владельца через историю.
func (s *segmentServiceImpl) getOwnedSegment(ctx context.Context, q interfaces.DBTX, segmentID, userID uuid.UUID) (*models.Segment, *models.Story, error) {
	segment, err := s.segmentRepo.GetByID(ctx, q, segmentID)
	if err != nil {
		return nil, nil, err
	}
	story, err := s.storyRepo.GetByID(ctx, q, segment.StoryID)
	if err != nil {
		return nil, nil, err
	}
	if story.UserID != userID {
		return nil, nil, models.ErrForbidden
	}
	return segment, story, nil
}

func (s *segmentServiceImpl) GetSegment(ctx context.Context, segmentID, userID uuid.UUID) (*models.Segment, error) {
	segment, _, err := s.getOwnedSegment(ctx, s.pool, segmentID, userID)
	if err != nil {
		return nil, err
	}
	return segment, nil
}

func (s *segmentServiceImpl) AddSegment(ctx context.Context, storyID, userID uuid.UUID, text string) (*models.Segment, error) {
	log := s.logger.With(zap.String("storyID", storyID.String()))

	story, err := s.storyRepo.GetByID(ctx, s.pool, storyID)
	if err != nil {
		return nil, err
	}
	if story.UserID != userID {
		return nil, models.ErrForbidden
	}

	segment := &models.Segment{ID: uuid.New(), StoryID: storyID, Text: text}
	err = s.txHelper.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		maxOrder, err := s.segmentRepo.MaxOrder(ctx, tx, storyID)
		if err != nil {
			return err
		}
		segment.Order = maxOrder + 1
		return s.segmentRepo.Create(ctx, tx, segment)
	})
	if err != nil {
		log.Error("Error adding segment", zap.Error(err))
		return nil, fmt.Errorf("error adding segment: %w", err)
	}
	log.Info("Segment added", zap.String("segmentID", segment.ID.String()), zap.Int("order", segment.Order))
	return segment, nil
}

func (s *segmentServiceImpl) UpdateText(ctx context.Context, segmentID, userID uuid.UUID, text string) error {
	if _, _, err := s.getOwnedSegment(ctx, s.pool, segmentID, userID); err != nil {
		return err
	}
	if err := s.segmentRepo.UpdateText(ctx, s.pool, segmentID, text); err != nil {
		s.logger.Error("Error updating segment text", zap.String("segmentID", segmentID.String()), zap.Error(err))
		return fmt.Errorf("error updating segment text: %w", err)
	}
	return nil
}

// DeleteSegment удаляет сегмент и уплотняет нумерацию оставшихся.
func (s *segmentServiceImpl) DeleteSegment(ctx context.Context, segmentID, userID uuid.UUID) error {
	log := s.logger.With(zap.String("segmentID", segmentID.String()))

	segment, _, err := s.getOwnedSegment(ctx, s.pool, segmentID, userID)
	if err != nil {
		return err
	}
	versions, err := s.versionRepo.ListBySegmentID(ctx, s.pool, segmentID)
	if err != nil {
		return fmt.Errorf("error listing versions for delete: %w", err)
	}

	err = s.txHelper.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		if err := s.segmentRepo.Delete(ctx, tx, segmentID); err != nil {
			return err
		}
		return s.segmentRepo.ShiftOrdersAfter(ctx, tx, segment.StoryID, segment.Order)
	})
	if err != nil {
		log.Error("Error deleting segment", zap.Error(err))
		return fmt.Errorf("error deleting segment: %w", err)
	}
	deleteBlobRefs(ctx, s.store, log, models.SegmentBlobRefs(segment, versions))
	log.Info("Segment deleted", zap.Int("order", segment.Order))
	return nil
}

// deleteBlobRefs удаляет блобы по списку ссылок. Записи БД уже удалены,
// поэтому ошибки стораджа только логируются.
func deleteBlobRefs(ctx context.Context, store storage.Store, log *zap.Logger, refs []string) {
	for _, ref := range refs {
		if err := store.Delete(ctx, ref); err != nil {
			log.Error("Failed to delete orphaned blob", zap.String("ref", ref), zap.Error(err))
		}
	}
}

func (s *segmentServiceImpl) Reorder(ctx context.Context, storyID, userID uuid.UUID, ids []uuid.UUID) error {
	log := s.logger.With(zap.String("storyID", storyID.String()))

	story, err := s.storyRepo.GetByID(ctx, s.pool, storyID)
	if err != nil {
		return err
	}
	if story.UserID != userID {
		return models.ErrForbidden
	}

	segments, err := s.segmentRepo.ListByStoryID(ctx, s.pool, storyID)
	if err != nil {
		return fmt.Errorf("error listing segments for reorder: %w", err)
	}
	if len(ids) != len(segments) {
		return models.ErrSegmentNotFound
	}
	existing := make(map[uuid.UUID]bool, len(segments))
	for _, seg := range segments {
		existing[seg.ID] = true
	}
	for _, id := range ids {
		if !existing[id] {
			return models.ErrSegmentNotFound
		}
		delete(existing, id)
	}

	err = s.txHelper.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		return s.segmentRepo.Reorder(ctx, tx, storyID, ids)
	})
	if err != nil {
		log.Error("Error reordering segments", zap.Error(err))
		return fmt.Errorf("error reordering segments: %w", err)
	}
	return nil
}

// startImageTask — общая часть regenerate и edit: списание кредитов,
// установка флага генерации и публикация задачи в одной операции.
func (s *segmentServiceImpl) startImageTask(ctx context.Context, segment *models.Segment, userID uuid.UUID, payload messaging.GenerationTaskPayload) error {
	log := s.logger.With(zap.String("segmentID", segment.ID.String()))

	if segment.IsGenerating {
		log.Warn("Image task rejected, segment is already generating")
		return models.ErrUserHasActiveGeneration
	}

	err := s.txHelper.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		if err := s.creditsRepo.Consume(ctx, tx, userID, models.CostImageGeneration); err != nil {
			return err
		}
		return s.segmentRepo.SetGenerating(ctx, tx, segment.ID, true)
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientCredits) || errors.Is(err, models.ErrNoCreditRecord) {
			log.Warn("Image task rejected, not enough credits")
			return err
		}
		log.Error("Error starting image task", zap.Error(err))
		return fmt.Errorf("error starting image task: %w", err)
	}

	if err := s.publisher.PublishGenerationTask(ctx, payload); err != nil {
		log.Error("Error publishing image task", zap.Error(err))
		errText := "failed to queue generation task"
		if resErr := s.segmentRepo.SetGenerationResult(ctx, s.pool, segment.ID, &errText); resErr != nil {
			log.Error("Error resetting segment after publish failure", zap.Error(resErr))
		}
		return fmt.Errorf("error publishing image task: %w", err)
	}
	log.Info("Image task published", zap.String("taskID", payload.TaskID), zap.String("taskType", string(payload.TaskType)))
	return nil
}

func (s *segmentServiceImpl) RegenerateImage(ctx context.Context, segmentID, userID uuid.UUID) error {
	segment, story, err := s.getOwnedSegment(ctx, s.pool, segmentID, userID)
	if err != nil {
		return err
	}
	return s.startImageTask(ctx, segment, userID, messaging.GenerationTaskPayload{
		TaskID:    uuid.New().String(),
		TaskType:  messaging.TaskSegmentImage,
		UserID:    userID.String(),
		StoryID:   story.ID.String(),
		SegmentID: segmentID.String(),
	})
}

func (s *segmentServiceImpl) EditImage(ctx context.Context, segmentID, userID, versionID uuid.UUID, editPrompt string) error {
	segment, story, err := s.getOwnedSegment(ctx, s.pool, segmentID, userID)
	if err != nil {
		return err
	}

	version, err := s.versionRepo.GetByID(ctx, s.pool, versionID)
	if err != nil {
		return err
	}
	if version.SegmentID != segmentID {
		return models.ErrVersionMismatch
	}

	return s.startImageTask(ctx, segment, userID, messaging.GenerationTaskPayload{
		TaskID:     uuid.New().String(),
		TaskType:   messaging.TaskSegmentImage,
		UserID:     userID.String(),
		StoryID:    story.ID.String(),
		SegmentID:  segmentID.String(),
		VersionID:  versionID.String(),
		EditPrompt: editPrompt,
	})
}

func (s *segmentServiceImpl) ListVersions(ctx context.Context, segmentID, userID uuid.UUID) ([]*models.ImageVersion, error) {
	if _, _, err := s.getOwnedSegment(ctx, s.pool, segmentID, userID); err != nil {
		return nil, err
	}
	return s.versionRepo.ListBySegmentID(ctx, s.pool, segmentID)
}

func (s *segmentServiceImpl) SelectVersion(ctx context.Context, segmentID, userID, versionID uuid.UUID) error {
	if _, _, err := s.getOwnedSegment(ctx, s.pool, segmentID, userID); err != nil {
		return err
	}

	version, err := s.versionRepo.GetByID(ctx, s.pool, versionID)
	if err != nil {
		return err
	}
	if version.SegmentID != segmentID {
		return models.ErrVersionMismatch
	}

	if err := s.segmentRepo.SetSelectedVersion(ctx, s.pool, segmentID, versionID); err != nil {
		s.logger.Error("Error selecting version", zap.String("segmentID", segmentID.String()), zap.Error(err))
		return fmt.Errorf("error selecting version: %w", err)
	}
	return nil
}

func (s *segmentServiceImpl) UploadVersion(ctx context.Context, segmentID, userID uuid.UUID, data []byte, contentType string) (*models.ImageVersion, error) {
	log := s.logger.With(zap.String("segmentID", segmentID.String()))

	if _, _, err := s.getOwnedSegment(ctx, s.pool, segmentID, userID); err != nil {
		return nil, err
	}

	ref, err := s.store.Save(ctx, data, contentType)
	if err != nil {
		log.Error("Error saving uploaded image", zap.Error(err))
		return nil, fmt.Errorf("error saving uploaded image: %w", err)
	}

	// Превью строится фоновой задачей; до тех пор им служит оригинал.
	version := &models.ImageVersion{
		SegmentID:  segmentID,
		UserID:     userID,
		ImageRef:   ref,
		PreviewRef: ref,
		Source:     models.SourceUserUploaded,
	}

	err = s.txHelper.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		if err := s.versionRepo.Create(ctx, tx, version); err != nil {
			return err
		}
		return s.segmentRepo.SetSelectedVersion(ctx, tx, segmentID, version.ID)
	})
	if err != nil {
		log.Error("Error creating uploaded version", zap.Error(err))
		if delErr := s.store.Delete(ctx, ref); delErr != nil {
			log.Error("Error deleting orphaned blob", zap.String("ref", ref), zap.Error(delErr))
		}
		return nil, fmt.Errorf("error creating uploaded version: %w", err)
	}

	payload := messaging.GenerationTaskPayload{
		TaskID:    uuid.New().String(),
		TaskType:  messaging.TaskUploadedImage,
		UserID:    userID.String(),
		SegmentID: segmentID.String(),
		VersionID: version.ID.String(),
	}
	if err := s.publisher.PublishGenerationTask(ctx, payload); err != nil {
		// Превью не критично: версия уже создана и выбрана.
		log.Error("Error publishing uploaded image task", zap.Error(err))
	}
	log.Info("Uploaded version created", zap.String("versionID", version.ID.String()))
	return version, nil
}

func (s *segmentServiceImpl) ReplaceStructuredText(ctx context.Context, segmentID, userID uuid.UUID, lines []models.StructuredTextLine) error {
	log := s.logger.With(zap.String("segmentID", segmentID.String()))

	segment, _, err := s.getOwnedSegment(ctx, s.pool, segmentID, userID)
	if err != nil {
		return err
	}

	merged := mergeStructuredText(segment.StructuredText, lines)

	var staleRefs []string
	for i := range segment.StructuredText {
		old := &segment.StructuredText[i]
		if old.VoiceoverRef == nil {
			continue
		}
		kept := false
		for j := range merged {
			if merged[j].LineID == old.LineID && merged[j].VoiceoverRef != nil {
				kept = true
				break
			}
		}
		if !kept {
			staleRefs = append(staleRefs, *old.VoiceoverRef)
		}
	}

	if err := s.segmentRepo.SetStructuredText(ctx, s.pool, segmentID, merged); err != nil {
		log.Error("Error replacing structured text", zap.Error(err))
		return fmt.Errorf("error replacing structured text: %w", err)
	}

	for _, ref := range staleRefs {
		if err := s.store.Delete(ctx, ref); err != nil {
			log.Error("Error deleting stale voiceover blob", zap.String("ref", ref), zap.Error(err))
		}
	}
	return nil
}

// mergeStructuredText переносит озвучку со старых строк на новые, пока
// текст строки не изменился. Измененный текст делает озвучку устаревшей.
func mergeStructuredText(old, next []models.StructuredTextLine) []models.StructuredTextLine {
	byID := make(map[string]*models.StructuredTextLine, len(old))
	for i := range old {
		byID[old[i].LineID] = &old[i]
	}

	merged := make([]models.StructuredTextLine, len(next))
	for i, line := range next {
		prev, ok := byID[line.LineID]
		if ok && prev.Text == line.Text {
			line.Voice = prev.Voice
			line.VoiceoverRef = prev.VoiceoverRef
			line.IsGeneratingVoiceover = prev.IsGeneratingVoiceover
			line.VoiceoverError = prev.VoiceoverError
		} else {
			line.VoiceoverRef = nil
			line.IsGeneratingVoiceover = false
			line.VoiceoverError = nil
		}
		merged[i] = line
	}
	return merged
}

func (s *segmentServiceImpl) GenerateVoiceover(ctx context.Context, segmentID, userID uuid.UUID, lineID, voice string) error {
	log := s.logger.With(zap.String("segmentID", segmentID.String()), zap.String("lineID", lineID))

	if !models.ValidVoice(voice) {
		return models.ErrInvalidVoice
	}

	segment, _, err := s.getOwnedSegment(ctx, s.pool, segmentID, userID)
	if err != nil {
		return err
	}

	lineIdx := findLine(segment.StructuredText, lineID)
	if lineIdx < 0 {
		return models.ErrLineNotFound
	}
	if segment.StructuredText[lineIdx].IsGeneratingVoiceover {
		return models.ErrUserHasActiveGeneration
	}

	lines := make([]models.StructuredTextLine, len(segment.StructuredText))
	copy(lines, segment.StructuredText)
	lines[lineIdx].Voice = &voice
	lines[lineIdx].IsGeneratingVoiceover = true
	lines[lineIdx].VoiceoverError = nil

	err = s.txHelper.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		if err := s.creditsRepo.Consume(ctx, tx, userID, models.CostChatCompletion); err != nil {
			return err
		}
		return s.segmentRepo.SetStructuredText(ctx, tx, segmentID, lines)
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientCredits) || errors.Is(err, models.ErrNoCreditRecord) {
			log.Warn("Voiceover rejected, not enough credits")
			return err
		}
		log.Error("Error starting voiceover", zap.Error(err))
		return fmt.Errorf("error starting voiceover: %w", err)
	}

	payload := messaging.GenerationTaskPayload{
		TaskID:    uuid.New().String(),
		TaskType:  messaging.TaskLineVoiceover,
		UserID:    userID.String(),
		SegmentID: segmentID.String(),
		LineID:    lineID,
		Voice:     voice,
	}
	if err := s.publisher.PublishGenerationTask(ctx, payload); err != nil {
		log.Error("Error publishing voiceover task", zap.Error(err))
		lines[lineIdx].IsGeneratingVoiceover = false
		errText := "failed to queue generation task"
		lines[lineIdx].VoiceoverError = &errText
		if stErr := s.segmentRepo.SetStructuredText(ctx, s.pool, segmentID, lines); stErr != nil {
			log.Error("Error resetting line after publish failure", zap.Error(stErr))
		}
		return fmt.Errorf("error publishing voiceover task: %w", err)
	}
	log.Info("Voiceover task published", zap.String("taskID", payload.TaskID), zap.String("voice", voice))
	return nil
}

func (s *segmentServiceImpl) DeleteVoiceover(ctx context.Context, segmentID, userID uuid.UUID, lineID string) error {
	log := s.logger.With(zap.String("segmentID", segmentID.String()), zap.String("lineID", lineID))

	segment, _, err := s.getOwnedSegment(ctx, s.pool, segmentID, userID)
	if err != nil {
		return err
	}

	lineIdx := findLine(segment.StructuredText, lineID)
	if lineIdx < 0 {
		return models.ErrLineNotFound
	}

	lines := make([]models.StructuredTextLine, len(segment.StructuredText))
	copy(lines, segment.StructuredText)
	ref := lines[lineIdx].VoiceoverRef
	lines[lineIdx].VoiceoverRef = nil
	lines[lineIdx].VoiceoverError = nil
	lines[lineIdx].IsGeneratingVoiceover = false

	if err := s.segmentRepo.SetStructuredText(ctx, s.pool, segmentID, lines); err != nil {
		log.Error("Error clearing voiceover", zap.Error(err))
		return fmt.Errorf("error clearing voiceover: %w", err)
	}
	if ref != nil {
		if err := s.store.Delete(ctx, *ref); err != nil {
			log.Error("Error deleting voiceover blob", zap.String("ref", *ref), zap.Error(err))
		}
	}
	return nil
}

// findLine ищет строку по lineID, -1 если строки нет.
func findLine(lines []models.StructuredTextLine, lineID string) int {
	for i := range lines {
		if lines[i].LineID == lineID {
			return i
		}
	}
	return -1
}
