package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/messaging"
	"storyreel-server/internal/models"
	"storyreel-server/internal/storage"
)

// StoryUpdate — частичное обновление полей истории.
type StoryUpdate struct {
	Title       *string
	Script      *string
	StylePrompt *string
	Format      *string
}

// StoryService defines the interface for managing stories and their generation.
type StoryService interface {
	CreateStory(ctx context.Context, userID uuid.UUID, title, script string, format *string) (*models.Story, error)
	GetStory(ctx context.Context, id, userID uuid.UUID) (*models.Story, []*models.Segment, error)
	ListStories(ctx context.Context, userID uuid.UUID, status *models.StoryStatus) ([]*models.Story, error)
	UpdateStory(ctx context.Context, id, userID uuid.UUID, update StoryUpdate) (*models.Story, error)
	UpdateStatus(ctx context.Context, id, userID uuid.UUID, status models.StoryStatus) error
	DeleteStory(ctx context.Context, id, userID uuid.UUID) error

	// GenerateGuidedStory списывает кредит и ставит задачу написания
	// сценария по описанию пользователя.
	GenerateGuidedStory(ctx context.Context, id, userID uuid.UUID, description string) error
	// GenerateSegments запускает полную генерацию кадров: стампует новую
	// эпоху, берет пер-пользовательскую блокировку и ставит задачу.
	GenerateSegments(ctx context.Context, id, userID uuid.UUID) error
}

type storyServiceImpl struct {
	pool        *pgxpool.Pool
	txHelper    interfaces.TxManager
	storyRepo   interfaces.StoryRepository
	segmentRepo interfaces.SegmentRepository
	versionRepo interfaces.ImageVersionRepository
	creditsRepo interfaces.CreditsRepository
	lock        interfaces.GenerationLock
	publisher   messaging.TaskPublisher
	store       storage.Store
	logger      *zap.Logger
}

// NewStoryService creates a new instance of StoryService.
func NewStoryService(
	pool *pgxpool.Pool,
	txHelper interfaces.TxManager,
	storyRepo interfaces.StoryRepository,
	segmentRepo interfaces.SegmentRepository,
	versionRepo interfaces.ImageVersionRepository,
	creditsRepo interfaces.CreditsRepository,
	lock interfaces.GenerationLock,
	publisher messaging.TaskPublisher,
	store storage.Store,
	logger *zap.Logger,
) StoryService {
	return &storyServiceImpl{
		pool:        pool,
		txHelper:    txHelper,
		storyRepo:   storyRepo,
		segmentRepo: segmentRepo,
		versionRepo: versionRepo,
		creditsRepo: creditsRepo,
		lock:        lock,
		publisher:   publisher,
		store:       store,
		logger:      logger.Named("StoryService"),
	}
}

// getOwnedStory загружает историю и проверяет владельца.
func (s *storyServiceImpl) getOwnedStory(ctx context.Context, q interfaces.DBTX, id, userID uuid.UUID) (*models.Story, error) {
	story, err := s.storyRepo.GetByID(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if story.UserID != userID {
		return nil, models.ErrForbidden
	}
	return story, nil
}

func (s *storyServiceImpl) CreateStory(ctx context.Context, userID uuid.UUID, title, script string, format *string) (*models.Story, error) {
	log := s.logger.With(zap.String("userID", userID.String()))

	story := &models.Story{
		ID:               uuid.New(),
		UserID:           userID,
		Title:            title,
		Script:           script,
		Status:           models.StoryStatusDraft,
		GenerationStatus: models.GenerationIdle,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	if format != nil {
		if !models.ValidFormat(*format) {
			return nil, models.ErrInvalidFormat
		}
		f := models.StoryFormat(*format)
		story.Format = &f
	}

	if err := s.storyRepo.Create(ctx, s.pool, story); err != nil {
		log.Error("Error creating story", zap.Error(err))
		return nil, fmt.Errorf("error creating story: %w", err)
	}
	log.Info("Story created", zap.String("storyID", story.ID.String()))
	return story, nil
}

func (s *storyServiceImpl) GetStory(ctx context.Context, id, userID uuid.UUID) (*models.Story, []*models.Segment, error) {
	story, err := s.getOwnedStory(ctx, s.pool, id, userID)
	if err != nil {
		return nil, nil, err
	}
	segments, err := s.segmentRepo.ListByStoryID(ctx, s.pool, id)
	if err != nil {
		s.logger.Error("Error listing segments", zap.String("storyID", id.String()), zap.Error(err))
		return nil, nil, fmt.Errorf("error listing segments: %w", err)
	}
	return story, segments, nil
}

func (s *storyServiceImpl) ListStories(ctx context.Context, userID uuid.UUID, status *models.StoryStatus) ([]*models.Story, error) {
	stories, err := s.storyRepo.ListByUserID(ctx, s.pool, userID, status)
	if err != nil {
		s.logger.Error("Error listing stories", zap.String("userID", userID.String()), zap.Error(err))
		return nil, fmt.Errorf("error listing stories: %w", err)
	}
	return stories, nil
}

func (s *storyServiceImpl) UpdateStory(ctx context.Context, id, userID uuid.UUID, update StoryUpdate) (*models.Story, error) {
	log := s.logger.With(zap.String("storyID", id.String()))

	if _, err := s.getOwnedStory(ctx, s.pool, id, userID); err != nil {
		return nil, err
	}

	var format *models.StoryFormat
	if update.Format != nil {
		if !models.ValidFormat(*update.Format) {
			return nil, models.ErrInvalidFormat
		}
		f := models.StoryFormat(*update.Format)
		format = &f
	}

	if err := s.storyRepo.UpdateFields(ctx, s.pool, id, update.Title, update.Script, update.StylePrompt, format); err != nil {
		log.Error("Error updating story", zap.Error(err))
		return nil, fmt.Errorf("error updating story: %w", err)
	}
	return s.storyRepo.GetByID(ctx, s.pool, id)
}

func (s *storyServiceImpl) UpdateStatus(ctx context.Context, id, userID uuid.UUID, status models.StoryStatus) error {
	if _, err := s.getOwnedStory(ctx, s.pool, id, userID); err != nil {
		return err
	}
	if err := s.storyRepo.UpdateStatus(ctx, s.pool, id, status); err != nil {
		s.logger.Error("Error updating story status", zap.String("storyID", id.String()), zap.Error(err))
		return fmt.Errorf("error updating story status: %w", err)
	}
	return nil
}

// DeleteStory удаляет историю вместе с сегментами, версиями и переходами
// (каскад в схеме БД) и подчищает блобы изображений и озвучки.
func (s *storyServiceImpl) DeleteStory(ctx context.Context, id, userID uuid.UUID) error {
	log := s.logger.With(zap.String("storyID", id.String()))

	if _, err := s.getOwnedStory(ctx, s.pool, id, userID); err != nil {
		return err
	}

	// Ссылки собираются до удаления записей: после каскада их уже не найти.
	segments, err := s.segmentRepo.ListByStoryID(ctx, s.pool, id)
	if err != nil {
		return fmt.Errorf("error listing segments for delete: %w", err)
	}
	var refs []string
	for _, segment := range segments {
		versions, err := s.versionRepo.ListBySegmentID(ctx, s.pool, segment.ID)
		if err != nil {
			return fmt.Errorf("error listing versions for delete: %w", err)
		}
		refs = append(refs, models.SegmentBlobRefs(segment, versions)...)
	}

	if err := s.storyRepo.Delete(ctx, s.pool, id); err != nil {
		log.Error("Error deleting story", zap.Error(err))
		return fmt.Errorf("error deleting story: %w", err)
	}
	deleteBlobRefs(ctx, s.store, log, refs)
	log.Info("Story deleted", zap.Int("blobs", len(refs)))
	return nil
}

func (s *storyServiceImpl) GenerateGuidedStory(ctx context.Context, id, userID uuid.UUID, description string) error {
	log := s.logger.With(zap.String("storyID", id.String()), zap.String("userID", userID.String()))

	if description == "" {
		return models.ErrEmptyScript
	}
	if _, err := s.getOwnedStory(ctx, s.pool, id, userID); err != nil {
		return err
	}

	// Кредит и статус в одной транзакции: если списание не прошло,
	// история не должна остаться в processing.
	err := s.txHelper.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		if err := s.creditsRepo.Consume(ctx, tx, userID, models.CostChatCompletion); err != nil {
			return err
		}
		return s.storyRepo.SetGenerationStatus(ctx, tx, id, models.GenerationProcessing, nil)
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientCredits) || errors.Is(err, models.ErrNoCreditRecord) {
			log.Warn("Guided story rejected, not enough credits")
			return err
		}
		log.Error("Error starting guided story", zap.Error(err))
		return fmt.Errorf("error starting guided story: %w", err)
	}

	payload := messaging.GenerationTaskPayload{
		TaskID:      uuid.New().String(),
		TaskType:    messaging.TaskGuidedStory,
		UserID:      userID.String(),
		StoryID:     id.String(),
		Description: description,
	}
	if err := s.publisher.PublishGenerationTask(ctx, payload); err != nil {
		log.Error("Error publishing guided story task", zap.Error(err))
		errText := "failed to queue generation task"
		if stErr := s.storyRepo.SetGenerationStatus(ctx, s.pool, id, models.GenerationError, &errText); stErr != nil {
			log.Error("Error rolling back generation status after publish failure", zap.Error(stErr))
		}
		return fmt.Errorf("error publishing guided story task: %w", err)
	}
	log.Info("Guided story task published", zap.String("taskID", payload.TaskID))
	return nil
}

func (s *storyServiceImpl) GenerateSegments(ctx context.Context, id, userID uuid.UUID) error {
	log := s.logger.With(zap.String("storyID", id.String()), zap.String("userID", userID.String()))

	story, err := s.getOwnedStory(ctx, s.pool, id, userID)
	if err != nil {
		return err
	}
	if story.Script == "" {
		return models.ErrEmptyScript
	}
	if story.Format == nil {
		return models.ErrInvalidFormat
	}

	generationID := uuid.New().String()

	// Блокировка раньше эпохи: вторая параллельная генерация того же
	// пользователя отваливается до любых записей в БД.
	if err := s.lock.Acquire(ctx, userID, generationID); err != nil {
		if errors.Is(err, models.ErrUserHasActiveGeneration) {
			log.Warn("Generation rejected, user already has an active generation")
			return err
		}
		log.Error("Error acquiring generation lock", zap.Error(err))
		return fmt.Errorf("error acquiring generation lock: %w", err)
	}

	// Кредит и эпоха в одной транзакции: без списания история
	// не переходит в processing.
	err = s.txHelper.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		if err := s.creditsRepo.Consume(ctx, tx, userID, models.CostChatCompletion); err != nil {
			return err
		}
		return s.storyRepo.StartGeneration(ctx, tx, id, generationID)
	})
	if err != nil {
		if relErr := s.lock.Release(ctx, userID, generationID); relErr != nil {
			log.Error("Error releasing generation lock after start failure", zap.Error(relErr))
		}
		if errors.Is(err, models.ErrInsufficientCredits) || errors.Is(err, models.ErrNoCreditRecord) {
			log.Warn("Generation rejected, not enough credits")
			return err
		}
		log.Error("Error stamping generation epoch", zap.Error(err))
		return fmt.Errorf("error starting generation: %w", err)
	}

	payload := messaging.GenerationTaskPayload{
		TaskID:       uuid.New().String(),
		TaskType:     messaging.TaskStoryGeneration,
		UserID:       userID.String(),
		StoryID:      id.String(),
		GenerationID: generationID,
	}
	if err := s.publisher.PublishGenerationTask(ctx, payload); err != nil {
		log.Error("Error publishing story generation task", zap.Error(err))
		errText := "failed to queue generation task"
		if finErr := s.storyRepo.FinalizeGeneration(ctx, s.pool, id, generationID, models.GenerationError, &errText); finErr != nil {
			log.Error("Error finalizing story after publish failure", zap.Error(finErr))
		}
		if relErr := s.lock.Release(ctx, userID, generationID); relErr != nil {
			log.Error("Error releasing generation lock after publish failure", zap.Error(relErr))
		}
		return fmt.Errorf("error publishing generation task: %w", err)
	}

	log.Info("Story generation task published",
		zap.String("taskID", payload.TaskID),
		zap.String("generationID", generationID))
	return nil
}
