package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/models"
)

// TransitionService defines the interface for managing transitions between
// segments. Жесткая склейка не хранится: cut это удаление записи.
type TransitionService interface {
	// SetTransition создает или обновляет переход. Тип "cut" удаляет
	// запись и возвращает nil-переход.
	SetTransition(ctx context.Context, userID, afterSegmentID uuid.UUID, transitionType string, durationMs int) (*models.Transition, error)
	CutTransition(ctx context.Context, userID, afterSegmentID uuid.UUID) error
	ListTransitions(ctx context.Context, userID, storyID uuid.UUID) ([]*models.Transition, error)
}

type transitionServiceImpl struct {
	pool           *pgxpool.Pool
	storyRepo      interfaces.StoryRepository
	segmentRepo    interfaces.SegmentRepository
	transitionRepo interfaces.TransitionRepository
	logger         *zap.Logger
}

// NewTransitionService creates a new instance of TransitionService.
func NewTransitionService(
	pool *pgxpool.Pool,
	storyRepo interfaces.StoryRepository,
	segmentRepo interfaces.SegmentRepository,
	transitionRepo interfaces.TransitionRepository,
	logger *zap.Logger,
) TransitionService {
	return &transitionServiceImpl{
		pool:           pool,
		storyRepo:      storyRepo,
		segmentRepo:    segmentRepo,
		transitionRepo: transitionRepo,
		logger:         logger.Named("TransitionService"),
	}
}

// ownedSegmentStory проверяет, что сегмент принадлежит пользователю.
func (s *transitionServiceImpl) ownedSegmentStory(ctx context.Context, segmentID, userID uuid.UUID) (*models.Segment, error) {
	segment, err := s.segmentRepo.GetByID(ctx, s.pool, segmentID)
	if err != nil {
		return nil, err
	}
	story, err := s.storyRepo.GetByID(ctx, s.pool, segment.StoryID)
	if err != nil {
		return nil, err
	}
	if story.UserID != userID {
		return nil, models.ErrForbidden
	}
	return segment, nil
}

func (s *transitionServiceImpl) SetTransition(ctx context.Context, userID, afterSegmentID uuid.UUID, transitionType string, durationMs int) (*models.Transition, error) {
	log := s.logger.With(zap.String("afterSegmentID", afterSegmentID.String()))

	// Запись "cut" это удаление: жесткая склейка не хранится.
	if models.TransitionType(transitionType) == models.TransitionCut {
		if err := s.CutTransition(ctx, userID, afterSegmentID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if !models.ValidTransitionType(transitionType) {
		return nil, models.ErrInvalidTransition
	}
	if durationMs <= 0 {
		return nil, models.ErrInvalidTransition
	}

	segment, err := s.ownedSegmentStory(ctx, afterSegmentID, userID)
	if err != nil {
		return nil, err
	}

	transition := &models.Transition{
		ID:             uuid.New(),
		StoryID:        segment.StoryID,
		AfterSegmentID: afterSegmentID,
		Type:           models.TransitionType(transitionType),
		DurationMs:     durationMs,
	}
	if err := s.transitionRepo.Upsert(ctx, s.pool, transition); err != nil {
		log.Error("Error upserting transition", zap.Error(err))
		return nil, fmt.Errorf("error upserting transition: %w", err)
	}
	return transition, nil
}

func (s *transitionServiceImpl) CutTransition(ctx context.Context, userID, afterSegmentID uuid.UUID) error {
	if _, err := s.ownedSegmentStory(ctx, afterSegmentID, userID); err != nil {
		return err
	}
	// Повторный cut без перехода не ошибка.
	if err := s.transitionRepo.DeleteByAfterSegmentID(ctx, s.pool, afterSegmentID); err != nil {
		s.logger.Error("Error deleting transition", zap.String("afterSegmentID", afterSegmentID.String()), zap.Error(err))
		return fmt.Errorf("error deleting transition: %w", err)
	}
	return nil
}

func (s *transitionServiceImpl) ListTransitions(ctx context.Context, userID, storyID uuid.UUID) ([]*models.Transition, error) {
	story, err := s.storyRepo.GetByID(ctx, s.pool, storyID)
	if err != nil {
		return nil, err
	}
	if story.UserID != userID {
		return nil, models.ErrForbidden
	}
	return s.transitionRepo.ListByStoryID(ctx, s.pool, storyID)
}
