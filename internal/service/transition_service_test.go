package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"storyreel-server/internal/interfaces/mocks"
	"storyreel-server/internal/models"
	"storyreel-server/internal/service"
)

func newTransitionService(t *testing.T) (service.TransitionService, *mocks.StoryRepository, *mocks.SegmentRepository, *mocks.TransitionRepository) {
	t.Helper()
	storyRepo := new(mocks.StoryRepository)
	segmentRepo := new(mocks.SegmentRepository)
	transitionRepo := new(mocks.TransitionRepository)
	svc := service.NewTransitionService(nil, storyRepo, segmentRepo, transitionRepo, zap.NewNop())
	return svc, storyRepo, segmentRepo, transitionRepo
}

func TestSetTransition(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("Upserts a valid transition", func(t *testing.T) {
		svc, storyRepo, segmentRepo, transitionRepo := newTransitionService(t)
		story, segment := ownedSegmentFixtures(userID)

		segmentRepo.On("GetByID", ctx, mock.Anything, segment.ID).Return(segment, nil).Once()
		storyRepo.On("GetByID", ctx, mock.Anything, story.ID).Return(story, nil).Once()
		transitionRepo.On("Upsert", ctx, mock.Anything, mock.MatchedBy(func(tr *models.Transition) bool {
			return tr.AfterSegmentID == segment.ID &&
				tr.StoryID == story.ID &&
				tr.Type == models.TransitionFade &&
				tr.DurationMs == 500
		})).Return(nil).Once()

		transition, err := svc.SetTransition(ctx, userID, segment.ID, "fade", 500)
		assert.NoError(t, err)
		assert.Equal(t, models.TransitionFade, transition.Type)
		transitionRepo.AssertExpectations(t)
	})

	t.Run("Writing cut removes the stored transition", func(t *testing.T) {
		svc, storyRepo, segmentRepo, transitionRepo := newTransitionService(t)
		story, segment := ownedSegmentFixtures(userID)

		segmentRepo.On("GetByID", ctx, mock.Anything, segment.ID).Return(segment, nil).Once()
		storyRepo.On("GetByID", ctx, mock.Anything, story.ID).Return(story, nil).Once()
		transitionRepo.On("DeleteByAfterSegmentID", ctx, mock.Anything, segment.ID).Return(nil).Once()

		transition, err := svc.SetTransition(ctx, userID, segment.ID, "cut", 0)
		assert.NoError(t, err)
		assert.Nil(t, transition)
		transitionRepo.AssertNotCalled(t, "Upsert")
		transitionRepo.AssertExpectations(t)
	})

	t.Run("Unknown type is rejected", func(t *testing.T) {
		svc, _, segmentRepo, _ := newTransitionService(t)

		_, err := svc.SetTransition(ctx, userID, uuid.New(), "spin", 500)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
		segmentRepo.AssertNotCalled(t, "GetByID")
	})

	t.Run("Non-positive duration is rejected", func(t *testing.T) {
		svc, _, _, transitionRepo := newTransitionService(t)

		_, err := svc.SetTransition(ctx, userID, uuid.New(), "fade", 0)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
		transitionRepo.AssertNotCalled(t, "Upsert")
	})
}

func TestCutTransition(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("Cut is idempotent", func(t *testing.T) {
		svc, storyRepo, segmentRepo, transitionRepo := newTransitionService(t)
		story, segment := ownedSegmentFixtures(userID)

		segmentRepo.On("GetByID", ctx, mock.Anything, segment.ID).Return(segment, nil).Twice()
		storyRepo.On("GetByID", ctx, mock.Anything, story.ID).Return(story, nil).Twice()
		transitionRepo.On("DeleteByAfterSegmentID", ctx, mock.Anything, segment.ID).Return(nil).Twice()

		assert.NoError(t, svc.CutTransition(ctx, userID, segment.ID))
		assert.NoError(t, svc.CutTransition(ctx, userID, segment.ID))
	})

	t.Run("Foreign segment is forbidden", func(t *testing.T) {
		svc, storyRepo, segmentRepo, transitionRepo := newTransitionService(t)
		story, segment := ownedSegmentFixtures(uuid.New())

		segmentRepo.On("GetByID", ctx, mock.Anything, segment.ID).Return(segment, nil).Once()
		storyRepo.On("GetByID", ctx, mock.Anything, story.ID).Return(story, nil).Once()

		err := svc.CutTransition(ctx, userID, segment.ID)
		assert.ErrorIs(t, err, models.ErrForbidden)
		transitionRepo.AssertNotCalled(t, "DeleteByAfterSegmentID")
	})
}
