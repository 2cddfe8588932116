package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"storyreel-server/internal/interfaces/mocks"
	"storyreel-server/internal/messaging"
	messagingMocks "storyreel-server/internal/messaging/mocks"
	"storyreel-server/internal/models"
	"storyreel-server/internal/service"
	storageMocks "storyreel-server/internal/storage/mocks"
)

type storyServiceMocks struct {
	tx          *mocks.TxManager
	storyRepo   *mocks.StoryRepository
	segmentRepo *mocks.SegmentRepository
	versionRepo *mocks.ImageVersionRepository
	creditsRepo *mocks.CreditsRepository
	lock        *mocks.GenerationLock
	publisher   *messagingMocks.TaskPublisher
	store       *storageMocks.Store
}

func newStoryService(t *testing.T) (service.StoryService, *storyServiceMocks) {
	t.Helper()
	m := &storyServiceMocks{
		tx:          new(mocks.TxManager),
		storyRepo:   new(mocks.StoryRepository),
		segmentRepo: new(mocks.SegmentRepository),
		versionRepo: new(mocks.ImageVersionRepository),
		creditsRepo: new(mocks.CreditsRepository),
		lock:        new(mocks.GenerationLock),
		publisher:   new(messagingMocks.TaskPublisher),
		store:       new(storageMocks.Store),
	}
	svc := service.NewStoryService(nil, m.tx, m.storyRepo, m.segmentRepo, m.versionRepo, m.creditsRepo, m.lock, m.publisher, m.store, zap.NewNop())
	return svc, m
}

func verticalStory(id, userID uuid.UUID) *models.Story {
	format := models.FormatVertical
	return &models.Story{
		ID:     id,
		UserID: userID,
		Title:  "Тестовая история",
		Script: "Первая сцена.\n\nВторая сцена.",
		Status: models.StoryStatusDraft,
		Format: &format,
	}
}

func TestCreateStory(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("Creates a draft story", func(t *testing.T) {
		svc, m := newStoryService(t)
		format := "vertical"

		m.storyRepo.On("Create", ctx, mock.Anything, mock.MatchedBy(func(s *models.Story) bool {
			return s.UserID == userID &&
				s.Status == models.StoryStatusDraft &&
				s.GenerationStatus == models.GenerationIdle &&
				s.Format != nil && *s.Format == models.FormatVertical
		})).Return(nil).Once()

		story, err := svc.CreateStory(ctx, userID, "Заголовок", "Сценарий", &format)
		assert.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, story.ID)
		m.storyRepo.AssertExpectations(t)
	})

	t.Run("Rejects unknown format", func(t *testing.T) {
		svc, m := newStoryService(t)
		format := "square"

		_, err := svc.CreateStory(ctx, userID, "Заголовок", "", &format)
		assert.ErrorIs(t, err, models.ErrInvalidFormat)
		m.storyRepo.AssertNotCalled(t, "Create")
	})
}

func TestGetStory(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	storyID := uuid.New()

	t.Run("Foreign story is forbidden", func(t *testing.T) {
		svc, m := newStoryService(t)
		other := verticalStory(storyID, uuid.New())

		m.storyRepo.On("GetByID", ctx, mock.Anything, storyID).Return(other, nil).Once()

		_, _, err := svc.GetStory(ctx, storyID, userID)
		assert.ErrorIs(t, err, models.ErrForbidden)
		m.segmentRepo.AssertNotCalled(t, "ListByStoryID")
	})

	t.Run("Returns story with its segments", func(t *testing.T) {
		svc, m := newStoryService(t)
		story := verticalStory(storyID, userID)
		segments := []*models.Segment{{ID: uuid.New(), StoryID: storyID, Order: 0}}

		m.storyRepo.On("GetByID", ctx, mock.Anything, storyID).Return(story, nil).Once()
		m.segmentRepo.On("ListByStoryID", ctx, mock.Anything, storyID).Return(segments, nil).Once()

		gotStory, gotSegments, err := svc.GetStory(ctx, storyID, userID)
		assert.NoError(t, err)
		assert.Equal(t, story, gotStory)
		assert.Len(t, gotSegments, 1)
	})
}

func TestGenerateSegments(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	storyID := uuid.New()

	t.Run("Publishes a generation task with a fresh epoch", func(t *testing.T) {
		svc, m := newStoryService(t)
		story := verticalStory(storyID, userID)

		m.storyRepo.On("GetByID", ctx, mock.Anything, storyID).Return(story, nil).Once()
		m.lock.On("Acquire", ctx, userID, mock.AnythingOfType("string")).Return(nil).Once()
		m.tx.On("WithTransaction", ctx, mock.Anything).Return(nil).Once()
		m.creditsRepo.On("Consume", ctx, mock.Anything, userID, models.CostChatCompletion).Return(nil).Once()
		m.storyRepo.On("StartGeneration", ctx, mock.Anything, storyID, mock.AnythingOfType("string")).Return(nil).Once()
		m.publisher.On("PublishGenerationTask", ctx, mock.MatchedBy(func(p messaging.GenerationTaskPayload) bool {
			return p.TaskType == messaging.TaskStoryGeneration &&
				p.StoryID == storyID.String() &&
				p.GenerationID != ""
		})).Return(nil).Once()

		err := svc.GenerateSegments(ctx, storyID, userID)
		assert.NoError(t, err)
		m.creditsRepo.AssertExpectations(t)
		m.publisher.AssertExpectations(t)
	})

	t.Run("Insufficient credits reject the generation and release the lock", func(t *testing.T) {
		svc, m := newStoryService(t)
		story := verticalStory(storyID, userID)

		m.storyRepo.On("GetByID", ctx, mock.Anything, storyID).Return(story, nil).Once()
		m.lock.On("Acquire", ctx, userID, mock.AnythingOfType("string")).Return(nil).Once()
		m.tx.On("WithTransaction", ctx, mock.Anything).Return(nil).Once()
		m.creditsRepo.On("Consume", ctx, mock.Anything, userID, models.CostChatCompletion).
			Return(models.ErrInsufficientCredits).Once()
		m.lock.On("Release", ctx, userID, mock.AnythingOfType("string")).Return(nil).Once()

		err := svc.GenerateSegments(ctx, storyID, userID)
		assert.ErrorIs(t, err, models.ErrInsufficientCredits)
		m.storyRepo.AssertNotCalled(t, "StartGeneration")
		m.publisher.AssertNotCalled(t, "PublishGenerationTask")
		m.lock.AssertExpectations(t)
	})

	t.Run("Empty script is rejected", func(t *testing.T) {
		svc, m := newStoryService(t)
		story := verticalStory(storyID, userID)
		story.Script = ""

		m.storyRepo.On("GetByID", ctx, mock.Anything, storyID).Return(story, nil).Once()

		err := svc.GenerateSegments(ctx, storyID, userID)
		assert.ErrorIs(t, err, models.ErrEmptyScript)
		m.lock.AssertNotCalled(t, "Acquire")
	})

	t.Run("Missing format is rejected", func(t *testing.T) {
		svc, m := newStoryService(t)
		story := verticalStory(storyID, userID)
		story.Format = nil

		m.storyRepo.On("GetByID", ctx, mock.Anything, storyID).Return(story, nil).Once()

		err := svc.GenerateSegments(ctx, storyID, userID)
		assert.ErrorIs(t, err, models.ErrInvalidFormat)
	})

	t.Run("Second concurrent generation is rejected by the lock", func(t *testing.T) {
		svc, m := newStoryService(t)
		story := verticalStory(storyID, userID)

		m.storyRepo.On("GetByID", ctx, mock.Anything, storyID).Return(story, nil).Once()
		m.lock.On("Acquire", ctx, userID, mock.AnythingOfType("string")).
			Return(models.ErrUserHasActiveGeneration).Once()

		err := svc.GenerateSegments(ctx, storyID, userID)
		assert.ErrorIs(t, err, models.ErrUserHasActiveGeneration)
		m.storyRepo.AssertNotCalled(t, "StartGeneration")
	})

	t.Run("Publish failure finalizes the story and releases the lock", func(t *testing.T) {
		svc, m := newStoryService(t)
		story := verticalStory(storyID, userID)

		m.storyRepo.On("GetByID", ctx, mock.Anything, storyID).Return(story, nil).Once()
		m.lock.On("Acquire", ctx, userID, mock.AnythingOfType("string")).Return(nil).Once()
		m.tx.On("WithTransaction", ctx, mock.Anything).Return(nil).Once()
		m.creditsRepo.On("Consume", ctx, mock.Anything, userID, models.CostChatCompletion).Return(nil).Once()
		m.storyRepo.On("StartGeneration", ctx, mock.Anything, storyID, mock.AnythingOfType("string")).Return(nil).Once()
		m.publisher.On("PublishGenerationTask", ctx, mock.Anything).Return(errors.New("broker down")).Once()
		m.storyRepo.On("FinalizeGeneration", ctx, mock.Anything, storyID, mock.AnythingOfType("string"),
			models.GenerationError, mock.Anything).Return(nil).Once()
		m.lock.On("Release", ctx, userID, mock.AnythingOfType("string")).Return(nil).Once()

		err := svc.GenerateSegments(ctx, storyID, userID)
		assert.Error(t, err)
		m.storyRepo.AssertExpectations(t)
		m.lock.AssertExpectations(t)
	})
}

func TestDeleteStory(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	storyID := uuid.New()

	t.Run("Deletes segment blobs along with the rows", func(t *testing.T) {
		svc, m := newStoryService(t)
		story := verticalStory(storyID, userID)
		voiceRef := "blob-voice"
		segment := &models.Segment{
			ID:      uuid.New(),
			StoryID: storyID,
			StructuredText: []models.StructuredTextLine{
				{LineID: "l1", Type: models.LineNarration, Text: "Текст", VoiceoverRef: &voiceRef},
			},
		}
		versions := []*models.ImageVersion{
			{ID: uuid.New(), SegmentID: segment.ID, ImageRef: "blob-image", PreviewRef: "blob-preview"},
		}

		m.storyRepo.On("GetByID", ctx, mock.Anything, storyID).Return(story, nil).Once()
		m.segmentRepo.On("ListByStoryID", ctx, mock.Anything, storyID).Return([]*models.Segment{segment}, nil).Once()
		m.versionRepo.On("ListBySegmentID", ctx, mock.Anything, segment.ID).Return(versions, nil).Once()
		m.storyRepo.On("Delete", ctx, mock.Anything, storyID).Return(nil).Once()
		m.store.On("Delete", ctx, "blob-image").Return(nil).Once()
		m.store.On("Delete", ctx, "blob-preview").Return(nil).Once()
		m.store.On("Delete", ctx, "blob-voice").Return(nil).Once()

		err := svc.DeleteStory(ctx, storyID, userID)
		assert.NoError(t, err)
		m.store.AssertExpectations(t)
	})

	t.Run("Blob refs are collected before the rows disappear", func(t *testing.T) {
		svc, m := newStoryService(t)
		story := verticalStory(storyID, userID)

		m.storyRepo.On("GetByID", ctx, mock.Anything, storyID).Return(story, nil).Once()
		m.segmentRepo.On("ListByStoryID", ctx, mock.Anything, storyID).
			Return(nil, errors.New("db down")).Once()

		err := svc.DeleteStory(ctx, storyID, userID)
		assert.Error(t, err)
		m.storyRepo.AssertNotCalled(t, "Delete")
	})
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	storyID := uuid.New()

	svc, m := newStoryService(t)
	story := verticalStory(storyID, userID)

	m.storyRepo.On("GetByID", ctx, mock.Anything, storyID).Return(story, nil).Once()
	m.storyRepo.On("UpdateStatus", ctx, mock.Anything, storyID, models.StoryStatusPublished).Return(nil).Once()

	err := svc.UpdateStatus(ctx, storyID, userID, models.StoryStatusPublished)
	assert.NoError(t, err)
	m.storyRepo.AssertExpectations(t)
}
