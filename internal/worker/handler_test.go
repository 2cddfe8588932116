package worker

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyreel-server/internal/ai"
	aiMocks "storyreel-server/internal/ai/mocks"
	"storyreel-server/internal/imaging"
	interfaceMocks "storyreel-server/internal/interfaces/mocks"
	"storyreel-server/internal/messaging"
	messagingMocks "storyreel-server/internal/messaging/mocks"
	"storyreel-server/internal/models"
	"storyreel-server/internal/render"
	renderMocks "storyreel-server/internal/render/mocks"
	"storyreel-server/internal/segmenter"
	storageMocks "storyreel-server/internal/storage/mocks"
)

// bibleJSON — валидная производственная библия для мока LLM.
const bibleJSON = `{"story_outline":"Путь героя","style_bible":{"visual_theme":"cinematic noir","mood":"dark","color_palette":"teal and orange","lighting_style":"low key","character_design":"silhouettes","environment_design":"rainy city"}}`

type handlerMocks struct {
	tx          *interfaceMocks.TxManager
	storyRepo   *interfaceMocks.StoryRepository
	segmentRepo *interfaceMocks.SegmentRepository
	versionRepo *interfaceMocks.ImageVersionRepository
	creditsRepo *interfaceMocks.CreditsRepository
	decorRepo   *interfaceMocks.DecorImageRepository
	inboxRepo   *interfaceMocks.InboxRepository
	lock        *interfaceMocks.GenerationLock
	aiClient    *aiMocks.Client
	renderer    *renderMocks.Client
	store       *storageMocks.Store
	clientPub   *messagingMocks.ClientUpdatePublisher
}

func newTestHandler(t *testing.T) (*Handler, *handlerMocks) {
	t.Helper()
	m := &handlerMocks{
		tx:          new(interfaceMocks.TxManager),
		storyRepo:   new(interfaceMocks.StoryRepository),
		segmentRepo: new(interfaceMocks.SegmentRepository),
		versionRepo: new(interfaceMocks.ImageVersionRepository),
		creditsRepo: new(interfaceMocks.CreditsRepository),
		decorRepo:   new(interfaceMocks.DecorImageRepository),
		inboxRepo:   new(interfaceMocks.InboxRepository),
		lock:        new(interfaceMocks.GenerationLock),
		aiClient:    new(aiMocks.Client),
		renderer:    new(renderMocks.Client),
		store:       new(storageMocks.Store),
		clientPub:   new(messagingMocks.ClientUpdatePublisher),
	}
	log := zap.NewNop()
	director := ai.NewDirector(m.aiClient, log)
	h := NewHandler(log, HandlerDeps{
		Pool:               nil,
		TxHelper:           m.tx,
		StoryRepo:          m.storyRepo,
		SegmentRepo:        m.segmentRepo,
		VersionRepo:        m.versionRepo,
		CreditsRepo:        m.creditsRepo,
		DecorRepo:          m.decorRepo,
		InboxRepo:          m.inboxRepo,
		Lock:               m.lock,
		Director:           director,
		Segmenter:          segmenter.New(director, log),
		Renderer:           m.renderer,
		Store:              m.store,
		ClientPub:          m.clientPub,
		SegmentConcurrency: 2,
		PushGatewayURL:     "http://localhost:9091",
	})
	return h, m
}

// testFrameBytes возвращает маленький валидный JPEG для мока рендера.
func testFrameBytes(t *testing.T) []byte {
	t.Helper()
	data, err := imaging.EncodeJPEG(image.NewRGBA(image.Rect(0, 0, 64, 64)))
	require.NoError(t, err)
	return data
}

func generationStory(storyID, userID uuid.UUID, generationID string) *models.Story {
	format := models.FormatVertical
	return &models.Story{
		ID:           storyID,
		UserID:       userID,
		Script:       "Первая сцена.\n\nВторая сцена.",
		Format:       &format,
		GenerationID: &generationID,
	}
}

func generationPayload(storyID, userID uuid.UUID, generationID string) messaging.GenerationTaskPayload {
	return messaging.GenerationTaskPayload{
		TaskID:       "task-1",
		TaskType:     messaging.TaskStoryGeneration,
		UserID:       userID.String(),
		StoryID:      storyID.String(),
		GenerationID: generationID,
	}
}

func TestHandleStoryGeneration(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	storyID := uuid.New()
	const genID = "gen-1"

	t.Run("Failed frames finalize the story with error", func(t *testing.T) {
		h, m := newTestHandler(t)
		story := generationStory(storyID, userID, genID)

		m.storyRepo.On("GetByID", mock.Anything, mock.Anything, storyID).Return(story, nil).Once()
		m.aiClient.On("CompleteJSON", mock.Anything, mock.Anything, mock.Anything).
			Return(bibleJSON, ai.UsageInfo{}, nil).Once()
		m.storyRepo.On("SetContext", mock.Anything, mock.Anything, storyID, mock.Anything).Return(nil).Once()
		m.segmentRepo.On("ListByStoryID", mock.Anything, mock.Anything, storyID).
			Return([]*models.Segment{}, nil).Once()
		m.tx.On("WithTransaction", mock.Anything, mock.Anything).Return(nil).Once()
		m.segmentRepo.On("DeleteByStoryID", mock.Anything, mock.Anything, storyID).Return(nil).Once()
		m.segmentRepo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil).Twice()
		m.creditsRepo.On("Consume", mock.Anything, mock.Anything, userID, models.CostImageGeneration).
			Return(nil).Twice()
		m.aiClient.On("CompleteJSON", mock.Anything, mock.Anything, mock.Anything).
			Return(`{"prompt":"neon street at night"}`, ai.UsageInfo{}, nil).Twice()
		m.renderer.On("TextToImage", mock.Anything, mock.Anything).
			Return(nil, errors.New("render down")).Twice()
		m.segmentRepo.On("SetGenerationResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil).Twice()
		m.clientPub.On("PublishClientUpdate", mock.Anything, mock.Anything).Return(nil)
		m.storyRepo.On("FinalizeGeneration", mock.Anything, mock.Anything, storyID, genID,
			models.GenerationError, mock.MatchedBy(func(details *string) bool {
				return details != nil && *details == "2 of 2 frames failed"
			})).Return(nil).Once()
		m.lock.On("Release", mock.Anything, userID, genID).Return(nil).Once()

		err := h.handleStoryGeneration(ctx, zap.NewNop(), generationPayload(storyID, userID, genID))
		assert.NoError(t, err)
		m.storyRepo.AssertExpectations(t)
		m.lock.AssertExpectations(t)
	})

	t.Run("Successful generation replaces stale frames and their blobs", func(t *testing.T) {
		h, m := newTestHandler(t)
		story := generationStory(storyID, userID, genID)
		oldVoice := "old-voice"
		oldSegment := &models.Segment{
			ID:      uuid.New(),
			StoryID: storyID,
			StructuredText: []models.StructuredTextLine{
				{LineID: "l1", Text: "Старая строка.", VoiceoverRef: &oldVoice},
			},
		}
		oldVersions := []*models.ImageVersion{
			{ID: uuid.New(), SegmentID: oldSegment.ID, ImageRef: "old-image", PreviewRef: "old-preview"},
		}

		m.storyRepo.On("GetByID", mock.Anything, mock.Anything, storyID).Return(story, nil).Once()
		m.aiClient.On("CompleteJSON", mock.Anything, mock.Anything, mock.Anything).
			Return(bibleJSON, ai.UsageInfo{}, nil).Once()
		m.storyRepo.On("SetContext", mock.Anything, mock.Anything, storyID, mock.Anything).Return(nil).Once()
		m.segmentRepo.On("ListByStoryID", mock.Anything, mock.Anything, storyID).
			Return([]*models.Segment{oldSegment}, nil).Once()
		m.versionRepo.On("ListBySegmentID", mock.Anything, mock.Anything, oldSegment.ID).
			Return(oldVersions, nil).Once()
		m.tx.On("WithTransaction", mock.Anything, mock.Anything).Return(nil).Times(3)
		m.segmentRepo.On("DeleteByStoryID", mock.Anything, mock.Anything, storyID).Return(nil).Once()
		m.segmentRepo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil).Twice()
		m.store.On("Delete", mock.Anything, "old-image").Return(nil).Once()
		m.store.On("Delete", mock.Anything, "old-preview").Return(nil).Once()
		m.store.On("Delete", mock.Anything, "old-voice").Return(nil).Once()
		m.creditsRepo.On("Consume", mock.Anything, mock.Anything, userID, models.CostImageGeneration).
			Return(nil).Twice()
		m.aiClient.On("CompleteJSON", mock.Anything, mock.Anything, mock.Anything).
			Return(`{"prompt":"neon street at night"}`, ai.UsageInfo{}, nil).Twice()
		m.renderer.On("TextToImage", mock.Anything, mock.Anything).
			Return(&render.Result{Image: testFrameBytes(t)}, nil).Twice()
		m.renderer.On("Upscale", mock.Anything, mock.Anything, 2).
			Return(nil, errors.New("upscale unavailable")).Twice()
		m.store.On("Save", mock.Anything, mock.Anything, "image/jpeg").Return("new-blob", nil)
		m.versionRepo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil).Twice()
		m.segmentRepo.On("SetSelectedVersion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil).Twice()
		m.segmentRepo.On("SetGenerationResult", mock.Anything, mock.Anything, mock.Anything, (*string)(nil)).
			Return(nil).Twice()
		m.clientPub.On("PublishClientUpdate", mock.Anything, mock.Anything).Return(nil)
		m.storyRepo.On("FinalizeGeneration", mock.Anything, mock.Anything, storyID, genID,
			models.GenerationCompleted, (*string)(nil)).Return(nil).Once()
		m.lock.On("Release", mock.Anything, userID, genID).Return(nil).Once()

		err := h.handleStoryGeneration(ctx, zap.NewNop(), generationPayload(storyID, userID, genID))
		assert.NoError(t, err)
		m.store.AssertExpectations(t)
		m.storyRepo.AssertExpectations(t)
	})

	t.Run("Empty script finalizes completed without touching segments", func(t *testing.T) {
		h, m := newTestHandler(t)
		story := generationStory(storyID, userID, genID)
		story.Script = "   "

		m.storyRepo.On("GetByID", mock.Anything, mock.Anything, storyID).Return(story, nil).Once()
		m.storyRepo.On("FinalizeGeneration", mock.Anything, mock.Anything, storyID, genID,
			models.GenerationCompleted, (*string)(nil)).Return(nil).Once()
		m.clientPub.On("PublishClientUpdate", mock.Anything, mock.Anything).Return(nil)
		m.lock.On("Release", mock.Anything, userID, genID).Return(nil).Once()

		err := h.handleStoryGeneration(ctx, zap.NewNop(), generationPayload(storyID, userID, genID))
		assert.NoError(t, err)
		m.segmentRepo.AssertNotCalled(t, "DeleteByStoryID")
		m.aiClient.AssertNotCalled(t, "CompleteJSON")
		m.storyRepo.AssertExpectations(t)
	})

	t.Run("Superseded epoch is skipped", func(t *testing.T) {
		h, m := newTestHandler(t)
		story := generationStory(storyID, userID, "gen-2")

		m.storyRepo.On("GetByID", mock.Anything, mock.Anything, storyID).Return(story, nil).Once()
		m.lock.On("Release", mock.Anything, userID, genID).Return(nil).Once()

		err := h.handleStoryGeneration(ctx, zap.NewNop(), generationPayload(storyID, userID, genID))
		assert.NoError(t, err)
		m.storyRepo.AssertNotCalled(t, "FinalizeGeneration")
	})
}

func TestRenderFrame(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	segmentID := uuid.New()

	t.Run("Version insert failure deletes both blobs", func(t *testing.T) {
		h, m := newTestHandler(t)

		m.renderer.On("TextToImage", mock.Anything, mock.Anything).
			Return(&render.Result{Image: testFrameBytes(t)}, nil).Once()
		m.renderer.On("Upscale", mock.Anything, mock.Anything, 2).
			Return(nil, errors.New("upscale unavailable")).Once()
		m.store.On("Save", mock.Anything, mock.Anything, "image/jpeg").Return("ref-image", nil).Once()
		m.store.On("Save", mock.Anything, mock.Anything, "image/jpeg").Return("ref-preview", nil).Once()
		m.versionRepo.On("Create", mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("insert failed")).Once()
		m.store.On("Delete", mock.Anything, "ref-image").Return(nil).Once()
		m.store.On("Delete", mock.Anything, "ref-preview").Return(nil).Once()

		version, err := h.renderFrame(ctx, zap.NewNop(), userID, segmentID, "prompt", nil, true, models.SourceAIGenerated)
		assert.ErrorIs(t, err, models.ErrImageSaveFailed)
		assert.Nil(t, version)
		m.store.AssertExpectations(t)
	})

	t.Run("Preview save failure deletes the frame blob", func(t *testing.T) {
		h, m := newTestHandler(t)

		m.renderer.On("TextToImage", mock.Anything, mock.Anything).
			Return(&render.Result{Image: testFrameBytes(t)}, nil).Once()
		m.renderer.On("Upscale", mock.Anything, mock.Anything, 2).
			Return(nil, errors.New("upscale unavailable")).Once()
		m.store.On("Save", mock.Anything, mock.Anything, "image/jpeg").Return("ref-image", nil).Once()
		m.store.On("Save", mock.Anything, mock.Anything, "image/jpeg").
			Return("", errors.New("storage down")).Once()
		m.store.On("Delete", mock.Anything, "ref-image").Return(nil).Once()

		version, err := h.renderFrame(ctx, zap.NewNop(), userID, segmentID, "prompt", nil, true, models.SourceAIGenerated)
		assert.ErrorIs(t, err, models.ErrImageSaveFailed)
		assert.Nil(t, version)
		m.versionRepo.AssertNotCalled(t, "Create")
		m.store.AssertExpectations(t)
	})

	t.Run("Flagged result is rejected before decoding", func(t *testing.T) {
		h, m := newTestHandler(t)

		m.renderer.On("TextToImage", mock.Anything, mock.Anything).
			Return(&render.Result{Image: testFrameBytes(t), NSFW: true}, nil).Once()

		_, err := h.renderFrame(ctx, zap.NewNop(), userID, segmentID, "prompt", nil, true, models.SourceAIGenerated)
		assert.ErrorIs(t, err, models.ErrContentFlagged)
		m.store.AssertNotCalled(t, "Save")
	})
}

func TestHandleLineVoiceover(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	storyID := uuid.New()
	segmentID := uuid.New()

	voiceoverPayload := func() messaging.GenerationTaskPayload {
		return messaging.GenerationTaskPayload{
			TaskID:    "task-1",
			TaskType:  messaging.TaskLineVoiceover,
			UserID:    userID.String(),
			SegmentID: segmentID.String(),
			LineID:    "l2",
			Voice:     "nova",
		}
	}
	segmentWithLines := func(neighborText, targetText string) *models.Segment {
		return &models.Segment{
			ID:      segmentID,
			StoryID: storyID,
			StructuredText: []models.StructuredTextLine{
				{LineID: "l1", Type: models.LineNarration, Text: neighborText},
				{LineID: "l2", Type: models.LineNarration, Text: targetText, IsGeneratingVoiceover: true},
			},
		}
	}

	t.Run("Only the target line is patched", func(t *testing.T) {
		h, m := newTestHandler(t)

		// Пока шел синтез, соседнюю строку успели отредактировать.
		m.segmentRepo.On("GetByID", mock.Anything, mock.Anything, segmentID).
			Return(segmentWithLines("Первая строка.", "Вторая строка."), nil).Once()
		m.aiClient.On("Speech", mock.Anything, "nova", "Вторая строка.").
			Return([]byte("mp3"), nil).Once()
		m.store.On("Save", mock.Anything, []byte("mp3"), "audio/mpeg").Return("ref-audio", nil).Once()
		m.tx.On("WithTransaction", mock.Anything, mock.Anything).Return(nil).Once()
		m.segmentRepo.On("GetByID", mock.Anything, mock.Anything, segmentID).
			Return(segmentWithLines("Соседа поправили.", "Вторая строка."), nil).Once()
		m.segmentRepo.On("SetStructuredText", mock.Anything, mock.Anything, segmentID,
			mock.MatchedBy(func(lines []models.StructuredTextLine) bool {
				return len(lines) == 2 &&
					lines[0].Text == "Соседа поправили." &&
					lines[1].VoiceoverRef != nil && *lines[1].VoiceoverRef == "ref-audio" &&
					!lines[1].IsGeneratingVoiceover && lines[1].VoiceoverError == nil
			})).Return(nil).Once()
		m.clientPub.On("PublishClientUpdate", mock.Anything, mock.Anything).Return(nil)

		err := h.handleLineVoiceover(ctx, zap.NewNop(), voiceoverPayload())
		assert.NoError(t, err)
		m.segmentRepo.AssertExpectations(t)
		m.store.AssertNotCalled(t, "Delete")
	})

	t.Run("Edited target line drops the synthesized audio", func(t *testing.T) {
		h, m := newTestHandler(t)

		m.segmentRepo.On("GetByID", mock.Anything, mock.Anything, segmentID).
			Return(segmentWithLines("Первая строка.", "Вторая строка."), nil).Once()
		m.aiClient.On("Speech", mock.Anything, "nova", "Вторая строка.").
			Return([]byte("mp3"), nil).Once()
		m.store.On("Save", mock.Anything, []byte("mp3"), "audio/mpeg").Return("ref-audio", nil).Once()
		m.tx.On("WithTransaction", mock.Anything, mock.Anything).Return(nil).Once()
		m.segmentRepo.On("GetByID", mock.Anything, mock.Anything, segmentID).
			Return(segmentWithLines("Первая строка.", "Совсем другой текст."), nil).Once()
		m.store.On("Delete", mock.Anything, "ref-audio").Return(nil).Once()

		err := h.handleLineVoiceover(ctx, zap.NewNop(), voiceoverPayload())
		assert.NoError(t, err)
		m.segmentRepo.AssertNotCalled(t, "SetStructuredText")
		m.clientPub.AssertNotCalled(t, "PublishClientUpdate")
		m.store.AssertExpectations(t)
	})

	t.Run("Synthesis failure records the error on the line only", func(t *testing.T) {
		h, m := newTestHandler(t)

		m.segmentRepo.On("GetByID", mock.Anything, mock.Anything, segmentID).
			Return(segmentWithLines("Первая строка.", "Вторая строка."), nil).Once()
		m.aiClient.On("Speech", mock.Anything, "nova", "Вторая строка.").
			Return(nil, errors.New("tts down")).Once()
		m.tx.On("WithTransaction", mock.Anything, mock.Anything).Return(nil).Once()
		m.segmentRepo.On("GetByID", mock.Anything, mock.Anything, segmentID).
			Return(segmentWithLines("Первая строка.", "Вторая строка."), nil).Once()
		m.segmentRepo.On("SetStructuredText", mock.Anything, mock.Anything, segmentID,
			mock.MatchedBy(func(lines []models.StructuredTextLine) bool {
				return len(lines) == 2 &&
					lines[0].VoiceoverError == nil &&
					lines[1].VoiceoverError != nil &&
					!lines[1].IsGeneratingVoiceover
			})).Return(nil).Once()
		m.clientPub.On("PublishClientUpdate", mock.Anything, mock.Anything).Return(nil)

		err := h.handleLineVoiceover(ctx, zap.NewNop(), voiceoverPayload())
		assert.Error(t, err)
		m.segmentRepo.AssertExpectations(t)
	})

	t.Run("Missing line is skipped", func(t *testing.T) {
		h, m := newTestHandler(t)
		segment := &models.Segment{ID: segmentID, StoryID: storyID}

		m.segmentRepo.On("GetByID", mock.Anything, mock.Anything, segmentID).Return(segment, nil).Once()

		err := h.handleLineVoiceover(ctx, zap.NewNop(), voiceoverPayload())
		assert.NoError(t, err)
		m.aiClient.AssertNotCalled(t, "Speech")
	})
}
