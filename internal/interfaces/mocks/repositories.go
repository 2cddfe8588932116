package mocks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/models"
)

// Mock StoryRepository
type StoryRepository struct {
	mock.Mock
}

func (m *StoryRepository) Create(ctx context.Context, q interfaces.DBTX, story *models.Story) error {
	args := m.Called(ctx, q, story)
	return args.Error(0)
}
func (m *StoryRepository) GetByID(ctx context.Context, q interfaces.DBTX, id uuid.UUID) (*models.Story, error) {
	args := m.Called(ctx, q, id)
	story, _ := args.Get(0).(*models.Story)
	return story, args.Error(1)
}
func (m *StoryRepository) ListByUserID(ctx context.Context, q interfaces.DBTX, userID uuid.UUID, status *models.StoryStatus) ([]*models.Story, error) {
	args := m.Called(ctx, q, userID, status)
	stories, _ := args.Get(0).([]*models.Story)
	return stories, args.Error(1)
}
func (m *StoryRepository) UpdateFields(ctx context.Context, q interfaces.DBTX, id uuid.UUID, title, script, stylePrompt *string, format *models.StoryFormat) error {
	args := m.Called(ctx, q, id, title, script, stylePrompt, format)
	return args.Error(0)
}
func (m *StoryRepository) UpdateStatus(ctx context.Context, q interfaces.DBTX, id uuid.UUID, status models.StoryStatus) error {
	args := m.Called(ctx, q, id, status)
	return args.Error(0)
}
func (m *StoryRepository) Delete(ctx context.Context, q interfaces.DBTX, id uuid.UUID) error {
	args := m.Called(ctx, q, id)
	return args.Error(0)
}
func (m *StoryRepository) StartGeneration(ctx context.Context, q interfaces.DBTX, id uuid.UUID, generationID string) error {
	args := m.Called(ctx, q, id, generationID)
	return args.Error(0)
}
func (m *StoryRepository) SetContext(ctx context.Context, q interfaces.DBTX, id uuid.UUID, contextJSON json.RawMessage) error {
	args := m.Called(ctx, q, id, contextJSON)
	return args.Error(0)
}
func (m *StoryRepository) FinalizeGeneration(ctx context.Context, q interfaces.DBTX, id uuid.UUID, generationID string, status models.GenerationStatus, errDetails *string) error {
	args := m.Called(ctx, q, id, generationID, status, errDetails)
	return args.Error(0)
}
func (m *StoryRepository) SetGenerationStatus(ctx context.Context, q interfaces.DBTX, id uuid.UUID, status models.GenerationStatus, errDetails *string) error {
	args := m.Called(ctx, q, id, status, errDetails)
	return args.Error(0)
}
func (m *StoryRepository) UpdateScript(ctx context.Context, q interfaces.DBTX, id uuid.UUID, script string) error {
	args := m.Called(ctx, q, id, script)
	return args.Error(0)
}

// Mock SegmentRepository
type SegmentRepository struct {
	mock.Mock
}

func (m *SegmentRepository) Create(ctx context.Context, q interfaces.DBTX, segment *models.Segment) error {
	args := m.Called(ctx, q, segment)
	return args.Error(0)
}
func (m *SegmentRepository) GetByID(ctx context.Context, q interfaces.DBTX, id uuid.UUID) (*models.Segment, error) {
	args := m.Called(ctx, q, id)
	segment, _ := args.Get(0).(*models.Segment)
	return segment, args.Error(1)
}
func (m *SegmentRepository) ListByStoryID(ctx context.Context, q interfaces.DBTX, storyID uuid.UUID) ([]*models.Segment, error) {
	args := m.Called(ctx, q, storyID)
	segments, _ := args.Get(0).([]*models.Segment)
	return segments, args.Error(1)
}
func (m *SegmentRepository) UpdateText(ctx context.Context, q interfaces.DBTX, id uuid.UUID, text string) error {
	args := m.Called(ctx, q, id, text)
	return args.Error(0)
}
func (m *SegmentRepository) SetGenerating(ctx context.Context, q interfaces.DBTX, id uuid.UUID, generating bool) error {
	args := m.Called(ctx, q, id, generating)
	return args.Error(0)
}
func (m *SegmentRepository) SetGenerationResult(ctx context.Context, q interfaces.DBTX, id uuid.UUID, errDetails *string) error {
	args := m.Called(ctx, q, id, errDetails)
	return args.Error(0)
}
func (m *SegmentRepository) SetSelectedVersion(ctx context.Context, q interfaces.DBTX, id uuid.UUID, versionID uuid.UUID) error {
	args := m.Called(ctx, q, id, versionID)
	return args.Error(0)
}
func (m *SegmentRepository) SetStructuredText(ctx context.Context, q interfaces.DBTX, id uuid.UUID, lines []models.StructuredTextLine) error {
	args := m.Called(ctx, q, id, lines)
	return args.Error(0)
}
func (m *SegmentRepository) Delete(ctx context.Context, q interfaces.DBTX, id uuid.UUID) error {
	args := m.Called(ctx, q, id)
	return args.Error(0)
}
func (m *SegmentRepository) MaxOrder(ctx context.Context, q interfaces.DBTX, storyID uuid.UUID) (int, error) {
	args := m.Called(ctx, q, storyID)
	return args.Int(0), args.Error(1)
}
func (m *SegmentRepository) ShiftOrdersAfter(ctx context.Context, q interfaces.DBTX, storyID uuid.UUID, order int) error {
	args := m.Called(ctx, q, storyID, order)
	return args.Error(0)
}
func (m *SegmentRepository) Reorder(ctx context.Context, q interfaces.DBTX, storyID uuid.UUID, ids []uuid.UUID) error {
	args := m.Called(ctx, q, storyID, ids)
	return args.Error(0)
}
func (m *SegmentRepository) DeleteByStoryID(ctx context.Context, q interfaces.DBTX, storyID uuid.UUID) error {
	args := m.Called(ctx, q, storyID)
	return args.Error(0)
}

// Mock ImageVersionRepository
type ImageVersionRepository struct {
	mock.Mock
}

func (m *ImageVersionRepository) Create(ctx context.Context, q interfaces.DBTX, version *models.ImageVersion) error {
	args := m.Called(ctx, q, version)
	return args.Error(0)
}
func (m *ImageVersionRepository) GetByID(ctx context.Context, q interfaces.DBTX, id uuid.UUID) (*models.ImageVersion, error) {
	args := m.Called(ctx, q, id)
	version, _ := args.Get(0).(*models.ImageVersion)
	return version, args.Error(1)
}
func (m *ImageVersionRepository) ListBySegmentID(ctx context.Context, q interfaces.DBTX, segmentID uuid.UUID) ([]*models.ImageVersion, error) {
	args := m.Called(ctx, q, segmentID)
	versions, _ := args.Get(0).([]*models.ImageVersion)
	return versions, args.Error(1)
}
func (m *ImageVersionRepository) SetPreviewRef(ctx context.Context, q interfaces.DBTX, id uuid.UUID, previewRef string) error {
	args := m.Called(ctx, q, id, previewRef)
	return args.Error(0)
}
func (m *ImageVersionRepository) DeleteBySegmentID(ctx context.Context, q interfaces.DBTX, segmentID uuid.UUID) error {
	args := m.Called(ctx, q, segmentID)
	return args.Error(0)
}

// Mock TransitionRepository
type TransitionRepository struct {
	mock.Mock
}

func (m *TransitionRepository) Upsert(ctx context.Context, q interfaces.DBTX, transition *models.Transition) error {
	args := m.Called(ctx, q, transition)
	return args.Error(0)
}
func (m *TransitionRepository) DeleteByAfterSegmentID(ctx context.Context, q interfaces.DBTX, afterSegmentID uuid.UUID) error {
	args := m.Called(ctx, q, afterSegmentID)
	return args.Error(0)
}
func (m *TransitionRepository) ListByStoryID(ctx context.Context, q interfaces.DBTX, storyID uuid.UUID) ([]*models.Transition, error) {
	args := m.Called(ctx, q, storyID)
	transitions, _ := args.Get(0).([]*models.Transition)
	return transitions, args.Error(1)
}

// Mock CreditsRepository
type CreditsRepository struct {
	mock.Mock
}

func (m *CreditsRepository) Get(ctx context.Context, q interfaces.DBTX, userID uuid.UUID) (*models.Credits, error) {
	args := m.Called(ctx, q, userID)
	credits, _ := args.Get(0).(*models.Credits)
	return credits, args.Error(1)
}
func (m *CreditsRepository) Consume(ctx context.Context, q interfaces.DBTX, userID uuid.UUID, amount int) error {
	args := m.Called(ctx, q, userID, amount)
	return args.Error(0)
}
func (m *CreditsRepository) Add(ctx context.Context, q interfaces.DBTX, userID uuid.UUID, amount int) error {
	args := m.Called(ctx, q, userID, amount)
	return args.Error(0)
}

// Mock DecorImageRepository
type DecorImageRepository struct {
	mock.Mock
}

func (m *DecorImageRepository) Create(ctx context.Context, q interfaces.DBTX, img *models.DecorImage) error {
	args := m.Called(ctx, q, img)
	return args.Error(0)
}
func (m *DecorImageRepository) GetByID(ctx context.Context, q interfaces.DBTX, id uuid.UUID) (*models.DecorImage, error) {
	args := m.Called(ctx, q, id)
	img, _ := args.Get(0).(*models.DecorImage)
	return img, args.Error(1)
}
func (m *DecorImageRepository) ListByUserID(ctx context.Context, q interfaces.DBTX, userID uuid.UUID, limit int) ([]*models.DecorImage, error) {
	args := m.Called(ctx, q, userID, limit)
	images, _ := args.Get(0).([]*models.DecorImage)
	return images, args.Error(1)
}
func (m *DecorImageRepository) TransitionState(ctx context.Context, q interfaces.DBTX, id uuid.UUID, expected, next models.DecorState) error {
	args := m.Called(ctx, q, id, expected, next)
	return args.Error(0)
}
func (m *DecorImageRepository) SetGenerated(ctx context.Context, q interfaces.DBTX, id uuid.UUID, decoratedRef, decoratedURL string) error {
	args := m.Called(ctx, q, id, decoratedRef, decoratedURL)
	return args.Error(0)
}
func (m *DecorImageRepository) SetError(ctx context.Context, q interfaces.DBTX, id uuid.UUID, state models.DecorState, errDetails string) error {
	args := m.Called(ctx, q, id, state, errDetails)
	return args.Error(0)
}
func (m *DecorImageRepository) ClearDecorated(ctx context.Context, q interfaces.DBTX, id uuid.UUID) error {
	args := m.Called(ctx, q, id)
	return args.Error(0)
}
func (m *DecorImageRepository) Delete(ctx context.Context, q interfaces.DBTX, id uuid.UUID) error {
	args := m.Called(ctx, q, id)
	return args.Error(0)
}

// Mock InboxRepository
type InboxRepository struct {
	mock.Mock
}

func (m *InboxRepository) CreateAgent(ctx context.Context, q interfaces.DBTX, agent *models.Agent) error {
	args := m.Called(ctx, q, agent)
	return args.Error(0)
}
func (m *InboxRepository) GetAgent(ctx context.Context, q interfaces.DBTX, id uuid.UUID) (*models.Agent, error) {
	args := m.Called(ctx, q, id)
	agent, _ := args.Get(0).(*models.Agent)
	return agent, args.Error(1)
}
func (m *InboxRepository) ListAgents(ctx context.Context, q interfaces.DBTX, userID uuid.UUID) ([]*models.Agent, error) {
	args := m.Called(ctx, q, userID)
	agents, _ := args.Get(0).([]*models.Agent)
	return agents, args.Error(1)
}
func (m *InboxRepository) DeleteAgent(ctx context.Context, q interfaces.DBTX, id uuid.UUID) error {
	args := m.Called(ctx, q, id)
	return args.Error(0)
}
func (m *InboxRepository) CreateConversation(ctx context.Context, q interfaces.DBTX, conv *models.Conversation) error {
	args := m.Called(ctx, q, conv)
	return args.Error(0)
}
func (m *InboxRepository) GetConversation(ctx context.Context, q interfaces.DBTX, id uuid.UUID) (*models.Conversation, error) {
	args := m.Called(ctx, q, id)
	conv, _ := args.Get(0).(*models.Conversation)
	return conv, args.Error(1)
}
func (m *InboxRepository) ListConversations(ctx context.Context, q interfaces.DBTX, userID uuid.UUID) ([]*models.Conversation, error) {
	args := m.Called(ctx, q, userID)
	convs, _ := args.Get(0).([]*models.Conversation)
	return convs, args.Error(1)
}
func (m *InboxRepository) DeleteConversation(ctx context.Context, q interfaces.DBTX, id uuid.UUID) error {
	args := m.Called(ctx, q, id)
	return args.Error(0)
}
func (m *InboxRepository) CreateMessage(ctx context.Context, q interfaces.DBTX, msg *models.ConversationMessage) error {
	args := m.Called(ctx, q, msg)
	return args.Error(0)
}
func (m *InboxRepository) ListMessages(ctx context.Context, q interfaces.DBTX, conversationID uuid.UUID) ([]*models.ConversationMessage, error) {
	args := m.Called(ctx, q, conversationID)
	msgs, _ := args.Get(0).([]*models.ConversationMessage)
	return msgs, args.Error(1)
}

// Mock GenerationLock
type GenerationLock struct {
	mock.Mock
}

func (m *GenerationLock) Acquire(ctx context.Context, userID uuid.UUID, generationID string) error {
	args := m.Called(ctx, userID, generationID)
	return args.Error(0)
}
func (m *GenerationLock) Release(ctx context.Context, userID uuid.UUID, generationID string) error {
	args := m.Called(ctx, userID, generationID)
	return args.Error(0)
}
