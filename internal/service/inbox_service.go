package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/messaging"
	"storyreel-server/internal/models"
)

// InboxService defines the interface for agents and their conversations.
type InboxService interface {
	CreateAgent(ctx context.Context, userID uuid.UUID, name, description, personality string) (*models.Agent, error)
	ListAgents(ctx context.Context, userID uuid.UUID) ([]*models.Agent, error)
	DeleteAgent(ctx context.Context, id, userID uuid.UUID) error

	StartConversation(ctx context.Context, userID, agentID uuid.UUID, title string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error)
	GetConversation(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, []*models.ConversationMessage, error)
	DeleteConversation(ctx context.Context, id, userID uuid.UUID) error

	// SendMessage сохраняет сообщение пользователя и ставит задачу
	// генерации ответа агента.
	SendMessage(ctx context.Context, conversationID, userID uuid.UUID, content string) (*models.ConversationMessage, error)
}

type inboxServiceImpl struct {
	pool      *pgxpool.Pool
	txHelper  interfaces.TxManager
	inboxRepo interfaces.InboxRepository
	publisher messaging.TaskPublisher
	logger    *zap.Logger
}

// NewInboxService creates a new instance of InboxService.
func NewInboxService(
	pool *pgxpool.Pool,
	txHelper interfaces.TxManager,
	inboxRepo interfaces.InboxRepository,
	publisher messaging.TaskPublisher,
	logger *zap.Logger,
) InboxService {
	return &inboxServiceImpl{
		pool:      pool,
		txHelper:  txHelper,
		inboxRepo: inboxRepo,
		publisher: publisher,
		logger:    logger.Named("InboxService"),
	}
}

func (s *inboxServiceImpl) getOwnedConversation(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, error) {
	conv, err := s.inboxRepo.GetConversation(ctx, s.pool, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, models.ErrForbidden
	}
	return conv, nil
}

func (s *inboxServiceImpl) CreateAgent(ctx context.Context, userID uuid.UUID, name, description, personality string) (*models.Agent, error) {
	agent := &models.Agent{
		UserID:      userID,
		Name:        name,
		Description: description,
		Personality: personality,
	}
	if err := s.inboxRepo.CreateAgent(ctx, s.pool, agent); err != nil {
		s.logger.Error("Error creating agent", zap.String("userID", userID.String()), zap.Error(err))
		return nil, fmt.Errorf("error creating agent: %w", err)
	}
	s.logger.Info("Agent created", zap.String("agentID", agent.ID.String()), zap.String("name", name))
	return agent, nil
}

func (s *inboxServiceImpl) ListAgents(ctx context.Context, userID uuid.UUID) ([]*models.Agent, error) {
	return s.inboxRepo.ListAgents(ctx, s.pool, userID)
}

func (s *inboxServiceImpl) DeleteAgent(ctx context.Context, id, userID uuid.UUID) error {
	agent, err := s.inboxRepo.GetAgent(ctx, s.pool, id)
	if err != nil {
		return err
	}
	if agent.UserID != userID {
		return models.ErrForbidden
	}
	if err := s.inboxRepo.DeleteAgent(ctx, s.pool, id); err != nil {
		s.logger.Error("Error deleting agent", zap.String("agentID", id.String()), zap.Error(err))
		return fmt.Errorf("error deleting agent: %w", err)
	}
	return nil
}

func (s *inboxServiceImpl) StartConversation(ctx context.Context, userID, agentID uuid.UUID, title string) (*models.Conversation, error) {
	agent, err := s.inboxRepo.GetAgent(ctx, s.pool, agentID)
	if err != nil {
		return nil, err
	}
	if agent.UserID != userID {
		return nil, models.ErrForbidden
	}
	if title == "" {
		title = agent.Name
	}

	conv := &models.Conversation{UserID: userID, AgentID: agentID, Title: title}
	if err := s.inboxRepo.CreateConversation(ctx, s.pool, conv); err != nil {
		s.logger.Error("Error creating conversation", zap.String("agentID", agentID.String()), zap.Error(err))
		return nil, fmt.Errorf("error creating conversation: %w", err)
	}
	return conv, nil
}

func (s *inboxServiceImpl) ListConversations(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	return s.inboxRepo.ListConversations(ctx, s.pool, userID)
}

func (s *inboxServiceImpl) GetConversation(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, []*models.ConversationMessage, error) {
	conv, err := s.getOwnedConversation(ctx, id, userID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.inboxRepo.ListMessages(ctx, s.pool, id)
	if err != nil {
		return nil, nil, fmt.Errorf("error listing messages: %w", err)
	}
	return conv, messages, nil
}

func (s *inboxServiceImpl) DeleteConversation(ctx context.Context, id, userID uuid.UUID) error {
	if _, err := s.getOwnedConversation(ctx, id, userID); err != nil {
		return err
	}
	if err := s.inboxRepo.DeleteConversation(ctx, s.pool, id); err != nil {
		s.logger.Error("Error deleting conversation", zap.String("conversationID", id.String()), zap.Error(err))
		return fmt.Errorf("error deleting conversation: %w", err)
	}
	return nil
}

func (s *inboxServiceImpl) SendMessage(ctx context.Context, conversationID, userID uuid.UUID, content string) (*models.ConversationMessage, error) {
	log := s.logger.With(zap.String("conversationID", conversationID.String()))

	if content == "" {
		return nil, fmt.Errorf("empty message content")
	}
	if _, err := s.getOwnedConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	msg := &models.ConversationMessage{
		ConversationID: conversationID,
		Author:         models.AuthorUser,
		Content:        content,
	}
	if err := s.inboxRepo.CreateMessage(ctx, s.pool, msg); err != nil {
		log.Error("Error saving message", zap.Error(err))
		return nil, fmt.Errorf("error saving message: %w", err)
	}

	payload := messaging.GenerationTaskPayload{
		TaskID:         uuid.New().String(),
		TaskType:       messaging.TaskAgentReply,
		UserID:         userID.String(),
		ConversationID: conversationID.String(),
	}
	if err := s.publisher.PublishGenerationTask(ctx, payload); err != nil {
		// Сообщение пользователя уже сохранено, ответ можно запросить
		// повторной отправкой.
		log.Error("Error publishing agent reply task", zap.Error(err))
		return msg, fmt.Errorf("error publishing agent reply task: %w", err)
	}
	log.Info("Agent reply task published", zap.String("taskID", payload.TaskID))
	return msg, nil
}
