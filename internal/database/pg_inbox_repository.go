package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/models"
)

// Compile-time check to ensure pgInboxRepository implements InboxRepository
var _ interfaces.InboxRepository = (*pgInboxRepository)(nil)

type pgInboxRepository struct {
	logger *zap.Logger
}

// NewPgInboxRepository creates a new PostgreSQL-backed InboxRepository.
func NewPgInboxRepository(logger *zap.Logger) interfaces.InboxRepository {
	return &pgInboxRepository{logger: logger.Named("PgInboxRepo")}
}

func (r *pgInboxRepository) CreateAgent(ctx context.Context, q interfaces.DBTX, agent *models.Agent) error {
	query := `INSERT INTO agents (user_id, name, description, personality) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	err := q.QueryRow(ctx, query, agent.UserID, agent.Name, agent.Description, agent.Personality).
		Scan(&agent.ID, &agent.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create agent", zap.Error(err), zap.String("userID", agent.UserID.String()))
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

func (r *pgInboxRepository) GetAgent(ctx context.Context, q interfaces.DBTX, id uuid.UUID) (*models.Agent, error) {
	query := `SELECT id, user_id, name, description, personality, created_at FROM agents WHERE id = $1`
	agent := &models.Agent{}
	err := q.QueryRow(ctx, query, id).Scan(
		&agent.ID, &agent.UserID, &agent.Name, &agent.Description, &agent.Personality, &agent.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return agent, nil
}

func (r *pgInboxRepository) ListAgents(ctx context.Context, q interfaces.DBTX, userID uuid.UUID) ([]*models.Agent, error) {
	query := `SELECT id, user_id, name, description, personality, created_at FROM agents WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		agent := &models.Agent{}
		if err := rows.Scan(&agent.ID, &agent.UserID, &agent.Name, &agent.Description, &agent.Personality, &agent.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent row: %w", err)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

func (r *pgInboxRepository) DeleteAgent(ctx context.Context, q interfaces.DBTX, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAgentNotFound
	}
	return nil
}

func (r *pgInboxRepository) CreateConversation(ctx context.Context, q interfaces.DBTX, conv *models.Conversation) error {
	query := `INSERT INTO conversations (user_id, agent_id, title) VALUES ($1, $2, $3) RETURNING id, created_at`
	err := q.QueryRow(ctx, query, conv.UserID, conv.AgentID, conv.Title).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create conversation", zap.Error(err), zap.String("userID", conv.UserID.String()))
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (r *pgInboxRepository) GetConversation(ctx context.Context, q interfaces.DBTX, id uuid.UUID) (*models.Conversation, error) {
	query := `SELECT id, user_id, agent_id, title, created_at FROM conversations WHERE id = $1`
	conv := &models.Conversation{}
	err := q.QueryRow(ctx, query, id).Scan(&conv.ID, &conv.UserID, &conv.AgentID, &conv.Title, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

func (r *pgInboxRepository) ListConversations(ctx context.Context, q interfaces.DBTX, userID uuid.UUID) ([]*models.Conversation, error) {
	query := `SELECT id, user_id, agent_id, title, created_at FROM conversations WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		conv := &models.Conversation{}
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.AgentID, &conv.Title, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (r *pgInboxRepository) DeleteConversation(ctx context.Context, q interfaces.DBTX, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConversationNotFound
	}
	return nil
}

func (r *pgInboxRepository) CreateMessage(ctx context.Context, q interfaces.DBTX, msg *models.ConversationMessage) error {
	query := `INSERT INTO conversation_messages (conversation_id, author, content) VALUES ($1, $2, $3) RETURNING id, created_at`
	err := q.QueryRow(ctx, query, msg.ConversationID, msg.Author, msg.Content).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create message", zap.Error(err), zap.String("conversationID", msg.ConversationID.String()))
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *pgInboxRepository) ListMessages(ctx context.Context, q interfaces.DBTX, conversationID uuid.UUID) ([]*models.ConversationMessage, error) {
	query := `SELECT id, conversation_id, author, content, created_at FROM conversation_messages
		WHERE conversation_id = $1 ORDER BY created_at ASC`
	rows, err := q.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.ConversationMessage
	for rows.Next() {
		msg := &models.ConversationMessage{}
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Author, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
