package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyreel-server/internal/messaging"
	"storyreel-server/internal/models"
)

// handleAgentReply генерирует ответ агента на последнее сообщение диалога.
func (h *Handler) handleAgentReply(ctx context.Context, log *zap.Logger, payload messaging.GenerationTaskPayload) error {
	conversationID, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		return fmt.Errorf("invalid conversation id %q: %w", payload.ConversationID, err)
	}
	log = log.With(zap.String("conversation_id", payload.ConversationID))

	conv, err := h.inboxRepo.GetConversation(ctx, h.pool, conversationID)
	if err != nil {
		return err
	}
	agent, err := h.inboxRepo.GetAgent(ctx, h.pool, conv.AgentID)
	if err != nil {
		return err
	}
	history, err := h.inboxRepo.ListMessages(ctx, h.pool, conversationID)
	if err != nil {
		return err
	}
	if len(history) == 0 || history[len(history)-1].Author != models.AuthorUser {
		log.Info("No pending user message, skipping agent reply")
		return nil
	}

	reply, err := h.director.AgentReply(ctx, agent, history)
	if err != nil {
		log.Error("Agent reply generation failed", zap.Error(err))
		h.publishUpdate(ctx, log, messaging.ClientUpdatePayload{
			UserID:       payload.UserID,
			UpdateType:   messaging.UpdateTypeInbox,
			EntityID:     payload.ConversationID,
			Status:       "error",
			ErrorDetails: errText(err),
		})
		return err
	}

	msg := &models.ConversationMessage{
		ConversationID: conversationID,
		Author:         models.AuthorAgent,
		Content:        reply,
	}
	if err := h.inboxRepo.CreateMessage(ctx, h.pool, msg); err != nil {
		log.Error("Failed to save agent reply", zap.Error(err))
		return err
	}

	h.publishUpdate(ctx, log, messaging.ClientUpdatePayload{
		UserID:     payload.UserID,
		UpdateType: messaging.UpdateTypeInbox,
		EntityID:   payload.ConversationID,
		Status:     "completed",
	})
	return nil
}
