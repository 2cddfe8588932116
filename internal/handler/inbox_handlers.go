package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storyreel-server/internal/models"
)

type createAgentRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description" binding:"max=500"`
	Personality string `json:"personality" binding:"max=2000"`
}

type startConversationRequest struct {
	AgentID uuid.UUID `json:"agent_id" binding:"required"`
	Title   string    `json:"title" binding:"max=200"`
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required,max=4000"`
}

type conversationResponse struct {
	Conversation *models.Conversation          `json:"conversation"`
	Messages     []*models.ConversationMessage `json:"messages"`
}

func (h *APIHandler) createAgent(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}

	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request: " + err.Error()})
		return
	}

	agent, err := h.inbox.CreateAgent(c.Request.Context(), userID, req.Name, req.Description, req.Personality)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusCreated, agent)
}

func (h *APIHandler) listAgents(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}

	agents, err := h.inbox.ListAgents(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, agents)
}

func (h *APIHandler) deleteAgent(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	if err := h.inbox.DeleteAgent(c.Request.Context(), id, userID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) startConversation(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}

	var req startConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request: " + err.Error()})
		return
	}
	conv, err := h.inbox.StartConversation(c.Request.Context(), userID, req.AgentID, req.Title)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *APIHandler) listConversations(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}

	convs, err := h.inbox.ListConversations(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *APIHandler) getConversation(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	conv, messages, err := h.inbox.GetConversation(c.Request.Context(), id, userID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, conversationResponse{Conversation: conv, Messages: messages})
}

func (h *APIHandler) deleteConversation(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	if err := h.inbox.DeleteConversation(c.Request.Context(), id, userID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) sendMessage(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request: " + err.Error()})
		return
	}

	msg, err := h.inbox.SendMessage(c.Request.Context(), id, userID, req.Content)
	if err != nil {
		// Сообщение уже сохранено, клиент получит ответ агента позже при повторной доставке.
		if msg != nil {
			c.JSON(http.StatusAccepted, msg)
			return
		}
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
