package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type setTransitionRequest struct {
	Type       string `json:"type" binding:"required"`
	DurationMs int    `json:"durationMs" binding:"required"`
}

func (h *APIHandler) setTransition(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	afterSegmentID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	var req setTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	transition, err := h.transitions.SetTransition(c.Request.Context(), userID, afterSegmentID, req.Type, req.DurationMs)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	if transition == nil {
		// Записан "cut": перехода больше нет.
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, transition)
}

func (h *APIHandler) cutTransition(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	afterSegmentID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	if err := h.transitions.CutTransition(c.Request.Context(), userID, afterSegmentID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) listTransitions(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	storyID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	transitions, err := h.transitions.ListTransitions(c.Request.Context(), userID, storyID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, transitions)
}
