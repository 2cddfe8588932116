package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storyreel-server/internal/models"
	"storyreel-server/internal/service"
)

type createStoryRequest struct {
	Title  string  `json:"title" binding:"required"`
	Script string  `json:"script"`
	Format *string `json:"format"`
}

type updateStoryRequest struct {
	Title       *string `json:"title"`
	Script      *string `json:"script"`
	StylePrompt *string `json:"stylePrompt"`
	Format      *string `json:"format"`
}

type updateStoryStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type guidedStoryRequest struct {
	Description string `json:"description" binding:"required"`
}

type storyWithSegmentsResponse struct {
	Story    *models.Story     `json:"story"`
	Segments []*models.Segment `json:"segments"`
}

func (h *APIHandler) createStory(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	var req createStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	story, err := h.stories.CreateStory(c.Request.Context(), userID, req.Title, req.Script, req.Format)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusCreated, story)
}

func (h *APIHandler) listStories(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	var status *models.StoryStatus
	if s := c.Query("status"); s != "" {
		st := models.StoryStatus(s)
		status = &st
	}

	stories, err := h.stories.ListStories(c.Request.Context(), userID, status)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, stories)
}

func (h *APIHandler) getStory(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	story, segments, err := h.stories.GetStory(c.Request.Context(), id, userID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, storyWithSegmentsResponse{Story: story, Segments: segments})
}

func (h *APIHandler) updateStory(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	var req updateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	story, err := h.stories.UpdateStory(c.Request.Context(), id, userID, service.StoryUpdate{
		Title:       req.Title,
		Script:      req.Script,
		StylePrompt: req.StylePrompt,
		Format:      req.Format,
	})
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (h *APIHandler) updateStoryStatus(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	var req updateStoryStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	if err := h.stories.UpdateStatus(c.Request.Context(), id, userID, models.StoryStatus(req.Status)); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) deleteStory(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	if err := h.stories.DeleteStory(c.Request.Context(), id, userID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) generateGuidedStory(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	var req guidedStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	if err := h.stories.GenerateGuidedStory(c.Request.Context(), id, userID, req.Description); err != nil {
		h.logger.Warn("Guided story rejected", zap.String("storyID", id.String()), zap.Error(err))
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *APIHandler) generateSegments(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	if err := h.stories.GenerateSegments(c.Request.Context(), id, userID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusAccepted)
}
