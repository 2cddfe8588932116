package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"storyreel-server/internal/models"
)

type startDecorationRequest struct {
	BaseImage models.DecorBaseImage `json:"base_image" binding:"required"`
}

func (h *APIHandler) uploadDecorImage(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}

	data, contentType, ok := readUpload(c)
	if !ok {
		return
	}

	// Настройки декорирования опциональны, приходят полем формы или query.
	var settings json.RawMessage
	if raw := c.PostForm("settings"); raw != "" {
		settings = json.RawMessage(raw)
	} else if raw := c.Query("settings"); raw != "" {
		settings = json.RawMessage(raw)
	}
	if settings != nil && !json.Valid(settings) {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid settings JSON"})
		return
	}

	img, err := h.decor.Upload(c.Request.Context(), userID, data, contentType, settings)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusCreated, img)
}

func (h *APIHandler) listDecorImages(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}

	images, err := h.decor.List(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, images)
}

func (h *APIHandler) getDecorImage(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	img, err := h.decor.Get(c.Request.Context(), id, userID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, img)
}

func (h *APIHandler) startDecoration(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req startDecorationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request: " + err.Error()})
		return
	}

	if err := h.decor.StartDecoration(c.Request.Context(), id, userID, req.BaseImage); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *APIHandler) deleteDecorImage(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	if err := h.decor.Delete(c.Request.Context(), id, userID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}
