package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storyreel-server/internal/models"
)

// maxUploadSize ограничивает размер загружаемого изображения.
const maxUploadSize = 20 << 20 // 20 MiB

type addSegmentRequest struct {
	Text string `json:"text"`
}

type updateSegmentTextRequest struct {
	Text string `json:"text" binding:"required"`
}

type reorderSegmentsRequest struct {
	SegmentIDs []uuid.UUID `json:"segmentIds" binding:"required"`
}

type editImageRequest struct {
	VersionID  uuid.UUID `json:"versionId" binding:"required"`
	EditPrompt string    `json:"editPrompt" binding:"required"`
}

type selectVersionRequest struct {
	VersionID uuid.UUID `json:"versionId" binding:"required"`
}

type replaceStructuredTextRequest struct {
	Lines []models.StructuredTextLine `json:"lines" binding:"required"`
}

type voiceoverRequest struct {
	Voice string `json:"voice" binding:"required"`
}

func (h *APIHandler) getSegment(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	segmentID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	segment, err := h.segments.GetSegment(c.Request.Context(), segmentID, userID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, segment)
}

func (h *APIHandler) addSegment(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	storyID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	var req addSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	segment, err := h.segments.AddSegment(c.Request.Context(), storyID, userID, req.Text)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusCreated, segment)
}

func (h *APIHandler) updateSegmentText(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	segmentID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	var req updateSegmentTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	if err := h.segments.UpdateText(c.Request.Context(), segmentID, userID, req.Text); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) deleteSegment(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	segmentID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	if err := h.segments.DeleteSegment(c.Request.Context(), segmentID, userID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) reorderSegments(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	storyID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	var req reorderSegmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	if err := h.segments.Reorder(c.Request.Context(), storyID, userID, req.SegmentIDs); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) regenerateImage(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	segmentID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	if err := h.segments.RegenerateImage(c.Request.Context(), segmentID, userID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *APIHandler) editImage(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	segmentID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	var req editImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	if err := h.segments.EditImage(c.Request.Context(), segmentID, userID, req.VersionID, req.EditPrompt); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *APIHandler) listVersions(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	segmentID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	versions, err := h.segments.ListVersions(c.Request.Context(), segmentID, userID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, versions)
}

func (h *APIHandler) selectVersion(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	segmentID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	var req selectVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	if err := h.segments.SelectVersion(c.Request.Context(), segmentID, userID, req.VersionID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) uploadVersion(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	segmentID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	data, contentType, ok := readUpload(c)
	if !ok {
		return
	}

	version, err := h.segments.UploadVersion(c.Request.Context(), segmentID, userID, data, contentType)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusCreated, version)
}

func (h *APIHandler) replaceStructuredText(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	segmentID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	var req replaceStructuredTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	if err := h.segments.ReplaceStructuredText(c.Request.Context(), segmentID, userID, req.Lines); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) generateVoiceover(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	segmentID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	lineID := c.Param("lineId")
	var req voiceoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	if err := h.segments.GenerateVoiceover(c.Request.Context(), segmentID, userID, lineID, req.Voice); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *APIHandler) deleteVoiceover(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}
	segmentID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	lineID := c.Param("lineId")

	if err := h.segments.DeleteVoiceover(c.Request.Context(), segmentID, userID, lineID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

// readUpload читает файл из multipart-поля "file" либо сырое тело запроса.
func readUpload(c *gin.Context) ([]byte, string, bool) {
	if file, err := c.FormFile("file"); err == nil {
		if file.Size > maxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, APIError{Message: "File too large"})
			return nil, "", false
		}
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, APIError{Message: "Cannot read uploaded file"})
			return nil, "", false
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
		if err != nil {
			c.JSON(http.StatusBadRequest, APIError{Message: "Cannot read uploaded file"})
			return nil, "", false
		}
		contentType := file.Header.Get("Content-Type")
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		return data, contentType, true
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadSize))
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, APIError{Message: "Empty upload body"})
		return nil, "", false
	}
	contentType := c.ContentType()
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, true
}
