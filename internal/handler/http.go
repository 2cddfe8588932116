package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyreel-server/internal/models"
	"storyreel-server/internal/service"
)

// APIError — тело ответа с ошибкой.
type APIError struct {
	Message string `json:"message"`
}

// APIHandler объединяет HTTP-обработчики всех сервисов.
type APIHandler struct {
	stories     service.StoryService
	segments    service.SegmentService
	transitions service.TransitionService
	credits     service.CreditService
	decor       service.DecorService
	inbox       service.InboxService
	logger      *zap.Logger
}

// NewAPIHandler creates a new instance of APIHandler.
func NewAPIHandler(
	stories service.StoryService,
	segments service.SegmentService,
	transitions service.TransitionService,
	credits service.CreditService,
	decor service.DecorService,
	inbox service.InboxService,
	logger *zap.Logger,
) *APIHandler {
	return &APIHandler{
		stories:     stories,
		segments:    segments,
		transitions: transitions,
		credits:     credits,
		decor:       decor,
		inbox:       inbox,
		logger:      logger.Named("APIHandler"),
	}
}

// RegisterRoutes регистрирует маршруты API. authMw применяется ко всем
// маршрутам кроме платежного вебхука: его аутентифицирует HMAC-подпись.
func (h *APIHandler) RegisterRoutes(router *gin.Engine, authMw gin.HandlerFunc) {
	router.POST("/api/webhooks/payment", h.paymentWebhook)

	api := router.Group("/api", authMw)
	{
		api.POST("/stories", h.createStory)
		api.GET("/stories", h.listStories)
		api.GET("/stories/:id", h.getStory)
		api.PATCH("/stories/:id", h.updateStory)
		api.PATCH("/stories/:id/status", h.updateStoryStatus)
		api.DELETE("/stories/:id", h.deleteStory)
		api.POST("/stories/:id/guided", h.generateGuidedStory)
		api.POST("/stories/:id/generate", h.generateSegments)
		api.POST("/stories/:id/segments", h.addSegment)
		api.PUT("/stories/:id/segments/order", h.reorderSegments)
		api.GET("/stories/:id/transitions", h.listTransitions)

		api.GET("/segments/:id", h.getSegment)
		api.PATCH("/segments/:id/text", h.updateSegmentText)
		api.DELETE("/segments/:id", h.deleteSegment)
		api.POST("/segments/:id/regenerate", h.regenerateImage)
		api.POST("/segments/:id/edit", h.editImage)
		api.GET("/segments/:id/versions", h.listVersions)
		api.PUT("/segments/:id/versions/selected", h.selectVersion)
		api.POST("/segments/:id/versions/upload", h.uploadVersion)
		api.PUT("/segments/:id/structured-text", h.replaceStructuredText)
		api.POST("/segments/:id/lines/:lineId/voiceover", h.generateVoiceover)
		api.DELETE("/segments/:id/lines/:lineId/voiceover", h.deleteVoiceover)
		api.PUT("/segments/:id/transition", h.setTransition)
		api.DELETE("/segments/:id/transition", h.cutTransition)

		api.GET("/credits", h.getCredits)

		api.POST("/decor-images/upload", h.uploadDecorImage)
		api.GET("/decor-images", h.listDecorImages)
		api.GET("/decor-images/:id", h.getDecorImage)
		api.POST("/decor-images/:id/decorate", h.startDecoration)
		api.DELETE("/decor-images/:id", h.deleteDecorImage)

		api.POST("/agents", h.createAgent)
		api.GET("/agents", h.listAgents)
		api.DELETE("/agents/:id", h.deleteAgent)
		api.POST("/conversations", h.startConversation)
		api.GET("/conversations", h.listConversations)
		api.GET("/conversations/:id", h.getConversation)
		api.DELETE("/conversations/:id", h.deleteConversation)
		api.POST("/conversations/:id/messages", h.sendMessage)
	}
}

// getUserIDFromContext извлекает userID, положенный auth middleware.
func getUserIDFromContext(c *gin.Context) (uuid.UUID, error) {
	val, ok := c.Get(contextUserIDKey)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
		return uuid.Nil, fmt.Errorf("user_id не найден в контексте")
	}
	userID, ok := val.(uuid.UUID)
	if !ok || userID == uuid.Nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
		return uuid.Nil, fmt.Errorf("неверный user_id в контексте: %T", val)
	}
	return userID, nil
}

// parseIDParam парсит uuid из path-параметра.
func parseIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Message: "Invalid " + name})
		return uuid.Nil, err
	}
	return id, nil
}

// handleServiceError переводит ошибки сервисного слоя в HTTP статусы.
func handleServiceError(c *gin.Context, err error, logger *zap.Logger) {
	var statusCode int
	var apiErr APIError

	switch {
	case errors.Is(err, models.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
		apiErr = APIError{Message: "Unauthorized"}
	case errors.Is(err, models.ErrForbidden):
		// Чужой ресурс неотличим от несуществующего.
		statusCode = http.StatusNotFound
		apiErr = APIError{Message: "Resource not found or access denied"}
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrStoryNotFound),
		errors.Is(err, models.ErrSegmentNotFound),
		errors.Is(err, models.ErrVersionNotFound),
		errors.Is(err, models.ErrTransitionNotFound),
		errors.Is(err, models.ErrDecorImageNotFound),
		errors.Is(err, models.ErrAgentNotFound),
		errors.Is(err, models.ErrConversationNotFound),
		errors.Is(err, models.ErrLineNotFound):
		statusCode = http.StatusNotFound
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrUserHasActiveGeneration):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrInvalidImageState),
		errors.Is(err, models.ErrVersionMismatch):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrInsufficientCredits),
		errors.Is(err, models.ErrNoCreditRecord):
		statusCode = http.StatusPaymentRequired
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrEmptyScript),
		errors.Is(err, models.ErrInvalidFormat),
		errors.Is(err, models.ErrInvalidVoice),
		errors.Is(err, models.ErrInvalidTransition):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	default:
		logger.Error("Unhandled service error", zap.Error(err))
		statusCode = http.StatusInternalServerError
		apiErr = APIError{Message: "Internal server error"}
	}
	c.AbortWithStatusJSON(statusCode, apiErr)
}
