package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// signatureHeader — заголовок HMAC-подписи платежного провайдера.
const signatureHeader = "X-Webhook-Signature"

func (h *APIHandler) getCredits(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return
	}

	credits, err := h.credits.GetBalance(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, credits)
}

// paymentWebhook принимает уведомления платежного провайдера.
// Аутентификация — HMAC-подпись тела, JWT здесь не применяется.
func (h *APIHandler) paymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Cannot read webhook body"})
		return
	}
	signature := c.GetHeader(signatureHeader)
	if signature == "" {
		h.logger.Warn("Payment webhook without signature", zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, APIError{Message: "Missing signature"})
		return
	}

	if err := h.credits.HandlePaymentWebhook(c.Request.Context(), body, signature); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusOK)
}
