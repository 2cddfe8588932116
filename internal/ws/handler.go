package ws

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin проверяется CORS-слоем HTTP сервера.
		return true
	},
}

// Handler обрабатывает запросы на установку WebSocket соединения.
// Браузерный клиент не может выставить Authorization заголовок,
// поэтому токен приходит query-параметром.
type Handler struct {
	manager   *ConnectionManager
	jwtSecret []byte
	logger    *zap.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(manager *ConnectionManager, jwtSecret string, logger *zap.Logger) *Handler {
	return &Handler{
		manager:   manager,
		jwtSecret: []byte(jwtSecret),
		logger:    logger.Named("WSHandler"),
	}
}

// ServeWS обрабатывает входящий HTTP запрос для WebSocket.
func (h *Handler) ServeWS(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		h.logger.Warn("Missing 'token' query parameter")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	userID, err := h.validateToken(tokenString)
	if err != nil {
		h.logger.Warn("Invalid websocket token", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrader уже записал ответ.
		h.logger.Error("Failed to upgrade connection", zap.String("userID", userID), zap.Error(err))
		return
	}
	h.logger.Info("WebSocket connection established", zap.String("userID", userID))

	client := &Client{
		UserID: userID,
		Conn:   conn,
		send:   make(chan []byte, 256),
	}
	h.manager.RegisterClient(client)

	log := h.logger.With(zap.String("userID", userID))
	go client.writePump(log)
	go client.readPump(h.manager, log)
}

// validateToken проверяет JWT и возвращает subject (UserID).
func (h *Handler) validateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return h.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("token parse error: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("missing subject claim")
	}
	return sub, nil
}
