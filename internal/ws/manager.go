package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client представляет собой одно WebSocket соединение с идентификатором пользователя.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	send   chan []byte
}

// ConnectionManager управляет активными WebSocket соединениями.
// На пользователя удерживается одно соединение: новое вытесняет старое.
type ConnectionManager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan string
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewConnectionManager создает и запускает новый менеджер соединений.
func NewConnectionManager(logger *zap.Logger) *ConnectionManager {
	m := &ConnectionManager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan string),
		logger:     logger.Named("WSManager"),
	}
	go m.run()
	return m
}

// run запускает основной цикл менеджера для обработки регистрации/дерегистрации.
func (m *ConnectionManager) run() {
	m.logger.Info("ConnectionManager started")
	for {
		select {
		case client := <-m.register:
			m.mu.Lock()
			if oldClient, ok := m.clients[client.UserID]; ok {
				m.logger.Info("Closing previous connection", zap.String("userID", client.UserID))
				close(oldClient.send)
				_ = oldClient.Conn.Close()
			}
			m.clients[client.UserID] = client
			m.mu.Unlock()
			m.logger.Info("Client registered", zap.String("userID", client.UserID))

		case userID := <-m.unregister:
			m.mu.Lock()
			if client, ok := m.clients[userID]; ok {
				delete(m.clients, userID)
				close(client.send)
			}
			m.mu.Unlock()
			m.logger.Info("Client unregistered", zap.String("userID", userID))
		}
	}
}

// RegisterClient регистрирует нового клиента.
func (m *ConnectionManager) RegisterClient(client *Client) {
	m.register <- client
}

// UnregisterClient удаляет клиента.
func (m *ConnectionManager) UnregisterClient(userID string) {
	m.unregister <- userID
}

// SendToUser отправляет сообщение конкретному пользователю.
// Возвращает true, если пользователь онлайн и сообщение поставлено в очередь.
func (m *ConnectionManager) SendToUser(userID string, message []byte) bool {
	m.mu.RLock()
	client, ok := m.clients[userID]
	m.mu.RUnlock()

	if !ok {
		m.logger.Debug("User is offline, update dropped", zap.String("userID", userID))
		return false
	}
	select {
	case client.send <- message:
		return true
	default:
		m.logger.Warn("Send queue full or client disconnecting", zap.String("userID", userID))
		return false
	}
}
