package models

import (
	"time"

	"github.com/google/uuid"
)

// Agent — персонаж-собеседник во входящих.
type Agent struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"userId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Personality string    `json:"personality"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Conversation — диалог пользователя с агентом.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	AgentID   uuid.UUID `json:"agentId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageAuthor — автор сообщения в диалоге.
type MessageAuthor string

const (
	AuthorUser   MessageAuthor = "user"
	AuthorAgent  MessageAuthor = "agent"
	AuthorSystem MessageAuthor = "system"
)

// ConversationMessage — одно сообщение диалога.
type ConversationMessage struct {
	ID             uuid.UUID     `json:"id"`
	ConversationID uuid.UUID     `json:"conversationId"`
	Author         MessageAuthor `json:"author"`
	Content        string        `json:"content"`
	CreatedAt      time.Time     `json:"createdAt"`
}
