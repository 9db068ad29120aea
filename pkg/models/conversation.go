// Package models contains shared data models used across the Llamalith codebase.
package models

import "time"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation groups messages into a thread. Jobs reference conversations
// by id but the queue itself treats the id as opaque.
type Conversation struct {
	ID        string    `db:"id"         json:"id"`
	Title     string    `db:"title"      json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Message is a single turn in a conversation. The worker replays the
// message history, oldest first, as model context.
type Message struct {
	ID             int64     `db:"id"              json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Role           string    `db:"role"            json:"role"`
	Content        string    `db:"content"         json:"content"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
}
