package domain

import (
	"errors"
	"time"

	"crypto/rand"
	"encoding/hex"
)

// ConversationID uniquely identifies a conversation
type ConversationID string

// MessageRole defines who authored a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Conversation represents a multi-turn chat session. Its messages live in a
// nested per-conversation turn collection, not on the struct itself.
type Conversation struct {
	ID        ConversationID `json:"id"`
	Title     string         `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Prompt is the submitted half of a chat turn.
type Prompt struct {
	ConversationID ConversationID `json:"conversation_id"`
	Text           string         `json:"text"`
}

// Reply is the assistant half of a completed chat turn.
type Reply struct {
	Text string `json:"text"`
}

// Message is the flattened view of one side of a turn, as rendered by clients.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyPrompt          = errors.New("prompt text is empty")
)

// NewConversationID generates a compact random conversation ID (conv-<12 hex>)
func NewConversationID() ConversationID {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return ConversationID("conv-" + hex.EncodeToString(b))
}
