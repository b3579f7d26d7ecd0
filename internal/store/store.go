// ABOUTME: Store interface and data types for reference backend persistence
// ABOUTME: Defines Conversation and Message records and the operations on them

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested conversation does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when creating a conversation whose id is taken
var ErrDuplicateConversation = errors.New("conversation already exists")

// Role values stored with each message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is one stored chat. Messages is only populated by GetConversation.
type Conversation struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []*Message
}

// Message is a single stored turn of a conversation
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}

// Store defines the persistence operations of the reference backend
type Store interface {
	// CreateConversation inserts a conversation without messages
	CreateConversation(ctx context.Context, conv *Conversation) error

	// GetConversation returns a conversation with its messages in order
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns all conversations, oldest first, without messages
	ListConversations(ctx context.Context) ([]*Conversation, error)

	// SaveMessage appends a message and returns the conversation's message count
	SaveMessage(ctx context.Context, msg *Message) (int, error)

	// UpdateTitle replaces a conversation's title
	UpdateTitle(ctx context.Context, id, title string) error

	// DeleteConversation removes a conversation and its messages
	DeleteConversation(ctx context.Context, id string) error

	// ClearConversations removes every conversation
	ClearConversations(ctx context.Context) error

	// Close releases the store
	Close() error
}
