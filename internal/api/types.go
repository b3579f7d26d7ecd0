// ABOUTME: Wire types for the chat backend's HTTP surface
// ABOUTME: Conversations, summaries, messages, and the send request body

package api

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation's history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Summary is the directory view of a conversation.
type Summary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Conversation is the full backend record for one conversation.
// Messages are in chronological order.
type Conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// Summary returns the directory entry for c.
func (c *Conversation) Summary() Summary {
	return Summary{ID: c.ID, Title: c.Title}
}

// ChatRequest is the JSON body for POST /api/chat.
// A nil ConversationID asks the backend to start a new conversation.
type ChatRequest struct {
	Message        string  `json:"message"`
	ConversationID *string `json:"conversation_id"`

	// IdempotencyKey is sent as the Idempotency-Key header. One is generated
	// when empty.
	IdempotencyKey string `json:"-"`
}

// ChatAccepted is the JSON response for an accepted POST /api/chat.
type ChatAccepted struct {
	Status string `json:"status"`
}

// StreamEvent is the JSON payload of one frame on the reply stream.
// Any combination of fields may be present.
type StreamEvent struct {
	Content        string `json:"content,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Done           bool   `json:"done,omitempty"`
}

// Chat stream paths and headers shared by the client and the reference backend.
const (
	ChatPath          = "/api/chat"
	StreamQuery       = "stream=true"
	ConversationsPath = "/api/conversations"
	ClearPath         = "/api/clear"
	IdempotencyHeader = "Idempotency-Key"
	EventStreamMIME   = "text/event-stream"
	StatusAccepted    = "accepted"
	StatusDuplicate   = "duplicate"
)
