// ABOUTME: Presentation collaborator interface driven by the session controller
// ABOUTME: Receives chat messages, streaming content updates, and conversation list changes

package session

import (
	"time"

	"github.com/2389/chatline/internal/api"
)

// MessageRef identifies a message shown by the presenter so later content
// updates can target it.
type MessageRef string

// Message is a chat entry handed to the presenter.
type Message struct {
	Ref     MessageRef
	Role    api.Role
	Content string
	// Timestamp is taken when the message is first shown; it is not stored.
	Timestamp time.Time
}

// Presenter renders the session. The controller serializes its own calls,
// but ConversationsChanged may also arrive from a background directory
// refresh, so implementations must be safe for concurrent use.
type Presenter interface {
	// MessageAppended adds a message to the chat view.
	MessageAppended(msg Message)
	// MessageContentUpdated replaces the content of a shown message. full is
	// always the whole reply so far, never a delta.
	MessageContentUpdated(ref MessageRef, full string)
	// ConversationsChanged reports the directory list and the current id.
	ConversationsChanged(list []api.Summary, currentID string)
	// ChatCleared empties the chat view.
	ChatCleared()
	// SendingChanged toggles the in-flight indicator.
	SendingChanged(sending bool)
}

// NopPresenter discards every notification.
type NopPresenter struct{}

func (NopPresenter) MessageAppended(Message)                    {}
func (NopPresenter) MessageContentUpdated(MessageRef, string)   {}
func (NopPresenter) ConversationsChanged([]api.Summary, string) {}
func (NopPresenter) ChatCleared()                               {}
func (NopPresenter) SendingChanged(bool)                        {}
