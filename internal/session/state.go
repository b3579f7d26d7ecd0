// ABOUTME: Send-cycle states, session snapshots, and outcomes returned by the controller
// ABOUTME: Value types only; all mutation happens inside Controller

package session

import (
	"context"
	"errors"

	"github.com/2389/chatline/internal/stream"
)

// ErrEmptyMessage is returned by Send when the text is blank.
var ErrEmptyMessage = errors.New("message is empty")

// ErrSuperseded is returned by Send when a newer action replaced its cycle.
var ErrSuperseded = errors.New("send superseded")

// ErrorReply is shown as the assistant reply when a send produced nothing.
const ErrorReply = "Sorry, I encountered an error. Please try again."

// CycleState is the lifecycle position of one send-and-receive cycle.
type CycleState int

const (
	CycleNone CycleState = iota
	CyclePending
	CycleStreaming
	CycleBound
	CycleCompleted
	CycleFailed
	CycleSuperseded
)

func (s CycleState) String() string {
	switch s {
	case CycleNone:
		return "none"
	case CyclePending:
		return "pending"
	case CycleStreaming:
		return "streaming"
	case CycleBound:
		return "bound"
	case CycleCompleted:
		return "completed"
	case CycleFailed:
		return "failed"
	case CycleSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Terminal reports whether the cycle has ended.
func (s CycleState) Terminal() bool {
	return s == CycleCompleted || s == CycleFailed || s == CycleSuperseded
}

// State is an immutable snapshot of the session.
type State struct {
	// ConversationID is the directory's current pointer; empty means unsaved.
	ConversationID string
	Sending        bool
	// Generation increases every time a cycle starts or is superseded.
	Generation uint64
	// Cycle and Buffer describe the most recent cycle.
	Cycle  CycleState
	Buffer string
}

// Outcome is how a Send call resolved.
type Outcome struct {
	Cycle CycleState
	// ConversationID is the id bound during the cycle, if any.
	ConversationID string
	// Content is the accumulated reply. For a superseded cycle it was
	// discarded and never shown.
	Content string
	State   State
}

// cycle is the mutable record of the active send. Guarded by Controller.mu.
type cycle struct {
	gen            uint64
	state          CycleState
	conversationID string
	bound          bool
	buffer         []byte
	reply          MessageRef
	consumer       *stream.Consumer
	cancel         context.CancelFunc
}

func (c *cycle) content() string {
	return string(c.buffer)
}
