// ABOUTME: Responder produces assistant replies for the reference backend
// ABOUTME: EchoResponder streams a canned reply word by word with a configurable delay

package backend

import (
	"context"
	"strings"
	"time"

	"github.com/2389/chatline/internal/api"
)

// Responder generates the assistant's reply to a conversation. It calls emit
// once per chunk, in order, and stops early when emit or ctx fails.
type Responder interface {
	Reply(ctx context.Context, history []api.Message, emit func(chunk string) error) error
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, history []api.Message, emit func(chunk string) error) error

func (f ResponderFunc) Reply(ctx context.Context, history []api.Message, emit func(chunk string) error) error {
	return f(ctx, history, emit)
}

// EchoResponder answers with the latest user message, one word per chunk.
type EchoResponder struct {
	Delay time.Duration
}

// Reply implements Responder.
func (e EchoResponder) Reply(ctx context.Context, history []api.Message, emit func(chunk string) error) error {
	reply := "You said: " + lastUserMessage(history)

	for i, chunk := range strings.SplitAfter(reply, " ") {
		if i > 0 && e.Delay > 0 {
			timer := time.NewTimer(e.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}

func lastUserMessage(history []api.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == api.RoleUser {
			return history[i].Content
		}
	}
	return ""
}
