// ABOUTME: StreamConsumer turning one reply event stream into typed updates
// ABOUTME: Lazy, single-use, cancellable sequence with idempotent Close

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/2389/chatline/internal/api"
)

// Kind enumerates the typed updates a Consumer emits.
type Kind int

const (
	KindContentDelta Kind = iota + 1
	KindConversationBound
	KindCompleted
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindContentDelta:
		return "content-delta"
	case KindConversationBound:
		return "conversation-bound"
	case KindCompleted:
		return "completed"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Update is one typed element of the sequence.
type Update struct {
	Kind           Kind
	Content        string // KindContentDelta
	ConversationID string // KindConversationBound
	Err            error  // KindFailed
}

// Terminal reports whether no further updates follow u.
func (u Update) Terminal() bool {
	return u.Kind == KindCompleted || u.Kind == KindFailed
}

// Source opens the reply event stream. *api.Client satisfies it.
type Source interface {
	OpenStream(ctx context.Context) (io.ReadCloser, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (io.ReadCloser, error)

func (f SourceFunc) OpenStream(ctx context.Context) (io.ReadCloser, error) {
	return f(ctx)
}

// Consumer attaches to one reply stream and yields its updates in order.
// It is not restartable; open a new Consumer per cycle. Callers must Close
// it once they stop reading.
type Consumer struct {
	updates chan Update
	cancel  context.CancelFunc
	logger  *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once

	mu   sync.Mutex
	body io.ReadCloser
}

// Open starts consuming src in the background and returns immediately.
// The transport is attached lazily by the consumer's goroutine, so Close may
// be called at any point, including before the stream is connected.
func Open(ctx context.Context, src Source, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Consumer{
		updates: make(chan Update),
		cancel:  cancel,
		logger:  logger.With("component", "stream"),
	}
	go c.run(ctx, src)
	return c
}

// Next blocks for the next update. It returns false once the sequence has
// ended, the consumer was closed, or ctx is done.
func (c *Consumer) Next(ctx context.Context) (Update, bool) {
	if c.closed.Load() {
		return Update{}, false
	}
	select {
	case u, ok := <-c.updates:
		if !ok || c.closed.Load() {
			return Update{}, false
		}
		return u, true
	case <-ctx.Done():
		return Update{}, false
	}
}

// All returns the remaining updates as an iterator. Breaking out of the loop
// does not close the consumer.
func (c *Consumer) All(ctx context.Context) iter.Seq[Update] {
	return func(yield func(Update) bool) {
		for {
			u, ok := c.Next(ctx)
			if !ok || !yield(u) {
				return
			}
		}
	}
}

// Close releases the subscription. It is safe to call multiple times and
// from any goroutine; after it returns Next reports no further updates.
func (c *Consumer) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()

		c.mu.Lock()
		body := c.body
		c.mu.Unlock()
		if body != nil {
			_ = body.Close()
		}
		c.logger.Debug("stream closed")
	})
}

// Closed reports whether Close has been called.
func (c *Consumer) Closed() bool {
	return c.closed.Load()
}

func (c *Consumer) run(ctx context.Context, src Source) {
	defer close(c.updates)

	body, err := src.OpenStream(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("failed to open stream", "error", err)
			c.emit(ctx, Update{Kind: KindFailed, Err: &TransportError{Err: err}})
		}
		return
	}
	defer body.Close()

	c.mu.Lock()
	c.body = body
	c.mu.Unlock()
	if c.closed.Load() {
		return
	}

	reader := NewReader(body)
	for {
		frame, err := reader.Next()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				err = ErrStreamEnded
			}
			c.logger.Warn("stream transport failure", "error", err)
			c.emit(ctx, Update{Kind: KindFailed, Err: &TransportError{Err: err}})
			return
		}

		if frame.Event != defaultEventType {
			c.logger.Debug("ignoring non-message frame", "event", frame.Event)
			continue
		}

		var event api.StreamEvent
		if err := json.Unmarshal([]byte(frame.Data), &event); err != nil {
			c.logger.Warn("skipping malformed frame",
				"error", &MalformedFrameError{Data: frame.Data, Err: err},
			)
			continue
		}

		for _, u := range updatesFor(event) {
			if !c.emit(ctx, u) {
				return
			}
			if u.Terminal() {
				return
			}
		}
	}
}

// emit hands u to the reader unless the consumer is canceled first.
func (c *Consumer) emit(ctx context.Context, u Update) bool {
	select {
	case c.updates <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

// updatesFor expands one frame payload into updates. Fields are cumulative:
// content first, then the bound id, then completion.
func updatesFor(event api.StreamEvent) []Update {
	var out []Update
	if event.Content != "" {
		out = append(out, Update{Kind: KindContentDelta, Content: event.Content})
	}
	if event.ConversationID != "" {
		out = append(out, Update{Kind: KindConversationBound, ConversationID: event.ConversationID})
	}
	if event.Done {
		out = append(out, Update{Kind: KindCompleted})
	}
	return out
}
