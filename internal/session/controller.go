// ABOUTME: SessionController orchestrating send, stream consumption, and conversation binding
// ABOUTME: One active cycle at a time; newer actions supersede older cycles by generation

package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chatline/internal/api"
	"github.com/2389/chatline/internal/directory"
	"github.com/2389/chatline/internal/stream"
)

// Backend is the chat API the controller drives. *api.Client satisfies it.
type Backend interface {
	directory.Backend
	SendChat(ctx context.Context, req api.ChatRequest) (*api.ChatAccepted, error)
	OpenStream(ctx context.Context) (io.ReadCloser, error)
	DeleteConversation(ctx context.Context, id string) error
	ClearConversations(ctx context.Context) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the clock used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithRefreshTimeout bounds background directory refreshes.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.refreshTimeout = d
	}
}

// Controller runs send-and-receive cycles against the backend and keeps the
// presenter and the conversation directory in step with them.
type Controller struct {
	backend   Backend
	presenter Presenter
	dir       *directory.Directory
	logger    *slog.Logger
	now       func() time.Time

	refreshTimeout time.Duration
	refreshes      sync.WaitGroup

	mu      sync.Mutex
	gen     uint64
	active  *cycle
	last    *cycle
	sending bool
}

// NewController creates a controller. presenter may be nil.
func NewController(backend Backend, presenter Presenter, opts ...Option) *Controller {
	if presenter == nil {
		presenter = NopPresenter{}
	}
	c := &Controller{
		backend:        backend,
		presenter:      presenter,
		logger:         slog.Default(),
		now:            time.Now,
		refreshTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "session")
	c.dir = directory.New(backend, presenter, c.logger)
	return c
}

// Directory exposes the conversation directory the controller maintains.
func (c *Controller) Directory() *directory.Directory {
	return c.dir
}

// Send delivers text to the current conversation, or to a new one when
// none is current, and blocks until the reply cycle resolves.
//
// A Send that is superseded by another action returns ErrSuperseded. A
// failed cycle returns the cause alongside an Outcome in CycleFailed.
func (c *Controller) Send(ctx context.Context, text string) (Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Outcome{State: c.State()}, ErrEmptyMessage
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.supersedeLocked()
	c.gen++
	cy := &cycle{
		gen:            c.gen,
		state:          CyclePending,
		conversationID: c.dir.Current(),
		cancel:         cancel,
	}
	c.active, c.last = cy, cy
	c.presenter.MessageAppended(c.newMessage(api.RoleUser, text))
	c.setSendingLocked(true)
	c.mu.Unlock()

	log := c.logger.With("generation", cy.gen)
	log.Debug("send started", "conversation_id", cy.conversationID)

	req := api.ChatRequest{Message: text}
	if cy.conversationID != "" {
		id := cy.conversationID
		req.ConversationID = &id
	}

	_, err := c.backend.SendChat(ctx, req)

	c.mu.Lock()
	if c.active != cy {
		defer c.mu.Unlock()
		return c.outcomeLocked(cy), ErrSuperseded
	}
	if err != nil {
		log.Warn("send rejected", "error", err)
		c.presenter.MessageAppended(c.newMessage(api.RoleAssistant, ErrorReply))
		c.finishLocked(cy, CycleFailed)
		defer c.mu.Unlock()
		return c.outcomeLocked(cy), fmt.Errorf("sending message: %w", err)
	}

	placeholder := c.newMessage(api.RoleAssistant, "")
	cy.reply = placeholder.Ref
	c.presenter.MessageAppended(placeholder)
	cy.consumer = stream.Open(ctx, c.backend, c.logger)
	cy.state = CycleStreaming
	consumer := cy.consumer
	c.mu.Unlock()

	for {
		u, ok := consumer.Next(ctx)

		c.mu.Lock()
		if c.active != cy {
			log.Debug("dropping update from superseded cycle")
			defer c.mu.Unlock()
			return c.outcomeLocked(cy), ErrSuperseded
		}

		if !ok {
			cause := ctx.Err()
			if cause == nil {
				cause = stream.ErrStreamEnded
			}
			u = stream.Update{Kind: stream.KindFailed, Err: cause}
		}

		done, err := c.applyLocked(cy, u, log)
		if done {
			defer c.mu.Unlock()
			return c.outcomeLocked(cy), err
		}
		c.mu.Unlock()
	}
}

// applyLocked folds one update into the active cycle. It reports whether the
// cycle reached a terminal state.
func (c *Controller) applyLocked(cy *cycle, u stream.Update, log *slog.Logger) (bool, error) {
	switch u.Kind {
	case stream.KindContentDelta:
		cy.buffer = append(cy.buffer, u.Content...)
		c.presenter.MessageContentUpdated(cy.reply, cy.content())

	case stream.KindConversationBound:
		if cy.bound {
			if u.ConversationID != cy.conversationID {
				log.Warn("ignoring conflicting conversation id",
					"bound", cy.conversationID,
					"received", u.ConversationID,
				)
			}
			return false, nil
		}
		cy.bound = true
		cy.conversationID = u.ConversationID
		cy.state = CycleBound
		log.Debug("conversation bound", "conversation_id", u.ConversationID)
		c.dir.MarkCurrent(u.ConversationID)
		c.refreshInBackground()

	case stream.KindCompleted:
		log.Debug("reply completed", "bytes", len(cy.buffer))
		c.finishLocked(cy, CycleCompleted)
		return true, nil

	case stream.KindFailed:
		log.Warn("reply failed", "error", u.Err, "bytes", len(cy.buffer))
		if len(cy.buffer) == 0 {
			c.presenter.MessageContentUpdated(cy.reply, ErrorReply)
		}
		c.finishLocked(cy, CycleFailed)
		return true, fmt.Errorf("receiving reply: %w", u.Err)
	}
	return false, nil
}

// StartNewSession abandons any in-flight reply and resets the chat view to
// an unsaved conversation. Calling it repeatedly has no further effect on
// state.
func (c *Controller) StartNewSession() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked()
	return c.stateLocked()
}

// DeleteConversation deletes id on the backend. Deleting the current
// conversation also starts a new session. On failure nothing changes.
func (c *Controller) DeleteConversation(ctx context.Context, id string) (State, error) {
	if err := c.backend.DeleteConversation(ctx, id); err != nil {
		c.logger.Warn("failed to delete conversation", "conversation_id", id, "error", err)
		return c.State(), fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	c.logger.Info("conversation deleted", "conversation_id", id)

	c.mu.Lock()
	if c.dir.Current() == id {
		c.resetLocked()
	}
	c.mu.Unlock()

	c.refreshLogged(ctx)
	return c.State(), nil
}

// ClearAllConversations deletes every conversation on the backend and starts
// a new session. On failure nothing changes.
func (c *Controller) ClearAllConversations(ctx context.Context) (State, error) {
	if err := c.backend.ClearConversations(ctx); err != nil {
		c.logger.Warn("failed to clear conversations", "error", err)
		return c.State(), fmt.Errorf("clearing conversations: %w", err)
	}
	c.logger.Info("all conversations cleared")

	c.StartNewSession()
	c.refreshLogged(ctx)
	return c.State(), nil
}

// LoadConversation replaces the chat view with id's history and makes it
// current, abandoning any in-flight reply. An unknown id returns an error
// matching api.ErrNotFound and changes nothing.
func (c *Controller) LoadConversation(ctx context.Context, id string) (State, error) {
	conv, err := c.dir.Load(ctx, id)
	if err != nil {
		return c.State(), err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.supersedeLocked()
	c.last = nil
	c.setSendingLocked(false)
	c.presenter.ChatCleared()
	for _, m := range conv.Messages {
		c.presenter.MessageAppended(c.newMessage(m.Role, m.Content))
	}
	// A cycle superseded above may have bound another id in the meantime.
	c.dir.MarkCurrent(id)

	c.logger.Debug("conversation loaded", "conversation_id", id, "messages", len(conv.Messages))
	return c.stateLocked(), nil
}

// Refresh synchronizes the directory with the backend.
func (c *Controller) Refresh(ctx context.Context) ([]api.Summary, error) {
	return c.dir.Refresh(ctx)
}

// State returns a snapshot of the session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Close abandons any in-flight reply and waits for background refreshes.
func (c *Controller) Close() {
	c.mu.Lock()
	c.supersedeLocked()
	c.setSendingLocked(false)
	c.mu.Unlock()

	c.refreshes.Wait()
}

// supersedeLocked ends the active cycle without showing anything more from
// it. Its consumer is closed before the lock is released, so no late update
// can be applied.
func (c *Controller) supersedeLocked() {
	cy := c.active
	if cy == nil {
		return
	}
	c.gen++
	cy.state = CycleSuperseded
	cy.cancel()
	if cy.consumer != nil {
		cy.consumer.Close()
	}
	c.active = nil
	c.logger.Debug("cycle superseded", "generation", cy.gen, "discarded_bytes", len(cy.buffer))
}

func (c *Controller) resetLocked() {
	c.supersedeLocked()
	c.last = nil
	c.setSendingLocked(false)
	c.presenter.ChatCleared()
	c.dir.ClearCurrent()
}

func (c *Controller) finishLocked(cy *cycle, state CycleState) {
	cy.state = state
	if cy.consumer != nil {
		cy.consumer.Close()
	}
	c.active = nil
	c.setSendingLocked(false)
}

func (c *Controller) setSendingLocked(sending bool) {
	if c.sending == sending {
		return
	}
	c.sending = sending
	c.presenter.SendingChanged(sending)
}

func (c *Controller) refreshInBackground() {
	c.refreshes.Add(1)
	go func() {
		defer c.refreshes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
		defer cancel()
		c.refreshLogged(ctx)
	}()
}

// refreshLogged refreshes the directory for its side effects; the directory
// logs failures itself.
func (c *Controller) refreshLogged(ctx context.Context) {
	_, _ = c.dir.Refresh(ctx)
}

func (c *Controller) newMessage(role api.Role, content string) Message {
	return Message{
		Ref:       MessageRef(uuid.New().String()),
		Role:      role,
		Content:   content,
		Timestamp: c.now(),
	}
}

func (c *Controller) stateLocked() State {
	s := State{
		ConversationID: c.dir.Current(),
		Sending:        c.sending,
		Generation:     c.gen,
	}
	if c.last != nil {
		s.Cycle = c.last.state
		s.Buffer = c.last.content()
	}
	return s
}

func (c *Controller) outcomeLocked(cy *cycle) Outcome {
	out := Outcome{
		Cycle:   cy.state,
		Content: cy.content(),
		State:   c.stateLocked(),
	}
	if cy.bound {
		out.ConversationID = cy.conversationID
	}
	return out
}
