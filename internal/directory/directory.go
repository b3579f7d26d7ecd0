// ABOUTME: ConversationDirectory caching conversation summaries and the current pointer
// ABOUTME: Synchronized wholesale from the backend list endpoint, notifies a Listener on change

package directory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/2389/chatline/internal/api"
)

// Backend is the subset of the chat API the directory reads from.
// *api.Client satisfies it.
type Backend interface {
	ListConversations(ctx context.Context) ([]api.Summary, error)
	GetConversation(ctx context.Context, id string) (*api.Conversation, error)
}

// Listener is told about every change to the list or the current pointer.
// Calls are serialized but may come from any goroutine.
type Listener interface {
	ConversationsChanged(list []api.Summary, currentID string)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(list []api.Summary, currentID string)

func (f ListenerFunc) ConversationsChanged(list []api.Summary, currentID string) {
	f(list, currentID)
}

// Directory is the client's read-through cache of conversation summaries.
// It is safe for concurrent use.
type Directory struct {
	backend  Backend
	listener Listener
	logger   *slog.Logger

	mu        sync.Mutex
	summaries []api.Summary
	current   string
	// seq orders refreshes against marks so a refresh that began before a
	// conversation was bound cannot discard it.
	seq        uint64
	currentSeq uint64
	appliedSeq uint64
}

// New creates an empty directory. listener may be nil. Pass nil logger for default.
func New(backend Backend, listener Listener, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		backend:   backend,
		listener:  listener,
		logger:    logger.With("component", "directory"),
		summaries: []api.Summary{},
	}
}

// Refresh replaces the cached list with the backend's and returns it.
// On error the cache is left untouched.
func (d *Directory) Refresh(ctx context.Context) ([]api.Summary, error) {
	d.mu.Lock()
	d.seq++
	started := d.seq
	d.mu.Unlock()

	list, err := d.backend.ListConversations(ctx)
	if err != nil {
		d.logger.Warn("failed to refresh conversations", "error", err)
		return nil, fmt.Errorf("refreshing conversations: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if started < d.appliedSeq {
		d.logger.Debug("discarding stale refresh", "seq", started, "applied", d.appliedSeq)
		return slices.Clone(d.summaries), nil
	}
	d.appliedSeq = started

	d.summaries = slices.Clone(list)
	if d.current != "" && !d.containsLocked(d.current) {
		if d.currentSeq > started {
			// Bound after this refresh was issued; keep it until a later one.
			d.summaries = append(d.summaries, api.Summary{ID: d.current})
		} else {
			d.logger.Debug("current conversation not listed by backend, clearing", "conversation_id", d.current)
			d.current = ""
		}
	}

	d.logger.Debug("conversations refreshed", "count", len(d.summaries), "current", d.current)
	d.notifyLocked()
	return slices.Clone(d.summaries), nil
}

// Load fetches one conversation's full history and makes it current.
// When the backend does not know id the error matches api.ErrNotFound and
// the directory is unchanged.
func (d *Directory) Load(ctx context.Context, id string) (*api.Conversation, error) {
	conv, err := d.backend.GetConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", id, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if i := d.indexLocked(id); i >= 0 {
		d.summaries[i] = conv.Summary()
	} else {
		d.summaries = append(d.summaries, conv.Summary())
	}
	d.setCurrentLocked(id)
	d.notifyLocked()
	return conv, nil
}

// Current returns the id of the conversation in focus, or "" for an unsaved one.
func (d *Directory) Current() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// MarkCurrent points the directory at id. An id not yet listed gets a
// provisional, untitled summary.
func (d *Directory) MarkCurrent(id string) {
	if id == "" {
		d.ClearCurrent()
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == id {
		return
	}
	if !d.containsLocked(id) {
		d.summaries = append(d.summaries, api.Summary{ID: id})
	}
	d.setCurrentLocked(id)
	d.notifyLocked()
}

// ClearCurrent resets the pointer to the unsaved state.
func (d *Directory) ClearCurrent() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == "" {
		return
	}
	d.setCurrentLocked("")
	d.notifyLocked()
}

// List returns a copy of the cached summaries in backend order.
func (d *Directory) List() []api.Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.summaries)
}

func (d *Directory) setCurrentLocked(id string) {
	d.seq++
	d.current = id
	d.currentSeq = d.seq
}

func (d *Directory) containsLocked(id string) bool {
	return d.indexLocked(id) >= 0
}

func (d *Directory) indexLocked(id string) int {
	return slices.IndexFunc(d.summaries, func(s api.Summary) bool { return s.ID == id })
}

// notifyLocked runs under mu so listeners observe changes in order.
func (d *Directory) notifyLocked() {
	if d.listener == nil {
		return
	}
	d.listener.ConversationsChanged(slices.Clone(d.summaries), d.current)
}
