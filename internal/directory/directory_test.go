// ABOUTME: Tests for the conversation directory cache
// ABOUTME: Covers refresh idempotence, current-pointer bookkeeping, load, and listener notifications

package directory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatline/internal/api"
)

type fakeBackend struct {
	mu            sync.Mutex
	summaries     []api.Summary
	conversations map[string]*api.Conversation
	listErr       error
	listCalls     int
	// gate, when set, blocks ListConversations until it is closed.
	gate chan struct{}
}

func newFakeBackend(convs ...*api.Conversation) *fakeBackend {
	f := &fakeBackend{conversations: make(map[string]*api.Conversation)}
	for _, c := range convs {
		f.summaries = append(f.summaries, c.Summary())
		f.conversations[c.ID] = c
	}
	return f
}

func (f *fakeBackend) ListConversations(ctx context.Context) ([]api.Summary, error) {
	f.mu.Lock()
	gate := f.gate
	f.listCalls++
	out := append([]api.Summary(nil), f.summaries...)
	err := f.listErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return out, err
}

func (f *fakeBackend) GetConversation(ctx context.Context, id string) (*api.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return nil, &api.RequestRejectedError{Op: "get conversation", StatusCode: 404, Message: "Conversation not found"}
	}
	return c, nil
}

type recordingListener struct {
	mu    sync.Mutex
	calls []listenerCall
}

type listenerCall struct {
	list    []api.Summary
	current string
}

func (r *recordingListener) ConversationsChanged(list []api.Summary, currentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, listenerCall{list: list, current: currentID})
}

func (r *recordingListener) last() listenerCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func conv(id, title string, msgs ...api.Message) *api.Conversation {
	return &api.Conversation{ID: id, Title: title, Messages: msgs}
}

func TestDirectory_StartsEmpty(t *testing.T) {
	d := New(newFakeBackend(), nil, nil)

	assert.Empty(t, d.List())
	assert.Equal(t, "", d.Current())
}

func TestDirectory_RefreshReplacesList(t *testing.T) {
	backend := newFakeBackend(conv("c1", "First"), conv("c2", "Second"))
	listener := &recordingListener{}
	d := New(backend, listener, nil)

	list, err := d.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []api.Summary{{ID: "c1", Title: "First"}, {ID: "c2", Title: "Second"}}, list)
	assert.Equal(t, list, d.List())
	assert.Equal(t, list, listener.last().list)

	backend.mu.Lock()
	backend.summaries = backend.summaries[1:]
	backend.mu.Unlock()

	list, err = d.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []api.Summary{{ID: "c2", Title: "Second"}}, list)
}

func TestDirectory_RefreshIsIdempotent(t *testing.T) {
	d := New(newFakeBackend(conv("c1", "First"), conv("c2", "Second")), nil, nil)

	first, err := d.Refresh(context.Background())
	require.NoError(t, err)
	second, err := d.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, d.List())
}

func TestDirectory_RefreshErrorLeavesCache(t *testing.T) {
	backend := newFakeBackend(conv("c1", "First"))
	d := New(backend, nil, nil)
	_, err := d.Refresh(context.Background())
	require.NoError(t, err)

	boom := errors.New("backend down")
	backend.mu.Lock()
	backend.listErr = boom
	backend.mu.Unlock()

	_, err = d.Refresh(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []api.Summary{{ID: "c1", Title: "First"}}, d.List())
}

func TestDirectory_MarkCurrentInsertsProvisionalSummary(t *testing.T) {
	listener := &recordingListener{}
	d := New(newFakeBackend(), listener, nil)

	d.MarkCurrent("c9")

	assert.Equal(t, "c9", d.Current())
	assert.Equal(t, []api.Summary{{ID: "c9"}}, d.List())
	assert.Equal(t, "c9", listener.last().current)
}

func TestDirectory_MarkCurrentSameIDDoesNotNotify(t *testing.T) {
	listener := &recordingListener{}
	d := New(newFakeBackend(), listener, nil)

	d.MarkCurrent("c1")
	d.MarkCurrent("c1")

	assert.Len(t, listener.calls, 1)
}

func TestDirectory_RefreshKeepsListedCurrent(t *testing.T) {
	d := New(newFakeBackend(conv("c1", "Hello")), nil, nil)

	d.MarkCurrent("c1")
	_, err := d.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "c1", d.Current())
	assert.Equal(t, []api.Summary{{ID: "c1", Title: "Hello"}}, d.List())
}

func TestDirectory_RefreshClearsUnlistedCurrent(t *testing.T) {
	d := New(newFakeBackend(conv("c1", "Hello")), nil, nil)

	d.MarkCurrent("ghost")
	_, err := d.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "", d.Current())
	assert.Equal(t, []api.Summary{{ID: "c1", Title: "Hello"}}, d.List())
}

func TestDirectory_RefreshStartedBeforeMarkKeepsCurrent(t *testing.T) {
	backend := newFakeBackend()
	backend.gate = make(chan struct{})
	d := New(backend, nil, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = d.Refresh(context.Background())
	}()

	require.Eventually(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return backend.listCalls == 1
	}, time.Second, 5*time.Millisecond)

	d.MarkCurrent("c1")
	close(backend.gate)
	<-done

	assert.Equal(t, "c1", d.Current())
	assert.Equal(t, []api.Summary{{ID: "c1"}}, d.List())
}

func TestDirectory_ClearCurrent(t *testing.T) {
	listener := &recordingListener{}
	d := New(newFakeBackend(), listener, nil)

	d.MarkCurrent("c1")
	d.ClearCurrent()
	d.ClearCurrent()

	assert.Equal(t, "", d.Current())
	assert.Len(t, listener.calls, 2)
	assert.Equal(t, "", listener.last().current)
}

func TestDirectory_Load(t *testing.T) {
	history := conv("c1", "Hello",
		api.Message{Role: api.RoleUser, Content: "Hello"},
		api.Message{Role: api.RoleAssistant, Content: "Hi there"},
	)
	listener := &recordingListener{}
	d := New(newFakeBackend(history), listener, nil)

	got, err := d.Load(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, history, got)
	assert.Equal(t, "c1", d.Current())
	assert.Equal(t, []api.Summary{{ID: "c1", Title: "Hello"}}, d.List())
	assert.Equal(t, "c1", listener.last().current)
}

func TestDirectory_LoadUpdatesProvisionalTitle(t *testing.T) {
	d := New(newFakeBackend(conv("c1", "Real title")), nil, nil)

	d.MarkCurrent("c1")
	_, err := d.Load(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, []api.Summary{{ID: "c1", Title: "Real title"}}, d.List())
}

func TestDirectory_LoadNotFoundLeavesState(t *testing.T) {
	d := New(newFakeBackend(conv("c1", "Hello")), nil, nil)
	_, err := d.Refresh(context.Background())
	require.NoError(t, err)
	d.MarkCurrent("c1")

	_, err = d.Load(context.Background(), "missing")
	require.ErrorIs(t, err, api.ErrNotFound)

	assert.Equal(t, "c1", d.Current())
	assert.Equal(t, []api.Summary{{ID: "c1", Title: "Hello"}}, d.List())
}

func TestDirectory_ListReturnsCopy(t *testing.T) {
	d := New(newFakeBackend(conv("c1", "Hello")), nil, nil)
	_, err := d.Refresh(context.Background())
	require.NoError(t, err)

	list := d.List()
	list[0].Title = "mutated"

	assert.Equal(t, "Hello", d.List()[0].Title)
}

func TestListenerFunc(t *testing.T) {
	var got string
	d := New(newFakeBackend(), ListenerFunc(func(_ []api.Summary, current string) { got = current }), nil)

	d.MarkCurrent("c3")
	assert.Equal(t, "c3", got)
}
