// ABOUTME: Tests for the session controller's send cycles and conversation management
// ABOUTME: Uses an in-memory backend with scripted or pipe-driven reply streams

package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatline/internal/api"
)

// fakeBackend serves conversations from memory. Reply streams come from
// scripted bodies when queued, otherwise from pipes handed to the test.
type fakeBackend struct {
	mu       sync.Mutex
	convs    []*api.Conversation
	requests []api.ChatRequest
	scripts  []string
	sendErr  error
	clearErr error

	opened chan *io.PipeWriter
}

func newFakeBackend(convs ...*api.Conversation) *fakeBackend {
	return &fakeBackend{
		convs:  convs,
		opened: make(chan *io.PipeWriter, 8),
	}
}

func (f *fakeBackend) script(frames ...string) {
	var b strings.Builder
	for _, data := range frames {
		b.WriteString("data: " + data + "\n\n")
	}
	f.mu.Lock()
	f.scripts = append(f.scripts, b.String())
	f.mu.Unlock()
}

func (f *fakeBackend) SendChat(ctx context.Context, req api.ChatRequest) (*api.ChatAccepted, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &api.ChatAccepted{Status: api.StatusAccepted}, nil
}

func (f *fakeBackend) OpenStream(ctx context.Context) (io.ReadCloser, error) {
	f.mu.Lock()
	if len(f.scripts) > 0 {
		body := f.scripts[0]
		f.scripts = f.scripts[1:]
		f.mu.Unlock()
		return io.NopCloser(strings.NewReader(body)), nil
	}
	f.mu.Unlock()

	r, w := io.Pipe()
	f.opened <- w
	return r, nil
}

func (f *fakeBackend) ListConversations(ctx context.Context) ([]api.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]api.Summary, 0, len(f.convs))
	for _, c := range f.convs {
		out = append(out, c.Summary())
	}
	return out, nil
}

func (f *fakeBackend) GetConversation(ctx context.Context, id string) (*api.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.convs {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, notFound("get conversation")
}

func (f *fakeBackend) DeleteConversation(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.convs {
		if c.ID == id {
			f.convs = slices.Delete(f.convs, i, i+1)
			return nil
		}
	}
	return notFound("delete conversation")
}

func (f *fakeBackend) ClearConversations(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	f.convs = nil
	return nil
}

func (f *fakeBackend) lastRequest() api.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func notFound(op string) error {
	return &api.RequestRejectedError{Op: op, StatusCode: http.StatusNotFound, Message: "Conversation not found"}
}

func writeFrame(w io.Writer, data string) error {
	_, err := io.WriteString(w, "data: "+data+"\n\n")
	return err
}

type contentUpdate struct {
	ref  MessageRef
	full string
}

type listChange struct {
	list    []api.Summary
	current string
}

// recorder is a Presenter that keeps every notification.
type recorder struct {
	mu       sync.Mutex
	appended []Message
	updates  []contentUpdate
	lists    []listChange
	cleared  int
	sending  []bool
}

func (r *recorder) MessageAppended(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appended = append(r.appended, msg)
}

func (r *recorder) MessageContentUpdated(ref MessageRef, full string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, contentUpdate{ref: ref, full: full})
}

func (r *recorder) ConversationsChanged(list []api.Summary, currentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists = append(r.lists, listChange{list: list, current: currentID})
}

func (r *recorder) ChatCleared() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
	r.appended = nil
	r.updates = nil
}

func (r *recorder) SendingChanged(sending bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sending = append(r.sending, sending)
}

// view returns what the chat shows: each appended message with its latest content.
func (r *recorder) view() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Clone(r.appended)
	for _, u := range r.updates {
		for i := range out {
			if out[i].Ref == u.ref {
				out[i].Content = u.full
			}
		}
	}
	return out
}

func (r *recorder) updatesFor(ref MessageRef) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, u := range r.updates {
		if u.ref == ref {
			out = append(out, u.full)
		}
	}
	return out
}

func (r *recorder) sendingHistory() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sending)
}

func (r *recorder) lastList() listChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lists) == 0 {
		return listChange{}
	}
	return r.lists[len(r.lists)-1]
}

var fixedTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestController(t *testing.T, backend *fakeBackend) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := NewController(backend, rec, WithClock(func() time.Time { return fixedTime }))
	t.Cleanup(c.Close)
	return c, rec
}

type sendResult struct {
	out Outcome
	err error
}

func sendAsync(c *Controller, text string) <-chan sendResult {
	ch := make(chan sendResult, 1)
	go func() {
		out, err := c.Send(context.Background(), text)
		ch <- sendResult{out: out, err: err}
	}()
	return ch
}

func waitResult(t *testing.T, ch <-chan sendResult) sendResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("send did not resolve")
		return sendResult{}
	}
}

func waitStream(t *testing.T, b *fakeBackend) *io.PipeWriter {
	t.Helper()
	select {
	case w := <-b.opened:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("stream was not opened")
		return nil
	}
}

func TestSend_NewConversationScenario(t *testing.T) {
	backend := newFakeBackend(&api.Conversation{ID: "c1", Title: "Hello"})
	backend.script(`{"content":"Hi"}`, `{"conversation_id":"c1"}`, `{"content":" there"}`, `{"done":true}`)
	c, rec := newTestController(t, backend)

	out, err := c.Send(context.Background(), "Hello")
	require.NoError(t, err)

	assert.Equal(t, CycleCompleted, out.Cycle)
	assert.Equal(t, "Hi there", out.Content)
	assert.Equal(t, "c1", out.ConversationID)
	assert.Equal(t, "c1", out.State.ConversationID)
	assert.False(t, out.State.Sending)
	assert.Nil(t, backend.lastRequest().ConversationID)

	view := rec.view()
	require.Len(t, view, 2)
	assert.Equal(t, Message{Ref: view[0].Ref, Role: api.RoleUser, Content: "Hello", Timestamp: fixedTime}, view[0])
	assert.Equal(t, api.RoleAssistant, view[1].Role)
	assert.Equal(t, "Hi there", view[1].Content)

	// Every forwarded value is the concatenation of the deltas so far.
	assert.Equal(t, []string{"Hi", "Hi there"}, rec.updatesFor(view[1].Ref))
	assert.Equal(t, []bool{true, false}, rec.sendingHistory())

	require.Eventually(t, func() bool {
		last := rec.lastList()
		return last.current == "c1" && slices.Equal(last.list, []api.Summary{{ID: "c1", Title: "Hello"}})
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSend_UsesCurrentConversation(t *testing.T) {
	backend := newFakeBackend(&api.Conversation{ID: "c1", Title: "Hello"})
	backend.script(`{"content":"ok","conversation_id":"c1","done":true}`)
	c, _ := newTestController(t, backend)

	_, err := c.LoadConversation(context.Background(), "c1")
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "again")
	require.NoError(t, err)

	req := backend.lastRequest()
	require.NotNil(t, req.ConversationID)
	assert.Equal(t, "c1", *req.ConversationID)
	assert.Equal(t, "again", req.Message)
}

func TestSend_TransportErrorKeepsPartialReply(t *testing.T) {
	backend := newFakeBackend(&api.Conversation{ID: "c1", Title: "Hello"})
	c, rec := newTestController(t, backend)
	_, err := c.LoadConversation(context.Background(), "c1")
	require.NoError(t, err)

	result := sendAsync(c, "Next")
	w := waitStream(t, backend)
	require.NoError(t, writeFrame(w, `{"content":"X"}`))
	require.NoError(t, w.CloseWithError(errors.New("connection reset")))

	r := waitResult(t, result)
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "connection reset")
	assert.Equal(t, CycleFailed, r.out.Cycle)
	assert.Equal(t, "X", r.out.Content)
	assert.False(t, c.State().Sending)

	view := rec.view()
	require.Len(t, view, 2)
	assert.Equal(t, "X", view[1].Content)
	for _, m := range view {
		assert.NotEqual(t, ErrorReply, m.Content)
	}
}

func TestSend_FailureWithEmptyBufferShowsOneErrorReply(t *testing.T) {
	backend := newFakeBackend()
	backend.script() // stream ends with no frames
	c, rec := newTestController(t, backend)

	out, err := c.Send(context.Background(), "Hello")
	require.Error(t, err)
	assert.Equal(t, CycleFailed, out.Cycle)

	view := rec.view()
	require.Len(t, view, 2)
	assert.Equal(t, ErrorReply, view[1].Content)

	errorReplies := 0
	for _, m := range view {
		if m.Content == ErrorReply {
			errorReplies++
		}
	}
	assert.Equal(t, 1, errorReplies)
	assert.Equal(t, []bool{true, false}, rec.sendingHistory())
}

func TestSend_RejectedShowsErrorReply(t *testing.T) {
	backend := newFakeBackend()
	backend.sendErr = &api.RequestRejectedError{Op: "send message", StatusCode: 500, Message: "boom"}
	c, rec := newTestController(t, backend)

	out, err := c.Send(context.Background(), "Hello")
	require.Error(t, err)
	assert.True(t, api.IsRejected(err))
	assert.Equal(t, CycleFailed, out.Cycle)
	assert.False(t, out.State.Sending)

	view := rec.view()
	require.Len(t, view, 2)
	assert.Equal(t, "Hello", view[0].Content)
	assert.Equal(t, ErrorReply, view[1].Content)

	select {
	case <-backend.opened:
		t.Fatal("stream opened after rejected send")
	default:
	}
}

func TestSend_EmptyMessage(t *testing.T) {
	c, rec := newTestController(t, newFakeBackend())

	_, err := c.Send(context.Background(), "   \n\t")
	require.ErrorIs(t, err, ErrEmptyMessage)

	assert.Empty(t, rec.view())
	assert.Empty(t, rec.sendingHistory())
	assert.Equal(t, uint64(0), c.State().Generation)
}

func TestSend_FirstBindWins(t *testing.T) {
	backend := newFakeBackend(&api.Conversation{ID: "c1"})
	backend.script(`{"conversation_id":"c1"}`, `{"content":"a","conversation_id":"c2"}`, `{"done":true}`)
	c, _ := newTestController(t, backend)

	out, err := c.Send(context.Background(), "Hello")
	require.NoError(t, err)

	assert.Equal(t, "c1", out.ConversationID)
	assert.Equal(t, "a", out.Content)
	assert.Equal(t, "c1", c.State().ConversationID)
}

func TestSend_BoundIDMissingFromRefreshIsBenign(t *testing.T) {
	backend := newFakeBackend()
	backend.script(`{"content":"hi","conversation_id":"ghost","done":true}`)
	c, rec := newTestController(t, backend)

	out, err := c.Send(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, CycleCompleted, out.Cycle)

	require.Eventually(t, func() bool {
		return c.State().ConversationID == "" && rec.lastList().current == ""
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, c.Directory().List())
}

func TestSend_SupersededCycleEmitsNothing(t *testing.T) {
	backend := newFakeBackend()
	c, rec := newTestController(t, backend)

	first := sendAsync(c, "one")
	w1 := waitStream(t, backend)
	require.NoError(t, writeFrame(w1, `{"content":"partial"}`))

	var firstReply MessageRef
	require.Eventually(t, func() bool {
		view := rec.view()
		if len(view) == 2 && view[1].Content == "partial" {
			firstReply = view[1].Ref
			return true
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	second := sendAsync(c, "two")

	r1 := waitResult(t, first)
	require.ErrorIs(t, r1.err, ErrSuperseded)
	assert.Equal(t, CycleSuperseded, r1.out.Cycle)

	w2 := waitStream(t, backend)

	// The old subscription is gone; late frames cannot be delivered.
	assert.Error(t, writeFrame(w1, `{"content":" more"}`))

	require.NoError(t, writeFrame(w2, `{"content":"fresh","done":true}`))
	r2 := waitResult(t, second)
	require.NoError(t, r2.err)
	assert.Equal(t, "fresh", r2.out.Content)

	assert.Equal(t, []string{"partial"}, rec.updatesFor(firstReply))
	assert.Equal(t, []bool{true, false}, rec.sendingHistory())
}

func TestStartNewSession_SupersedesActiveCycle(t *testing.T) {
	backend := newFakeBackend(&api.Conversation{ID: "c1", Title: "Hello"})
	c, rec := newTestController(t, backend)
	_, err := c.LoadConversation(context.Background(), "c1")
	require.NoError(t, err)

	result := sendAsync(c, "Hello")
	w := waitStream(t, backend)

	state := c.StartNewSession()
	assert.Equal(t, "", state.ConversationID)
	assert.False(t, state.Sending)
	assert.Equal(t, CycleNone, state.Cycle)

	r := waitResult(t, result)
	require.ErrorIs(t, r.err, ErrSuperseded)
	assert.Error(t, writeFrame(w, `{"content":"late"}`))

	assert.Empty(t, rec.view())
	assert.Equal(t, []bool{true, false}, rec.sendingHistory())
	assert.Equal(t, "", rec.lastList().current)

	again := c.StartNewSession()
	assert.Equal(t, state, again)
}

func TestDeleteConversation_CurrentStartsNewSession(t *testing.T) {
	backend := newFakeBackend(
		&api.Conversation{ID: "c1", Title: "One", Messages: []api.Message{{Role: api.RoleUser, Content: "hi"}}},
		&api.Conversation{ID: "c2", Title: "Two"},
	)
	c, rec := newTestController(t, backend)
	_, err := c.LoadConversation(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, rec.view(), 1)

	state, err := c.DeleteConversation(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, "", state.ConversationID)
	assert.Empty(t, rec.view())
	assert.Equal(t, []api.Summary{{ID: "c2", Title: "Two"}}, c.Directory().List())
	assert.Equal(t, listChange{list: []api.Summary{{ID: "c2", Title: "Two"}}}, rec.lastList())
}

func TestDeleteConversation_OtherKeepsCurrent(t *testing.T) {
	backend := newFakeBackend(&api.Conversation{ID: "c1", Title: "One"}, &api.Conversation{ID: "c2", Title: "Two"})
	c, rec := newTestController(t, backend)
	_, err := c.LoadConversation(context.Background(), "c1")
	require.NoError(t, err)

	state, err := c.DeleteConversation(context.Background(), "c2")
	require.NoError(t, err)

	assert.Equal(t, "c1", state.ConversationID)
	assert.Equal(t, 1, rec.cleared, "only the load cleared the view")
	assert.Equal(t, []api.Summary{{ID: "c1", Title: "One"}}, c.Directory().List())
}

func TestDeleteConversation_FailureLeavesState(t *testing.T) {
	backend := newFakeBackend(&api.Conversation{ID: "c1", Title: "One"})
	c, _ := newTestController(t, backend)
	_, err := c.LoadConversation(context.Background(), "c1")
	require.NoError(t, err)
	before := c.State()

	_, err = c.DeleteConversation(context.Background(), "missing")
	require.ErrorIs(t, err, api.ErrNotFound)

	assert.Equal(t, before, c.State())
	assert.Equal(t, []api.Summary{{ID: "c1", Title: "One"}}, c.Directory().List())
}

func TestClearAllConversations(t *testing.T) {
	backend := newFakeBackend(&api.Conversation{ID: "c1", Title: "One"}, &api.Conversation{ID: "c2", Title: "Two"})
	c, rec := newTestController(t, backend)
	_, err := c.LoadConversation(context.Background(), "c1")
	require.NoError(t, err)

	state, err := c.ClearAllConversations(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "", state.ConversationID)
	assert.Empty(t, c.Directory().List())
	assert.Empty(t, rec.view())
}

func TestClearAllConversations_FailureLeavesState(t *testing.T) {
	backend := newFakeBackend(&api.Conversation{ID: "c1", Title: "One"})
	backend.clearErr = &api.RequestRejectedError{Op: "clear conversations", StatusCode: 500}
	c, rec := newTestController(t, backend)
	_, err := c.LoadConversation(context.Background(), "c1")
	require.NoError(t, err)
	before := c.State()
	clearedBefore := rec.cleared

	_, err = c.ClearAllConversations(context.Background())
	require.Error(t, err)

	assert.Equal(t, before, c.State())
	assert.Equal(t, clearedBefore, rec.cleared)
}

func TestLoadConversation_ShowsHistory(t *testing.T) {
	backend := newFakeBackend(&api.Conversation{
		ID:    "c1",
		Title: "Hello",
		Messages: []api.Message{
			{Role: api.RoleUser, Content: "Hello"},
			{Role: api.RoleAssistant, Content: "Hi there"},
		},
	})
	c, rec := newTestController(t, backend)

	state, err := c.LoadConversation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", state.ConversationID)

	view := rec.view()
	require.Len(t, view, 2)
	assert.Equal(t, api.RoleUser, view[0].Role)
	assert.Equal(t, "Hello", view[0].Content)
	assert.Equal(t, api.RoleAssistant, view[1].Role)
	assert.Equal(t, "Hi there", view[1].Content)
	assert.NotEqual(t, view[0].Ref, view[1].Ref)
}

func TestLoadConversation_NotFoundLeavesState(t *testing.T) {
	c, rec := newTestController(t, newFakeBackend())

	_, err := c.LoadConversation(context.Background(), "nope")
	require.ErrorIs(t, err, api.ErrNotFound)

	assert.Equal(t, State{}, c.State())
	assert.Zero(t, rec.cleared)
}

func TestRefresh_IsIdempotent(t *testing.T) {
	backend := newFakeBackend(&api.Conversation{ID: "c1", Title: "One"}, &api.Conversation{ID: "c2", Title: "Two"})
	c, _ := newTestController(t, backend)

	first, err := c.Refresh(context.Background())
	require.NoError(t, err)
	second, err := c.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCycleStateString(t *testing.T) {
	assert.Equal(t, "streaming", CycleStreaming.String())
	assert.Equal(t, "superseded", CycleSuperseded.String())
	assert.True(t, CycleFailed.Terminal())
	assert.False(t, CycleBound.Terminal())
}
