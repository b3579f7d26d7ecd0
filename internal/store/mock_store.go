// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"slices"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	order    []string                 // conversation ids in creation order
	convs    map[string]*Conversation // keyed by conversation ID
	messages map[string][]*Message    // keyed by conversation ID
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		convs:    make(map[string]*Conversation),
		messages: make(map[string][]*Message),
	}
}

// CreateConversation stores a new conversation.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.convs[conv.ID]; ok {
		return ErrDuplicateConversation
	}
	c := *conv
	c.Messages = nil
	m.convs[c.ID] = &c
	m.order = append(m.order, c.ID)
	return nil
}

// GetConversation returns a copy of the conversation with its messages.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *conv
	c.Messages = []*Message{}
	for _, msg := range m.messages[id] {
		cp := *msg
		c.Messages = append(c.Messages, &cp)
	}
	return &c, nil
}

// ListConversations returns conversations in creation order.
func (m *MockStore) ListConversations(ctx context.Context) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Conversation, 0, len(m.order))
	for _, id := range m.order {
		c := *m.convs[id]
		out = append(out, &c)
	}
	return out, nil
}

// SaveMessage appends a message to its conversation.
func (m *MockStore) SaveMessage(ctx context.Context, msg *Message) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.convs[msg.ConversationID]
	if !ok {
		return 0, ErrNotFound
	}
	cp := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &cp)
	conv.UpdatedAt = msg.CreatedAt
	return len(m.messages[msg.ConversationID]), nil
}

// UpdateTitle sets a conversation's title.
func (m *MockStore) UpdateTitle(ctx context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.convs[id]
	if !ok {
		return ErrNotFound
	}
	conv.Title = title
	return nil
}

// DeleteConversation removes a conversation and its messages.
func (m *MockStore) DeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.convs[id]; !ok {
		return ErrNotFound
	}
	delete(m.convs, id)
	delete(m.messages, id)
	m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })
	return nil
}

// ClearConversations removes everything.
func (m *MockStore) ClearConversations(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.order = nil
	m.convs = make(map[string]*Conversation)
	m.messages = make(map[string][]*Message)
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time interface checks.
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MockStore)(nil)
)
