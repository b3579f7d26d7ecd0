// Package store persists the reference backend's conversations.
//
// # Data Model
//
//   - Conversation: id, title, created/updated timestamps
//   - Message: role (user or assistant) and content, ordered by insertion
//
// Conversations list oldest first. Deleting a conversation removes its
// messages.
//
// # Implementations
//
// SQLiteStore uses modernc.org/sqlite (pure Go, no cgo) with WAL mode and
// foreign keys enabled. MockStore keeps everything in memory for tests.
//
// # Error Handling
//
// Operations on unknown conversations return ErrNotFound. Creating a
// conversation with an id that is already taken returns
// ErrDuplicateConversation.
package store
