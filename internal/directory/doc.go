// Package directory keeps the client's cached list of conversations and the
// id of the conversation currently in focus.
//
// The backend owns conversation data. Refresh replaces the cached list
// wholesale with what GET /api/conversations returns; nothing is merged. The
// current pointer either names a conversation in the list or is empty, which
// means the chat view holds an unsaved conversation.
//
// A conversation bound by a reply stream may not be listed yet. MarkCurrent
// inserts a provisional summary for it, and a refresh that started after the
// mark drops the pointer if the backend still does not list the id.
package directory
