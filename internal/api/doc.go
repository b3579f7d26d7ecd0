// Package api is the HTTP client for the chat backend.
//
// # Endpoints
//
//	POST   /api/chat                 send a message (body ChatRequest)
//	GET    /api/chat?stream=true     reply event stream (text/event-stream)
//	GET    /api/conversations        list summaries
//	GET    /api/conversations/{id}   one conversation with messages
//	DELETE /api/conversations/{id}   delete one conversation
//	POST   /api/clear                delete every conversation
//
// # Errors
//
// Any non-2xx response becomes a *RequestRejectedError. A 404 additionally
// matches ErrNotFound:
//
//	if errors.Is(err, api.ErrNotFound) {
//		// conversation is gone, leave local state alone
//	}
//
// No call is ever retried.
package api
