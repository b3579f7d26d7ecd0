// Package backend is a reference implementation of the chat backend.
//
// # HTTP API
//
//   - POST /api/chat - Accept {message, conversation_id}; queue a reply
//   - GET /api/chat?stream=true - Stream the queued reply as SSE
//   - GET /api/conversations - List conversations, oldest first
//   - GET /api/conversations/{id} - One conversation with its messages
//   - DELETE /api/conversations/{id} - Delete a conversation
//   - POST /api/clear - Delete every conversation
//   - GET /health - Liveness check
//
// # Send and Stream
//
// A send and its reply are two requests. POST /api/chat stores the user
// message (creating a conversation when the id is missing or unknown) and
// parks a pending reply; the next stream request drains it. Only one reply
// is pending at a time and a newer send replaces it. A stream request with
// nothing pending gets 404.
//
// The stream carries data-only frames:
//
//	data: {"content":"You "}
//
//	data: {"content":"said: hi"}
//
//	data: {"conversation_id":"...","done":true}
//
// New conversations are titled from the first message and retitled from the
// first reply, both cut to 50 characters.
//
// # Idempotency
//
// A send carrying an Idempotency-Key already seen within the dedupe window is
// answered with {"status":"duplicate"} and queues nothing.
package backend
