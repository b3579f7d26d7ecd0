// Package session implements the chat session controller.
//
// A Controller runs one send-and-receive cycle at a time:
//
//	Pending -> Streaming -> Bound -> Completed
//	                     \-> Failed
//
// Send posts the user's message, opens a stream.Consumer for the reply,
// folds content deltas into a buffer and forwards the full buffer to the
// Presenter after each delta. The first conversation id the stream reports
// is bound to the cycle, made current in the directory, and followed by a
// background directory refresh.
//
// Starting another send, loading a conversation, or starting a new session
// supersedes the active cycle. Supersession bumps a generation counter and
// closes the old consumer while holding the controller lock, so the old
// cycle cannot reach the Presenter again.
//
// Failures are never retried. A failed cycle with no content replaces the
// reply placeholder with ErrorReply; partial content stays as it is.
package session
