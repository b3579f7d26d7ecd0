// Package stream consumes the backend's reply event stream.
//
// A Consumer attaches to GET /api/chat?stream=true for one send cycle and
// turns each text/event-stream frame into typed updates:
//
//	{"content":"Hi"}                       -> content-delta "Hi"
//	{"conversation_id":"c1"}               -> conversation-bound "c1"
//	{"done":true}                          -> completed
//	{"content":"!","conversation_id":"c1","done":true}
//	                                       -> content-delta, conversation-bound, completed
//
// A payload that fails to decode is logged and skipped. A transport failure,
// including the stream ending before done, produces a single failed update
// and ends the sequence. Nothing reconnects.
//
// Close may be called at any time, from any goroutine. Once it returns, Next
// reports no further updates even if frames were already buffered.
package stream
