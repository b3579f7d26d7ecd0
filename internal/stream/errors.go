// ABOUTME: Error kinds produced while consuming a reply stream
// ABOUTME: TransportError ends a cycle, MalformedFrameError is logged and skipped

package stream

import (
	"errors"
	"fmt"
)

// ErrStreamEnded reports a stream that closed before signalling done.
var ErrStreamEnded = errors.New("stream ended before completion")

// TransportError wraps a connection-level failure of the reply stream.
// It is always terminal for the cycle; nothing reconnects.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedFrameError describes a frame whose payload could not be decoded.
type MalformedFrameError struct {
	Data string
	Err  error
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed stream frame %q: %v", truncate(e.Data, 80), e.Err)
}

func (e *MalformedFrameError) Unwrap() error {
	return e.Err
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
