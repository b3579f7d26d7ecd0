// ABOUTME: Error kinds returned by the backend client
// ABOUTME: RequestRejectedError for non-2xx responses, ErrNotFound for unknown conversations

package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound reports that the backend does not know the referenced conversation.
var ErrNotFound = errors.New("conversation not found")

// RequestRejectedError is returned when the backend answers with a non-2xx status.
type RequestRejectedError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RequestRejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
}

// Unwrap maps 404 responses onto ErrNotFound so callers can use errors.Is.
func (e *RequestRejectedError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// IsRejected reports whether err is a RequestRejectedError.
func IsRejected(err error) bool {
	var rejected *RequestRejectedError
	return errors.As(err, &rejected)
}
