// ABOUTME: Incremental text/event-stream parser
// ABOUTME: Splits a response body into dispatched frames following EventSource field rules

package stream

import (
	"bufio"
	"io"
	"strings"
)

const (
	// maxFrameLine bounds a single line of the event stream.
	maxFrameLine = 1024 * 1024
	// defaultEventType is what EventSource reports for frames without an event: field.
	defaultEventType = "message"
)

// Frame is one dispatched server-sent event.
type Frame struct {
	Event string
	Data  string
	ID    string
}

// Reader reads frames from an event stream body.
type Reader struct {
	scanner *bufio.Scanner
	lastID  string
}

// NewReader wraps r for frame-by-frame reading.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameLine)
	return &Reader{scanner: scanner}
}

// Next blocks until the next frame is dispatched. It returns io.EOF when the
// body ends; a frame not yet terminated by a blank line is discarded then.
// Frames without any data line are never dispatched.
func (r *Reader) Next() (Frame, error) {
	var (
		eventType string
		data      strings.Builder
		hasData   bool
	)

	for r.scanner.Scan() {
		line := r.scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if !hasData {
				eventType = ""
				continue
			}
			if eventType == "" {
				eventType = defaultEventType
			}
			return Frame{
				Event: eventType,
				Data:  strings.TrimSuffix(data.String(), "\n"),
				ID:    r.lastID,
			}, nil
		}

		// Comment line
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "event":
			eventType = value
		case "data":
			data.WriteString(value)
			data.WriteString("\n")
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				r.lastID = value
			}
		default:
			// retry: and unknown fields carry nothing for us
		}
	}

	if err := r.scanner.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}
