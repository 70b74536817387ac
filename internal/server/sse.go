package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jonathan/pdfprep/internal/jobs"
)

// SSE event names.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// SSEWriter helps write Server-Sent Events
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends an SSE event
func (s *SSEWriter) WriteEvent(event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteRecord sends rec as a progress event, or as the closing complete or
// error event once it is terminal. It reports whether the stream should end.
func (s *SSEWriter) WriteRecord(rec jobs.Record) (bool, error) {
	switch rec.Status {
	case jobs.StatusComplete:
		return true, s.WriteEvent(EventComplete, rec)
	case jobs.StatusError:
		return true, s.WriteEvent(EventError, rec)
	default:
		return false, s.WriteEvent(EventProgress, rec)
	}
}

// WriteKeepAlive sends an SSE comment line.
func (s *SSEWriter) WriteKeepAlive() error {
	if _, err := fmt.Fprint(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
