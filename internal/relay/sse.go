package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// SSEChannel writes frames as server-sent events.
type SSEChannel struct {
	w       http.ResponseWriter
	flusher http.Flusher
	done    <-chan struct{}
}

// NewSSEChannel sets the event-stream headers and commits a 200 response.
func NewSSEChannel(w http.ResponseWriter, r *http.Request) (*SSEChannel, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEChannel{w: w, flusher: flusher, done: r.Context().Done()}, nil
}

// Write encodes f as "event: <name>\ndata: <json>\n\n".
func (s *SSEChannel) Write(f Frame) error {
	data, err := json.Marshal(f.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	if f.Retry > 0 {
		if _, err := fmt.Fprintf(s.w, "retry: %d\n", f.Retry.Milliseconds()); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", f.Event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *SSEChannel) Done() <-chan struct{} { return s.done }

func (s *SSEChannel) End() error {
	s.flusher.Flush()
	return nil
}
