package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// SSEWriter frames events as text/event-stream on a held-open response.
type SSEWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewSSEWriter writes the stream headers and flushes them. The server-wide
// write timeout is lifted for this response only.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	rc := http.NewResponseController(w)

	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return nil, fmt.Errorf("failed to clear write deadline: %w", err)
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("streaming unsupported: %w", err)
	}

	return &SSEWriter{w: w, rc: rc}, nil
}

func (s *SSEWriter) Send(ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
		return err
	}

	return s.rc.Flush()
}
