package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"chartsense/backend-go/internal/models"
)

// eventStream writes chat events as server-sent events. Headers go out with
// the first event so errors raised before streaming can still be answered
// with a plain JSON status.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu      sync.Mutex
	started bool
}

func newEventStream(w http.ResponseWriter) (*eventStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "streaming_unsupported", Message: "streaming unsupported"})
		return nil, false
	}
	return &eventStream{w: w, flusher: flusher}, true
}

func (s *eventStream) Send(evt models.ChatEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	_, _ = fmt.Fprintf(s.w, "data: %s\n\n", data)
	s.flusher.Flush()
}

func (s *eventStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// finish reports err on the stream if one is open, as JSON otherwise.
func (s *eventStream) finish(w http.ResponseWriter, err error, userMsg string) {
	if err == nil {
		return
	}
	if !s.Started() {
		writeError(w, err)
		return
	}
	if userMsg != "" {
		s.Send(models.ChatEvent{Type: models.ChatEventError, Error: userMsg})
	}
}
