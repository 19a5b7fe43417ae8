package webui

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// sseRetryMillis is the reconnect delay suggested to browsers
const sseRetryMillis = 3000

// handleSSEEvents streams the events of the caller's session. The optional
// filter parameter is a comma-separated list of event types.
func (s *Server) handleSSEEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	store := s.sessionFor(w, r)
	clientID := uuid.NewString()
	client, err := s.sseManager.RegisterClient(clientID, store.ID(), parseEventFilters(r.URL.Query().Get("filter")))
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, errTooManySessionClients) {
			status = http.StatusTooManyRequests
		}
		http.Error(w, err.Error(), status)
		return
	}
	defer s.sseManager.UnregisterClient(clientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	_, _ = fmt.Fprintf(w, "retry: %d\nevent: %s\ndata: {\"client_id\":%q}\n\n",
		sseRetryMillis, EventTypeConnected, clientID)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.Done:
			return
		case message, ok := <-client.Events:
			if !ok {
				return
			}
			if _, err := w.Write(message); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func parseEventFilters(raw string) []string {
	if raw == "" {
		return nil
	}
	var filters []string
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			filters = append(filters, f)
		}
	}
	return filters
}
