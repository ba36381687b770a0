package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gameserverkit/warden/internal/events"
)

// serveStream streams the keyed event stream to the client as
// Server-Sent Events. Buffered events replay first, then live ones
// follow; the connection ends after the terminal event. A completed
// stream replays in full so late clients still see the outcome.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, key string) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stream := s.hub.Get(key)
	if stream == nil {
		s.respondError(w, http.StatusNotFound, "no event stream for "+key)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := stream.Subscribe()
	defer sub.Cancel()

	heartbeat := time.NewTicker(s.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			// Comment line per the SSE spec; keeps idle proxies from
			// dropping the connection.
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, open := <-sub.C:
			if !open {
				return
			}
			if err := writeSSEEvent(w, e); err != nil {
				return
			}
			flusher.Flush()
			if e.Kind == events.KindTerminal {
				return
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
