package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StreamSessionEvents streams session snapshots as server-sent events.
func (s *Server) StreamSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	snapshots, cancel, err := s.sessions.Subscribe(id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return
			}

			data, err := json.Marshal(snap)
			if err != nil {
				s.logger.Error().Err(err).Msg("Failed to encode snapshot")
				return
			}
			w.Write([]byte("event: session\ndata: "))
			w.Write(data)
			w.Write([]byte("\n\n"))

			flusher.Flush()

		case <-r.Context().Done():
			return

		case <-s.closing:
			return
		}
	}
}
