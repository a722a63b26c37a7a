package kernel

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MickaelSuard/ComiaV2/internal/core/services"
)

// handleEntityEvents streams status events for a single job or conversation
// over SSE, keyed by entity id on the event bus.
func (s *Server) handleEntityEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing entity id", http.StatusBadRequest)
		return
	}
	ch, unsub := s.eventBus.Subscribe(id)
	defer unsub()
	s.streamEvents(w, r, ch)
}

// handleGlobalEvents streams every event on the bus, for dashboard clients
// that watch all modules at once.
func (s *Server) handleGlobalEvents(w http.ResponseWriter, r *http.Request) {
	ch, unsub := s.eventBus.SubscribeGlobal()
	defer unsub()
	s.streamEvents(w, r, ch)
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, ch <-chan services.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data)
			flusher.Flush()
		}
	}
}
