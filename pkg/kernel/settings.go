package kernel

import (
	"net/http"
	"time"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
	"github.com/MickaelSuard/ComiaV2/internal/core/services"
)

// handleGetSettings returns the current config with API keys masked.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.GetMaskedConfig())
}

// handleUpdateSettings replaces the config. Masked key values in the body
// keep the stored secret; the store re-encrypts anything new.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req domain.AppConfig
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.settings.UpdateConfig(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// Tell every connected client, not just one entity's watchers.
	s.eventBus.Publish(services.Event{
		EntityID:  services.BroadcastChannel,
		Type:      services.EventTypeLog,
		Data:      `{"event":"settings_updated"}`,
		Timestamp: time.Now().UnixMilli(),
	})

	writeJSON(w, http.StatusOK, s.settings.GetMaskedConfig())
}
