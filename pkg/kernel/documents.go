package kernel

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
)

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	activeID := ""
	if doc, ok := s.documents.Active(); ok {
		activeID = doc.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": s.documents.List(),
		"active_id": activeID,
	})
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	var req domain.DocumentUpload
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	doc, err := s.documents.Upload(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.documents.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "document not found"})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.documents.Delete(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectDocument(w http.ResponseWriter, r *http.Request) {
	selected := s.documents.Select(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]bool{"selected": selected})
}

func (s *Server) handleRetryDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documents.Retry(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (s *Server) handleSearchDocuments(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	s.documents.SetSearch(req.Query)
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": s.documents.Visible(),
	})
}

func (s *Server) handleDocumentChat(w http.ResponseWriter, r *http.Request) {
	entries, err := s.documents.Chat(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat": entries})
}

func (s *Server) handleDocumentAsk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	turn, err := s.documents.Ask(chi.URLParam(r, "id"), req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, turn)
}
