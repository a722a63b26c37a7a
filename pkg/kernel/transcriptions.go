package kernel

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
	"github.com/MickaelSuard/ComiaV2/internal/export"
)

func (s *Server) handleListTranscriptions(w http.ResponseWriter, r *http.Request) {
	activeID := ""
	if job, ok := s.transcription.Active(); ok {
		activeID = job.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transcriptions": s.transcription.List(),
		"active_id":      activeID,
	})
}

func (s *Server) handleSubmitTranscription(w http.ResponseWriter, r *http.Request) {
	var req domain.MediaUpload
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	job, err := s.transcription.Submit(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetTranscription(w http.ResponseWriter, r *http.Request) {
	job, ok := s.transcription.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "transcription not found"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteTranscription(w http.ResponseWriter, r *http.Request) {
	if err := s.transcription.Delete(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetryTranscription(w http.ResponseWriter, r *http.Request) {
	job, err := s.transcription.Retry(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleSelectTranscription(w http.ResponseWriter, r *http.Request) {
	selected := s.transcription.Select(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]bool{"selected": selected})
}

func (s *Server) handleSearchTranscriptions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	s.transcription.SetSearch(req.Query)
	writeJSON(w, http.StatusOK, map[string]any{
		"transcriptions": s.transcription.Visible(),
	})
}

// handleExportTranscription streams the transcript or summary of a completed
// job as a downloadable file.
func (s *Server) handleExportTranscription(w http.ResponseWriter, r *http.Request) {
	job, ok := s.transcription.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "transcription not found"})
		return
	}
	if job.Result == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "transcription not completed"})
		return
	}
	file, err := export.Render(job.Input, *job.Result, export.Format(chi.URLParam(r, "format")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(file.Data)
}
