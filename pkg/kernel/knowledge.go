package kernel

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
)

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	activeID := ""
	if svc, ok := s.knowledge.ActiveService(); ok {
		activeID = string(svc.ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"services":  s.knowledge.Services(),
		"active_id": activeID,
	})
}

func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string             `json:"name"`
		Description string             `json:"description"`
		Kind        domain.ServiceKind `json:"kind"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	svc, err := s.knowledge.CreateService(req.Name, req.Description, req.Kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	svc, err := s.knowledge.GetService(domain.ServiceID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (s *Server) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	if err := s.knowledge.DeleteService(domain.ServiceID(chi.URLParam(r, "id"))); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectService(w http.ResponseWriter, r *http.Request) {
	selected := s.knowledge.Select(domain.ServiceID(chi.URLParam(r, "id")))
	writeJSON(w, http.StatusOK, map[string]bool{"selected": selected})
}

func (s *Server) handleSetServiceStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status domain.ServiceStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	svc, err := s.knowledge.SetServiceStatus(domain.ServiceID(chi.URLParam(r, "id")), req.Status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (s *Server) handleSearchServices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	s.knowledge.SetSearch(req.Query)
	writeJSON(w, http.StatusOK, map[string]any{
		"services": s.knowledge.VisibleServices(),
	})
}

func (s *Server) handleListServiceDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.knowledge.Documents(domain.ServiceID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleUploadServiceDocument(w http.ResponseWriter, r *http.Request) {
	var req domain.DocumentUpload
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	doc, err := s.knowledge.UploadDocument(domain.ServiceID(chi.URLParam(r, "id")), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (s *Server) handleRetryServiceDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.knowledge.RetryDocument(
		domain.ServiceID(chi.URLParam(r, "id")),
		chi.URLParam(r, "docID"),
	)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (s *Server) handleDeleteServiceDocument(w http.ResponseWriter, r *http.Request) {
	err := s.knowledge.DeleteDocument(
		domain.ServiceID(chi.URLParam(r, "id")),
		chi.URLParam(r, "docID"),
	)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	var req domain.Query
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	query, err := s.knowledge.Search(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, query)
}

func (s *Server) handleQueryHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"queries": s.knowledge.QueryHistory(),
	})
}

func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	query, ok := s.knowledge.GetQuery(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "query not found"})
		return
	}
	writeJSON(w, http.StatusOK, query)
}

func (s *Server) handleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	if err := s.knowledge.DeleteQuery(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
