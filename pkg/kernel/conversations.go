package kernel

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
)

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	activeID := ""
	if conv, ok := s.chat.ActiveConversation(); ok {
		activeID = string(conv.ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": s.chat.Conversations(),
		"active_id":     activeID,
	})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	conv, err := s.chat.CreateConversation(req.Title)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.chat.GetConversation(domain.ConversationID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	conv, err := s.chat.RenameConversation(domain.ConversationID(chi.URLParam(r, "id")), req.Title)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.DeleteConversation(domain.ConversationID(chi.URLParam(r, "id"))); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectConversation(w http.ResponseWriter, r *http.Request) {
	selected := s.chat.Select(domain.ConversationID(chi.URLParam(r, "id")))
	writeJSON(w, http.StatusOK, map[string]bool{"selected": selected})
}

func (s *Server) handleSearchConversations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	s.chat.SetSearch(req.Query)
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": s.chat.VisibleConversations(),
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.chat.Messages(domain.ConversationID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	turn, err := s.chat.SendMessage(domain.ConversationID(chi.URLParam(r, "id")), req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, turn)
}

func (s *Server) handleListTurns(w http.ResponseWriter, r *http.Request) {
	turns, err := s.chat.Turns(domain.ConversationID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleRetryTurn(w http.ResponseWriter, r *http.Request) {
	turn, err := s.chat.RetryTurn(
		domain.ConversationID(chi.URLParam(r, "id")),
		chi.URLParam(r, "turnID"),
	)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, turn)
}

func (s *Server) handleDeleteTurn(w http.ResponseWriter, r *http.Request) {
	err := s.chat.DeleteTurn(
		domain.ConversationID(chi.URLParam(r, "id")),
		chi.URLParam(r, "turnID"),
	)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
