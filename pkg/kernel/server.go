package kernel

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/MickaelSuard/ComiaV2/internal/config"
	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
	"github.com/MickaelSuard/ComiaV2/internal/core/engine"
	"github.com/MickaelSuard/ComiaV2/internal/core/services"
	"github.com/MickaelSuard/ComiaV2/internal/export"
)

// Server is the HTTP surface of the kernel. It owns no state of its own:
// every handler delegates to one of the module services.
type Server struct {
	logger        *slog.Logger
	chat          *services.ChatService
	transcription *services.TranscriptionService
	knowledge     *services.KnowledgeService
	documents     *services.DocumentService
	stats         *services.StatsService
	settings      *config.SettingsStore
	eventBus      *services.EventBus
}

func NewServer(
	logger *slog.Logger,
	chat *services.ChatService,
	transcription *services.TranscriptionService,
	knowledge *services.KnowledgeService,
	documents *services.DocumentService,
	stats *services.StatsService,
	settings *config.SettingsStore,
	eventBus *services.EventBus,
) *Server {
	return &Server{
		logger:        logger,
		chat:          chat,
		transcription: transcription,
		knowledge:     knowledge,
		documents:     documents,
		stats:         stats,
		settings:      settings,
		eventBus:      eventBus,
	}
}

// Routes builds the full HTTP handler, including CORS for browser clients.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", s.handleListConversations)
			r.Post("/", s.handleCreateConversation)
			r.Post("/search", s.handleSearchConversations)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetConversation)
				r.Patch("/", s.handleRenameConversation)
				r.Delete("/", s.handleDeleteConversation)
				r.Post("/select", s.handleSelectConversation)
				r.Get("/messages", s.handleListMessages)
				r.Post("/messages", s.handleSendMessage)
				r.Get("/turns", s.handleListTurns)
				r.Post("/turns/{turnID}/retry", s.handleRetryTurn)
				r.Delete("/turns/{turnID}", s.handleDeleteTurn)
				r.Get("/events", s.handleEntityEvents)
			})
		})

		r.Route("/transcriptions", func(r chi.Router) {
			r.Get("/", s.handleListTranscriptions)
			r.Post("/", s.handleSubmitTranscription)
			r.Post("/search", s.handleSearchTranscriptions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTranscription)
				r.Delete("/", s.handleDeleteTranscription)
				r.Post("/select", s.handleSelectTranscription)
				r.Post("/retry", s.handleRetryTranscription)
				r.Get("/export/{format}", s.handleExportTranscription)
			})
		})

		r.Route("/knowledge", func(r chi.Router) {
			r.Route("/services", func(r chi.Router) {
				r.Get("/", s.handleListServices)
				r.Post("/", s.handleCreateService)
				r.Post("/search", s.handleSearchServices)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetService)
					r.Delete("/", s.handleDeleteService)
					r.Post("/select", s.handleSelectService)
					r.Put("/status", s.handleSetServiceStatus)
					r.Get("/documents", s.handleListServiceDocuments)
					r.Post("/documents", s.handleUploadServiceDocument)
					r.Post("/documents/{docID}/retry", s.handleRetryServiceDocument)
					r.Delete("/documents/{docID}", s.handleDeleteServiceDocument)
				})
			})
			r.Post("/search", s.handleKnowledgeSearch)
			r.Get("/search/history", s.handleQueryHistory)
			r.Get("/search/history/{id}", s.handleGetQuery)
			r.Delete("/search/history/{id}", s.handleDeleteQuery)
		})

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", s.handleListDocuments)
			r.Post("/", s.handleUploadDocument)
			r.Post("/search", s.handleSearchDocuments)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDocument)
				r.Delete("/", s.handleDeleteDocument)
				r.Post("/select", s.handleSelectDocument)
				r.Post("/retry", s.handleRetryDocument)
				r.Get("/chat", s.handleDocumentChat)
				r.Post("/chat", s.handleDocumentAsk)
			})
		})

		r.Get("/stats", s.handleStats)
		r.Get("/activity", s.handleActivity)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)

		r.Get("/events", s.handleGlobalEvents)
		r.Get("/events/{id}", s.handleEntityEvents)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps service errors onto HTTP statuses. Anything not
// recognized is a 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrConversationNotFound),
		errors.Is(err, domain.ErrServiceNotFound),
		errors.Is(err, domain.ErrDocumentNotFound),
		errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrEmptyPrompt),
		errors.Is(err, domain.ErrEmptyQuery),
		errors.Is(err, domain.ErrEmptyQuestion),
		errors.Is(err, domain.ErrUnsupportedMedia),
		errors.Is(err, domain.ErrUnsupportedDocument),
		errors.Is(err, export.ErrUnknownFormat):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrInvalidTransition):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
