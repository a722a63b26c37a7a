package services

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
	"github.com/MickaelSuard/ComiaV2/internal/core/engine"
	"github.com/MickaelSuard/ComiaV2/internal/core/ports"
)

const nsDocuments = "documentation:jobs"

func docChatNamespace(docID string) string {
	return "documentation:chat:" + docID
}

// DocumentService manages document analysis jobs and the per-document
// contextual chat. A document must finish analyzing before questions can be
// asked about it.
type DocumentService struct {
	logger   *slog.Logger
	kv       engine.KV
	bus      *EventBus
	activity *ActivityRecorder
	ctrlCfg  engine.ControllerConfig

	store     *engine.Store[domain.DocumentUpload, domain.DocAnalysis]
	ctrl      *engine.Controller[domain.DocumentUpload, domain.DocAnalysis]
	selection *engine.Selection[engine.Entity[domain.DocumentUpload, domain.DocAnalysis]]

	mu      sync.RWMutex
	backend ports.SummaryBackend
	chats   map[string]*docChatState
}

type docChatState struct {
	turns *engine.Store[domain.Question, domain.Answer]
	ctrl  *engine.Controller[domain.Question, domain.Answer]
}

// NewDocumentService restores persisted analysis jobs and their chats.
func NewDocumentService(logger *slog.Logger, kv engine.KV, bus *EventBus, activity *ActivityRecorder, backend ports.SummaryBackend, ctrlCfg engine.ControllerConfig) (*DocumentService, error) {
	store, err := engine.NewStore[domain.DocumentUpload, domain.DocAnalysis](engine.StoreOptions{
		IDPrefix:    "sum-",
		PrependNew:  true,
		Persistence: engine.NewKVPersistence(kv, nsDocuments),
	})
	if err != nil {
		return nil, err
	}

	s := &DocumentService{
		logger:   logger,
		kv:       kv,
		bus:      bus,
		activity: activity,
		ctrlCfg:  ctrlCfg,
		store:    store,
		backend:  backend,
		chats:    make(map[string]*docChatState),
	}
	s.selection = engine.NewSelection(
		store.List,
		func(e engine.Entity[domain.DocumentUpload, domain.DocAnalysis]) string { return e.ID },
		func(e engine.Entity[domain.DocumentUpload, domain.DocAnalysis]) string { return e.Input.Filename },
	)

	proc := engine.ProcessorFunc[domain.DocumentUpload, domain.DocAnalysis](func(ctx context.Context, id string, in domain.DocumentUpload) (engine.Outcome[domain.DocAnalysis], error) {
		s.mu.RLock()
		b := s.backend
		s.mu.RUnlock()

		analysis, err := b.Analyze(ctx, in)
		if err != nil {
			return engine.Outcome[domain.DocAnalysis]{}, err
		}
		return engine.Outcome[domain.DocAnalysis]{Result: &analysis}, nil
	})

	s.ctrl = engine.NewController[domain.DocumentUpload, domain.DocAnalysis](store, proc, logger, ctrlCfg)
	s.ctrl.OnTransition = func(job engine.Entity[domain.DocumentUpload, domain.DocAnalysis]) {
		publishStatus(bus, domain.ModuleDocumentation, job.ID, job.Status)
		switch job.Status {
		case engine.StatusCompleted:
			activity.Record(domain.ModuleDocumentation, domain.ActionCompleted, job.Input.Filename)
		case engine.StatusError:
			activity.Record(domain.ModuleDocumentation, domain.ActionFailed, job.Input.Filename)
		}
	}

	// Rebuild the chat collection of every restored document.
	for _, job := range store.List() {
		state, err := s.newChatState(job.ID)
		if err != nil {
			return nil, err
		}
		s.chats[job.ID] = state
	}
	return s, nil
}

// UpdateBackend swaps the summarization backend for future jobs.
func (s *DocumentService) UpdateBackend(backend ports.SummaryBackend) {
	s.mu.Lock()
	s.backend = backend
	s.mu.Unlock()
}

// Upload queues a document for analysis. Unsupported formats are rejected
// before a job is created.
func (s *DocumentService) Upload(upload domain.DocumentUpload) (engine.Entity[domain.DocumentUpload, domain.DocAnalysis], error) {
	if !upload.IsDocument() {
		return engine.Entity[domain.DocumentUpload, domain.DocAnalysis]{}, domain.ErrUnsupportedDocument
	}

	job, err := s.ctrl.Submit(upload)
	if err != nil {
		return engine.Entity[domain.DocumentUpload, domain.DocAnalysis]{}, err
	}

	chat, err := s.newChatState(job.ID)
	if err != nil {
		return engine.Entity[domain.DocumentUpload, domain.DocAnalysis]{}, err
	}
	s.mu.Lock()
	s.chats[job.ID] = chat
	s.mu.Unlock()

	s.activity.Record(domain.ModuleDocumentation, domain.ActionSubmitted, upload.Filename)
	return job, nil
}

// Retry re-runs a failed analysis with the original upload.
func (s *DocumentService) Retry(id string) (engine.Entity[domain.DocumentUpload, domain.DocAnalysis], error) {
	job, err := s.ctrl.Retry(id)
	if err != nil {
		return engine.Entity[domain.DocumentUpload, domain.DocAnalysis]{}, err
	}
	s.activity.Record(domain.ModuleDocumentation, domain.ActionRetried, job.Input.Filename)
	return job, nil
}

// Delete removes a document and its chat, cancelling any work in flight.
func (s *DocumentService) Delete(id string) error {
	job, ok := s.store.Get(id)
	if err := s.ctrl.Delete(id); err != nil {
		return err
	}

	s.mu.Lock()
	chat := s.chats[id]
	delete(s.chats, id)
	s.mu.Unlock()

	if chat != nil {
		chat.ctrl.Shutdown()
	}
	if err := clearNamespace(s.kv, docChatNamespace(id)); err != nil {
		s.logger.Error("failed to clear document chat", "document_id", id, "error", err)
	}

	if ok {
		s.activity.Record(domain.ModuleDocumentation, domain.ActionDeleted, job.Input.Filename)
	}
	s.selection.Reconcile()
	return nil
}

// Get returns one analysis job.
func (s *DocumentService) Get(id string) (engine.Entity[domain.DocumentUpload, domain.DocAnalysis], bool) {
	return s.store.Get(id)
}

// List returns all analysis jobs, newest first.
func (s *DocumentService) List() []engine.Entity[domain.DocumentUpload, domain.DocAnalysis] {
	return s.store.List()
}

// Len returns the number of documents.
func (s *DocumentService) Len() int {
	return s.store.Len()
}

// Select activates a document for the detail view.
func (s *DocumentService) Select(id string) bool {
	return s.selection.Select(id)
}

// Active returns the selected document, if any.
func (s *DocumentService) Active() (engine.Entity[domain.DocumentUpload, domain.DocAnalysis], bool) {
	return s.selection.Active()
}

// SetSearch filters the document list by filename substring.
func (s *DocumentService) SetSearch(query string) {
	s.selection.SetSearch(query)
}

// Visible returns the documents matching the current search.
func (s *DocumentService) Visible() []engine.Entity[domain.DocumentUpload, domain.DocAnalysis] {
	return s.selection.Visible()
}

// Ask submits a question about an analyzed document. The document must have
// completed analysis.
func (s *DocumentService) Ask(docID, text string) (engine.Entity[domain.Question, domain.Answer], error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return engine.Entity[domain.Question, domain.Answer]{}, domain.ErrEmptyQuestion
	}

	job, ok := s.store.Get(docID)
	if !ok {
		return engine.Entity[domain.Question, domain.Answer]{}, domain.ErrDocumentNotFound
	}
	if job.Status != engine.StatusCompleted {
		return engine.Entity[domain.Question, domain.Answer]{}, domain.ErrDocumentNotFound
	}

	s.mu.RLock()
	chat := s.chats[docID]
	s.mu.RUnlock()
	if chat == nil {
		return engine.Entity[domain.Question, domain.Answer]{}, domain.ErrDocumentNotFound
	}

	turn, err := chat.ctrl.Submit(domain.Question{DocumentID: docID, Text: text})
	if err != nil {
		return engine.Entity[domain.Question, domain.Answer]{}, err
	}
	s.activity.Record(domain.ModuleDocumentation, domain.ActionSubmitted, job.Input.Filename)
	return turn, nil
}

// Chat returns the document's question/answer history flattened for display.
func (s *DocumentService) Chat(docID string) ([]domain.DocChatEntry, error) {
	if _, ok := s.store.Get(docID); !ok {
		return nil, domain.ErrDocumentNotFound
	}

	s.mu.RLock()
	chat := s.chats[docID]
	s.mu.RUnlock()
	if chat == nil {
		return nil, nil
	}

	turns := chat.turns.List()
	out := make([]domain.DocChatEntry, 0, 2*len(turns))
	for _, turn := range turns {
		out = append(out, domain.DocChatEntry{
			Role:      domain.RoleUser,
			Text:      turn.Input.Text,
			CreatedAt: turn.CreatedAt,
		})
		if turn.Status == engine.StatusCompleted && turn.Result != nil {
			out = append(out, domain.DocChatEntry{
				Role:      domain.RoleAssistant,
				Text:      turn.Result.Text,
				PageRef:   turn.Result.PageRef,
				CreatedAt: turn.UpdatedAt,
			})
		}
	}
	return out, nil
}

// Shutdown cancels all in-flight analysis and chat jobs.
func (s *DocumentService) Shutdown() {
	s.ctrl.Shutdown()

	s.mu.RLock()
	chats := make([]*docChatState, 0, len(s.chats))
	for _, chat := range s.chats {
		chats = append(chats, chat)
	}
	s.mu.RUnlock()

	for _, chat := range chats {
		chat.ctrl.Shutdown()
	}
}

func (s *DocumentService) newChatState(docID string) (*docChatState, error) {
	store, err := engine.NewStore[domain.Question, domain.Answer](engine.StoreOptions{
		IDPrefix:    "qa-",
		Persistence: engine.NewKVPersistence(s.kv, docChatNamespace(docID)),
	})
	if err != nil {
		return nil, err
	}

	proc := engine.ProcessorFunc[domain.Question, domain.Answer](func(ctx context.Context, id string, in domain.Question) (engine.Outcome[domain.Answer], error) {
		s.mu.RLock()
		b := s.backend
		s.mu.RUnlock()

		answer, err := b.Answer(ctx, in)
		if err != nil {
			return engine.Outcome[domain.Answer]{}, err
		}
		return engine.Outcome[domain.Answer]{Result: &answer}, nil
	})

	ctrl := engine.NewController[domain.Question, domain.Answer](store, proc, s.logger, s.ctrlCfg)
	ctrl.OnTransition = func(turn engine.Entity[domain.Question, domain.Answer]) {
		publishStatus(s.bus, domain.ModuleDocumentation, turn.ID, turn.Status)
		// SSE clients watch the document's chat, keyed by document id.
		publishStatus(s.bus, domain.ModuleDocumentation, docID, turn.Status)
	}

	return &docChatState{turns: store, ctrl: ctrl}, nil
}
