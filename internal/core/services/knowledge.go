package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
	"github.com/MickaelSuard/ComiaV2/internal/core/engine"
	"github.com/MickaelSuard/ComiaV2/internal/core/ports"
)

const (
	nsKnowledgeServices = "knowledge:services"
	nsKnowledgeQueries  = "knowledge:queries"
)

func indexNamespace(id domain.ServiceID) string {
	return "knowledge:index:" + string(id)
}

// serviceState pairs a knowledge service's metadata with its nested document
// indexing collection.
type serviceState struct {
	meta domain.RAGService
	docs *engine.Store[domain.DocumentUpload, domain.IndexedDocument]
	ctrl *engine.Controller[domain.DocumentUpload, domain.IndexedDocument]
}

// KnowledgeService manages retrieval services, their indexed documents and
// the cross-service search history. Indexing and searching are asynchronous
// jobs; toggling a service active or inactive is immediate.
type KnowledgeService struct {
	logger   *slog.Logger
	kv       engine.KV
	bus      *EventBus
	activity *ActivityRecorder
	ctrlCfg  engine.ControllerConfig

	mu        sync.RWMutex
	backend   ports.SearchBackend
	services  map[domain.ServiceID]*serviceState
	order     []domain.ServiceID
	selection *engine.Selection[domain.RAGService]

	queries   *engine.Store[domain.Query, []domain.SearchHit]
	queryCtrl *engine.Controller[domain.Query, []domain.SearchHit]
}

// NewKnowledgeService restores persisted services, their document indexes and
// the query history.
func NewKnowledgeService(logger *slog.Logger, kv engine.KV, bus *EventBus, activity *ActivityRecorder, backend ports.SearchBackend, ctrlCfg engine.ControllerConfig) (*KnowledgeService, error) {
	s := &KnowledgeService{
		logger:   logger,
		kv:       kv,
		bus:      bus,
		activity: activity,
		ctrlCfg:  ctrlCfg,
		backend:  backend,
		services: make(map[domain.ServiceID]*serviceState),
	}
	s.selection = engine.NewSelection(
		s.Services,
		func(svc domain.RAGService) string { return string(svc.ID) },
		func(svc domain.RAGService) string { return svc.Name + " " + svc.Description },
	)

	queries, err := engine.NewStore[domain.Query, []domain.SearchHit](engine.StoreOptions{
		IDPrefix:    "qry-",
		PrependNew:  true,
		Persistence: engine.NewKVPersistence(kv, nsKnowledgeQueries),
	})
	if err != nil {
		return nil, err
	}
	s.queries = queries

	queryProc := engine.ProcessorFunc[domain.Query, []domain.SearchHit](func(ctx context.Context, id string, in domain.Query) (engine.Outcome[[]domain.SearchHit], error) {
		s.mu.RLock()
		b := s.backend
		s.mu.RUnlock()

		hits, err := b.Search(ctx, in)
		if err != nil {
			return engine.Outcome[[]domain.SearchHit]{}, err
		}
		return engine.Outcome[[]domain.SearchHit]{Result: &hits}, nil
	})
	s.queryCtrl = engine.NewController[domain.Query, []domain.SearchHit](queries, queryProc, logger, ctrlCfg)
	s.queryCtrl.OnTransition = func(q engine.Entity[domain.Query, []domain.SearchHit]) {
		publishStatus(bus, domain.ModuleKnowledge, q.ID, q.Status)
		switch q.Status {
		case engine.StatusCompleted:
			activity.Record(domain.ModuleKnowledge, domain.ActionCompleted, q.Input.Text)
		case engine.StatusError:
			activity.Record(domain.ModuleKnowledge, domain.ActionFailed, q.Input.Text)
		}
	}

	if err := s.restore(); err != nil {
		return nil, fmt.Errorf("restore knowledge services: %w", err)
	}
	return s, nil
}

// UpdateBackend swaps the search backend for future jobs.
func (s *KnowledgeService) UpdateBackend(backend ports.SearchBackend) {
	s.mu.Lock()
	s.backend = backend
	s.mu.Unlock()
}

// CreateService registers a new knowledge service in the configuring state.
func (s *KnowledgeService) CreateService(name, description string, kind domain.ServiceKind) (domain.RAGService, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.RAGService{}, fmt.Errorf("service name is empty")
	}
	if kind == "" {
		kind = domain.ServiceKindDocument
	}

	now := time.Now().UTC()
	svc := domain.RAGService{
		ID:          domain.NewServiceID(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Kind:        kind,
		Status:      domain.ServiceStatusConfiguring,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	state, err := s.newState(svc)
	if err != nil {
		return domain.RAGService{}, err
	}

	s.mu.Lock()
	s.services[svc.ID] = state
	s.order = append(s.order, svc.ID)
	s.mu.Unlock()

	if err := s.persistMeta(svc); err != nil {
		return domain.RAGService{}, err
	}
	return svc, nil
}

// Services lists all knowledge services in creation order.
func (s *KnowledgeService) Services() []domain.RAGService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RAGService, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.services[id].meta)
	}
	return out
}

// GetService returns one service's metadata.
func (s *KnowledgeService) GetService(id domain.ServiceID) (domain.RAGService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.services[id]
	if !ok {
		return domain.RAGService{}, domain.ErrServiceNotFound
	}
	return state.meta, nil
}

// SetServiceStatus toggles a service between active, inactive and
// configuring.
func (s *KnowledgeService) SetServiceStatus(id domain.ServiceID, status domain.ServiceStatus) (domain.RAGService, error) {
	s.mu.Lock()
	state, ok := s.services[id]
	if !ok {
		s.mu.Unlock()
		return domain.RAGService{}, domain.ErrServiceNotFound
	}
	state.meta.Status = status
	state.meta.UpdatedAt = time.Now().UTC()
	meta := state.meta
	s.mu.Unlock()

	if err := s.persistMeta(meta); err != nil {
		return domain.RAGService{}, err
	}
	return meta, nil
}

// DeleteService removes a service and its indexed documents, cancelling any
// indexing still in flight.
func (s *KnowledgeService) DeleteService(id domain.ServiceID) error {
	s.mu.Lock()
	state, ok := s.services[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrServiceNotFound
	}
	delete(s.services, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	state.ctrl.Shutdown()
	if err := clearNamespace(s.kv, indexNamespace(id)); err != nil {
		s.logger.Error("failed to clear service index", "service_id", id, "error", err)
	}
	if err := s.kv.Delete(nsKnowledgeServices, string(id)); err != nil {
		return fmt.Errorf("delete knowledge service: %w", err)
	}

	s.selection.Reconcile()
	s.activity.Record(domain.ModuleKnowledge, domain.ActionDeleted, string(id))
	return nil
}

// Select activates a service for the detail view.
func (s *KnowledgeService) Select(id domain.ServiceID) bool {
	return s.selection.Select(string(id))
}

// ActiveService returns the selected service, if any.
func (s *KnowledgeService) ActiveService() (domain.RAGService, bool) {
	return s.selection.Active()
}

// SetSearch filters the service list by name or description substring.
func (s *KnowledgeService) SetSearch(query string) {
	s.selection.SetSearch(query)
}

// VisibleServices returns the services matching the current search.
func (s *KnowledgeService) VisibleServices() []domain.RAGService {
	return s.selection.Visible()
}

// UploadDocument queues a document for indexing into a service's corpus.
func (s *KnowledgeService) UploadDocument(id domain.ServiceID, upload domain.DocumentUpload) (engine.Entity[domain.DocumentUpload, domain.IndexedDocument], error) {
	if !upload.IsDocument() {
		return engine.Entity[domain.DocumentUpload, domain.IndexedDocument]{}, domain.ErrUnsupportedDocument
	}

	s.mu.RLock()
	state, ok := s.services[id]
	s.mu.RUnlock()
	if !ok {
		return engine.Entity[domain.DocumentUpload, domain.IndexedDocument]{}, domain.ErrServiceNotFound
	}

	job, err := state.ctrl.Submit(upload)
	if err != nil {
		return engine.Entity[domain.DocumentUpload, domain.IndexedDocument]{}, err
	}
	s.activity.Record(domain.ModuleKnowledge, domain.ActionSubmitted, upload.Filename)
	return job, nil
}

// Documents lists a service's indexing jobs in upload order.
func (s *KnowledgeService) Documents(id domain.ServiceID) ([]engine.Entity[domain.DocumentUpload, domain.IndexedDocument], error) {
	s.mu.RLock()
	state, ok := s.services[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrServiceNotFound
	}
	return state.docs.List(), nil
}

// RetryDocument re-runs a failed indexing job.
func (s *KnowledgeService) RetryDocument(id domain.ServiceID, docID string) (engine.Entity[domain.DocumentUpload, domain.IndexedDocument], error) {
	s.mu.RLock()
	state, ok := s.services[id]
	s.mu.RUnlock()
	if !ok {
		return engine.Entity[domain.DocumentUpload, domain.IndexedDocument]{}, domain.ErrServiceNotFound
	}
	job, err := state.ctrl.Retry(docID)
	if err != nil {
		return engine.Entity[domain.DocumentUpload, domain.IndexedDocument]{}, err
	}
	s.activity.Record(domain.ModuleKnowledge, domain.ActionRetried, job.Input.Filename)
	return job, nil
}

// DeleteDocument removes one indexing job from a service.
func (s *KnowledgeService) DeleteDocument(id domain.ServiceID, docID string) error {
	s.mu.RLock()
	state, ok := s.services[id]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrServiceNotFound
	}
	return state.ctrl.Delete(docID)
}

// Search submits an asynchronous query. Empty service ids mean every active
// service; named services must exist and be active.
func (s *KnowledgeService) Search(query domain.Query) (engine.Entity[domain.Query, []domain.SearchHit], error) {
	query.Text = strings.TrimSpace(query.Text)
	if query.Text == "" {
		return engine.Entity[domain.Query, []domain.SearchHit]{}, domain.ErrEmptyQuery
	}

	if len(query.ServiceIDs) == 0 {
		query.ServiceIDs = s.activeServiceIDs()
	} else {
		for _, id := range query.ServiceIDs {
			if _, err := s.GetService(id); err != nil {
				return engine.Entity[domain.Query, []domain.SearchHit]{}, err
			}
		}
	}

	q, err := s.queryCtrl.Submit(query)
	if err != nil {
		return engine.Entity[domain.Query, []domain.SearchHit]{}, err
	}
	s.activity.Record(domain.ModuleKnowledge, domain.ActionSubmitted, query.Text)
	return q, nil
}

// QueryHistory lists past searches, newest first.
func (s *KnowledgeService) QueryHistory() []engine.Entity[domain.Query, []domain.SearchHit] {
	return s.queries.List()
}

// GetQuery returns one search job.
func (s *KnowledgeService) GetQuery(id string) (engine.Entity[domain.Query, []domain.SearchHit], bool) {
	return s.queries.Get(id)
}

// DeleteQuery removes one entry from the search history.
func (s *KnowledgeService) DeleteQuery(id string) error {
	return s.queryCtrl.Delete(id)
}

// Len returns the number of knowledge services.
func (s *KnowledgeService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Shutdown cancels all in-flight indexing and search jobs.
func (s *KnowledgeService) Shutdown() {
	s.queryCtrl.Shutdown()

	s.mu.RLock()
	states := make([]*serviceState, 0, len(s.services))
	for _, state := range s.services {
		states = append(states, state)
	}
	s.mu.RUnlock()

	for _, state := range states {
		state.ctrl.Shutdown()
	}
}

func (s *KnowledgeService) activeServiceIDs() []domain.ServiceID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ServiceID
	for _, id := range s.order {
		if s.services[id].meta.Status == domain.ServiceStatusActive {
			out = append(out, id)
		}
	}
	return out
}

func (s *KnowledgeService) newState(svc domain.RAGService) (*serviceState, error) {
	store, err := engine.NewStore[domain.DocumentUpload, domain.IndexedDocument](engine.StoreOptions{
		IDPrefix:    "doc-",
		Persistence: engine.NewKVPersistence(s.kv, indexNamespace(svc.ID)),
	})
	if err != nil {
		return nil, err
	}

	serviceID := svc.ID
	proc := engine.ProcessorFunc[domain.DocumentUpload, domain.IndexedDocument](func(ctx context.Context, id string, in domain.DocumentUpload) (engine.Outcome[domain.IndexedDocument], error) {
		s.mu.RLock()
		b := s.backend
		s.mu.RUnlock()

		indexed, err := b.Index(ctx, serviceID, in)
		if err != nil {
			return engine.Outcome[domain.IndexedDocument]{}, err
		}
		return engine.Outcome[domain.IndexedDocument]{Result: &indexed}, nil
	})

	ctrl := engine.NewController[domain.DocumentUpload, domain.IndexedDocument](store, proc, s.logger, s.ctrlCfg)
	ctrl.OnTransition = func(job engine.Entity[domain.DocumentUpload, domain.IndexedDocument]) {
		publishStatus(s.bus, domain.ModuleKnowledge, job.ID, job.Status)
		switch job.Status {
		case engine.StatusCompleted:
			s.activity.Record(domain.ModuleKnowledge, domain.ActionCompleted, job.Input.Filename)
		case engine.StatusError:
			s.activity.Record(domain.ModuleKnowledge, domain.ActionFailed, job.Input.Filename)
		}
	}

	return &serviceState{meta: svc, docs: store, ctrl: ctrl}, nil
}

func (s *KnowledgeService) persistMeta(svc domain.RAGService) error {
	data, err := marshalJSON(svc)
	if err != nil {
		return err
	}
	if err := s.kv.Put(nsKnowledgeServices, string(svc.ID), data); err != nil {
		return fmt.Errorf("persist knowledge service: %w", err)
	}
	return nil
}

func (s *KnowledgeService) restore() error {
	keys, err := s.kv.List(nsKnowledgeServices, "")
	if err != nil {
		return err
	}

	restored := make([]domain.RAGService, 0, len(keys))
	for _, key := range keys {
		data, err := s.kv.Get(nsKnowledgeServices, key)
		if err != nil {
			continue
		}
		var svc domain.RAGService
		if err := unmarshalJSON(data, &svc); err != nil {
			s.logger.Warn("skipping corrupt service record", "key", key, "error", err)
			continue
		}
		restored = append(restored, svc)
	}

	sort.Slice(restored, func(i, j int) bool {
		return restored[i].CreatedAt.Before(restored[j].CreatedAt)
	})

	for _, svc := range restored {
		state, err := s.newState(svc)
		if err != nil {
			return err
		}
		s.services[svc.ID] = state
		s.order = append(s.order, svc.ID)
	}
	return nil
}
