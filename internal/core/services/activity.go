package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
	"github.com/MickaelSuard/ComiaV2/internal/core/engine"
)

// ActivityRecorder appends module events to the activity journal. Recording
// is best-effort: a journal failure is logged, never propagated, so the
// modules keep working without a database.
type ActivityRecorder struct {
	logger *slog.Logger
	repo   ActivityJournal
}

// ActivityJournal is the subset of the repository the recorder needs.
type ActivityJournal interface {
	RecordEvent(ctx context.Context, event domain.ActivityEvent) error
	ListRecent(ctx context.Context, limit int) ([]domain.ActivityEvent, error)
	CountByModule(ctx context.Context) (map[domain.ModuleKind]domain.ModuleStats, error)
}

func NewActivityRecorder(logger *slog.Logger, repo ActivityJournal) *ActivityRecorder {
	return &ActivityRecorder{logger: logger, repo: repo}
}

// Record journals one event.
func (r *ActivityRecorder) Record(module domain.ModuleKind, action, detail string) {
	if r == nil || r.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event := domain.NewActivityEvent(module, action, detail)
	if err := r.repo.RecordEvent(ctx, event); err != nil {
		r.logger.Error("failed to record activity", "module", module, "action", action, "error", err)
	}
}

// StatsService assembles the dashboard snapshot: live item counts reported
// by the modules themselves plus historical outcome counters and the recent
// activity feed from the journal.
type StatsService struct {
	logger *slog.Logger
	repo   ActivityJournal

	mu       sync.RWMutex
	counters map[domain.ModuleKind]func() int
}

func NewStatsService(logger *slog.Logger, repo ActivityJournal) *StatsService {
	return &StatsService{
		logger:   logger,
		repo:     repo,
		counters: make(map[domain.ModuleKind]func() int),
	}
}

// RegisterCounter wires a module's live item count into the snapshot.
func (s *StatsService) RegisterCounter(module domain.ModuleKind, count func() int) {
	s.mu.Lock()
	s.counters[module] = count
	s.mu.Unlock()
}

// Snapshot builds the dashboard payload. Journal failures degrade to a
// snapshot with live counts only.
func (s *StatsService) Snapshot(ctx context.Context) domain.StatsSnapshot {
	snap := domain.StatsSnapshot{
		Items:    make(map[domain.ModuleKind]int),
		Outcomes: make(map[domain.ModuleKind]domain.ModuleStats),
		TakenAt:  time.Now().UTC(),
	}
	// Every module shows up, zeroed, even before its first job.
	for _, module := range domain.KnownModules() {
		snap.Items[module] = 0
		snap.Outcomes[module] = domain.ModuleStats{}
	}

	s.mu.RLock()
	for module, count := range s.counters {
		snap.Items[module] = count()
	}
	s.mu.RUnlock()

	if s.repo == nil {
		return snap
	}

	outcomes, err := s.repo.CountByModule(ctx)
	if err != nil {
		s.logger.Error("failed to aggregate activity", "error", err)
	} else {
		for module, stats := range outcomes {
			snap.Outcomes[module] = stats
		}
	}

	recent, err := s.repo.ListRecent(ctx, 20)
	if err != nil {
		s.logger.Error("failed to list recent activity", "error", err)
	} else {
		snap.Recent = recent
	}
	return snap
}

// Recent returns the newest journal rows, newest first.
func (s *StatsService) Recent(ctx context.Context, limit int) ([]domain.ActivityEvent, error) {
	if s.repo == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListRecent(ctx, limit)
}

// publishStatus emits a status event for one entity on the bus.
func publishStatus(bus *EventBus, module domain.ModuleKind, entityID string, status engine.Status) {
	if bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"status": string(status)})
	bus.Publish(Event{
		EntityID:  entityID,
		Module:    module,
		Type:      EventTypeStatus,
		Data:      string(payload),
		Timestamp: time.Now().UnixMilli(),
	})
}

// clearNamespace deletes every key in a KV namespace.
func clearNamespace(kv engine.KV, namespace string) error {
	keys, err := kv.List(namespace, "")
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := kv.Delete(namespace, key); err != nil {
			return err
		}
	}
	return nil
}

func marshalJSON(v any) ([]byte, error)      { return json.Marshal(v) }
func unmarshalJSON(data []byte, v any) error { return json.Unmarshal(data, v) }
