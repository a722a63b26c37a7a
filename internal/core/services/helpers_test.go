package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
	"github.com/MickaelSuard/ComiaV2/internal/core/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fast controller settings so tests don't wait on defaults
func testCtrlCfg() engine.ControllerConfig {
	return engine.ControllerConfig{MaxInFlight: 4, Timeout: 2 * time.Second}
}

// memKV is an in-memory engine.KV used instead of Badger in tests.
type memKV struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string]map[string][]byte)}
}

func (m *memKV) Put(ns, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[ns] == nil {
		m.data[ns] = make(map[string][]byte)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[ns][key] = cp
	return nil
}

func (m *memKV) Get(ns, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[ns][key]
	if !ok {
		return nil, errors.New("key not found")
	}
	return value, nil
}

func (m *memKV) Delete(ns, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[ns], key)
	return nil
}

func (m *memKV) List(ns, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.data[ns] {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// stubBackend answers everything instantly and deterministically. Setting
// fail makes every call error.
type stubBackend struct {
	mu   sync.Mutex
	fail bool
}

func (b *stubBackend) setFail(v bool) {
	b.mu.Lock()
	b.fail = v
	b.mu.Unlock()
}

func (b *stubBackend) failing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fail
}

func (b *stubBackend) Complete(ctx context.Context, history []domain.Message, prompt domain.Prompt) (domain.Reply, error) {
	if b.failing() {
		return domain.Reply{}, errors.New("backend down")
	}
	return domain.Reply{Text: "echo: " + prompt.Text}, nil
}

func (b *stubBackend) Transcribe(ctx context.Context, upload domain.MediaUpload) (domain.Transcript, error) {
	if b.failing() {
		return domain.Transcript{}, errors.New("backend down")
	}
	return domain.Transcript{Text: "transcript of " + upload.Filename, Summary: "summary", WordCount: 4}, nil
}

func (b *stubBackend) Index(ctx context.Context, serviceID domain.ServiceID, upload domain.DocumentUpload) (domain.IndexedDocument, error) {
	if b.failing() {
		return domain.IndexedDocument{}, errors.New("backend down")
	}
	return domain.IndexedDocument{Content: "content of " + upload.Filename, Chunks: 3}, nil
}

func (b *stubBackend) Search(ctx context.Context, query domain.Query) ([]domain.SearchHit, error) {
	if b.failing() {
		return nil, errors.New("backend down")
	}
	return []domain.SearchHit{{Title: "hit", Content: query.Text, Relevance: 0.9}}, nil
}

func (b *stubBackend) Analyze(ctx context.Context, upload domain.DocumentUpload) (domain.DocAnalysis, error) {
	if b.failing() {
		return domain.DocAnalysis{}, errors.New("backend down")
	}
	return domain.DocAnalysis{Summary: "summary of " + upload.Filename, Pages: 2, WordCount: 100}, nil
}

func (b *stubBackend) Answer(ctx context.Context, question domain.Question) (domain.Answer, error) {
	if b.failing() {
		return domain.Answer{}, errors.New("backend down")
	}
	return domain.Answer{Text: "answer: " + question.Text, PageRef: 1}, nil
}

// memJournal is an in-memory ActivityJournal.
type memJournal struct {
	mu     sync.Mutex
	events []domain.ActivityEvent
}

func (j *memJournal) RecordEvent(ctx context.Context, event domain.ActivityEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
	return nil
}

func (j *memJournal) ListRecent(ctx context.Context, limit int) ([]domain.ActivityEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]domain.ActivityEvent, 0, limit)
	for i := len(j.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.events[i])
	}
	return out, nil
}

func (j *memJournal) CountByModule(ctx context.Context) (map[domain.ModuleKind]domain.ModuleStats, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[domain.ModuleKind]domain.ModuleStats)
	for _, e := range j.events {
		stats := out[e.Module]
		switch e.Action {
		case domain.ActionSubmitted:
			stats.Submitted++
		case domain.ActionCompleted:
			stats.Completed++
		case domain.ActionFailed:
			stats.Failed++
		}
		out[e.Module] = stats
	}
	return out, nil
}

func (j *memJournal) actions(module domain.ModuleKind) []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []string
	for _, e := range j.events {
		if e.Module == module {
			out = append(out, e.Action)
		}
	}
	return out
}

func testRecorder() (*ActivityRecorder, *memJournal) {
	journal := &memJournal{}
	return NewActivityRecorder(testLogger(), journal), journal
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
