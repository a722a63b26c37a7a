package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInput struct {
	Name string `json:"name"`
}

type fakeResult struct {
	Text string `json:"text"`
}

func newTestStore(t *testing.T) *Store[fakeInput, fakeResult] {
	t.Helper()
	s, err := NewStore[fakeInput, fakeResult](StoreOptions{IDPrefix: "tst-"})
	require.NoError(t, err)
	return s
}

func TestStore_CreateStartsPending(t *testing.T) {
	s := newTestStore(t)

	ent, err := s.Create(fakeInput{Name: "a"})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, ent.Status)
	assert.Contains(t, ent.ID, "tst-")
	assert.Nil(t, ent.Result)
	assert.Nil(t, ent.ErrorInfo)
	assert.Equal(t, 1, s.Len())
}

func TestStore_IDsAreUnique(t *testing.T) {
	s := newTestStore(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		ent, err := s.Create(fakeInput{})
		require.NoError(t, err)
		assert.False(t, seen[ent.ID], "duplicate id %s", ent.ID)
		seen[ent.ID] = true
	}
}

func TestStore_UpdateForwardOnly(t *testing.T) {
	s := newTestStore(t)
	ent, _ := s.Create(fakeInput{})

	updated, err := s.Update(ent.ID, Patch[fakeResult]{Status: statusPtr(StatusProcessing)})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, updated.Status)

	// Backward transition rejected.
	_, err = s.Update(ent.ID, Patch[fakeResult]{Status: statusPtr(StatusPending)})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Still processing.
	got, ok := s.Get(ent.ID)
	require.True(t, ok)
	assert.Equal(t, StatusProcessing, got.Status)
}

func TestStore_TerminalIsImmutable(t *testing.T) {
	s := newTestStore(t)
	ent, _ := s.Create(fakeInput{})

	_, err := s.Update(ent.ID, Patch[fakeResult]{
		Status: statusPtr(StatusCompleted),
		Result: &fakeResult{Text: "done"},
	})
	require.NoError(t, err)

	_, err = s.Update(ent.ID, Patch[fakeResult]{Status: statusPtr(StatusProcessing)})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.Update(ent.ID, Patch[fakeResult]{Status: statusPtr(StatusError)})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStore_TerminalFieldExclusivity(t *testing.T) {
	s := newTestStore(t)

	ent, _ := s.Create(fakeInput{})
	done, err := s.Update(ent.ID, Patch[fakeResult]{
		Status:    statusPtr(StatusCompleted),
		Result:    &fakeResult{Text: "ok"},
		ErrorInfo: strPtr("leftover"),
	})
	require.NoError(t, err)
	assert.NotNil(t, done.Result)
	assert.Nil(t, done.ErrorInfo, "completed entity must not carry error info")

	ent2, _ := s.Create(fakeInput{})
	failed, err := s.Update(ent2.ID, Patch[fakeResult]{
		Status:    statusPtr(StatusError),
		Result:    &fakeResult{Text: "partial"},
		ErrorInfo: strPtr("boom"),
	})
	require.NoError(t, err)
	assert.Nil(t, failed.Result, "errored entity must not carry a result")
	require.NotNil(t, failed.ErrorInfo)
	assert.Equal(t, "boom", *failed.ErrorInfo)
}

func TestStore_UpdateUnknownID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Update("tst-missing", Patch[fakeResult]{Status: statusPtr(StatusProcessing)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Reopen(t *testing.T) {
	s := newTestStore(t)
	ent, _ := s.Create(fakeInput{})

	// Only error state can be reopened.
	_, err := s.Reopen(ent.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.Update(ent.ID, Patch[fakeResult]{
		Status:    statusPtr(StatusError),
		ErrorInfo: strPtr("network down"),
	})
	require.NoError(t, err)

	reopened, err := s.Reopen(ent.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, reopened.Status)
	assert.Nil(t, reopened.ErrorInfo)
	assert.Nil(t, reopened.Result)
}

func TestStore_RemovePreservesOrder(t *testing.T) {
	s := newTestStore(t)

	a, _ := s.Create(fakeInput{Name: "a"})
	b, _ := s.Create(fakeInput{Name: "b"})
	c, _ := s.Create(fakeInput{Name: "c"})

	require.NoError(t, s.Remove(b.ID))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, c.ID, list[1].ID)

	// Double delete fails.
	assert.ErrorIs(t, s.Remove(b.ID), ErrNotFound)
}

func TestStore_PrependNew(t *testing.T) {
	s, err := NewStore[fakeInput, fakeResult](StoreOptions{PrependNew: true})
	require.NoError(t, err)

	first, _ := s.Create(fakeInput{Name: "first"})
	second, _ := s.Create(fakeInput{Name: "second"})

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestStore_SubscribeAndUnsubscribe(t *testing.T) {
	s := newTestStore(t)

	var mu sync.Mutex
	var calls int
	unsub := s.Subscribe(func(snapshot []Entity[fakeInput, fakeResult]) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	_, err := s.Create(fakeInput{})
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	unsub()
	_, err = s.Create(fakeInput{})
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, 1, calls, "unsubscribed callback must not fire")
	mu.Unlock()
}

type memPersistence struct {
	mu      sync.Mutex
	records map[string][]byte
}

func newMemPersistence() *memPersistence {
	return &memPersistence{records: make(map[string][]byte)}
}

func (m *memPersistence) Save(id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = data
	return nil
}

func (m *memPersistence) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *memPersistence) LoadAll() ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, 0, len(m.records))
	for _, data := range m.records {
		out = append(out, data)
	}
	return out, nil
}

func TestStore_PersistenceRoundTrip(t *testing.T) {
	p := newMemPersistence()

	s, err := NewStore[fakeInput, fakeResult](StoreOptions{IDPrefix: "tst-", Persistence: p})
	require.NoError(t, err)

	a, _ := s.Create(fakeInput{Name: "a"})
	b, _ := s.Create(fakeInput{Name: "b"})
	_, err = s.Update(a.ID, Patch[fakeResult]{
		Status: statusPtr(StatusCompleted),
		Result: &fakeResult{Text: "done"},
	})
	require.NoError(t, err)

	// A fresh store over the same persistence sees the same entities in
	// creation order.
	restored, err := NewStore[fakeInput, fakeResult](StoreOptions{IDPrefix: "tst-", Persistence: p})
	require.NoError(t, err)

	list := restored.List()
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
	assert.Equal(t, StatusCompleted, list[0].Status)
	require.NotNil(t, list[0].Result)
	assert.Equal(t, "done", list[0].Result.Text)

	// Removal clears the persisted record too.
	require.NoError(t, restored.Remove(b.ID))
	again, err := NewStore[fakeInput, fakeResult](StoreOptions{Persistence: p})
	require.NoError(t, err)
	assert.Equal(t, 1, again.Len())
}

func TestStore_RestoreFailsInterruptedJobs(t *testing.T) {
	p := newMemPersistence()

	s, err := NewStore[fakeInput, fakeResult](StoreOptions{IDPrefix: "tst-", Persistence: p})
	require.NoError(t, err)

	queued, _ := s.Create(fakeInput{Name: "queued"})
	running, _ := s.Create(fakeInput{Name: "running"})
	done, _ := s.Create(fakeInput{Name: "done"})
	_, err = s.Update(running.ID, Patch[fakeResult]{Status: statusPtr(StatusProcessing)})
	require.NoError(t, err)
	_, err = s.Update(done.ID, Patch[fakeResult]{
		Status: statusPtr(StatusCompleted),
		Result: &fakeResult{Text: "ok"},
	})
	require.NoError(t, err)

	// Simulates a restart mid-flight: the goroutines that owned the queued
	// and running jobs are gone, so the restored store must fail them.
	restored, err := NewStore[fakeInput, fakeResult](StoreOptions{IDPrefix: "tst-", Persistence: p})
	require.NoError(t, err)

	for _, id := range []string{queued.ID, running.ID} {
		got, ok := restored.Get(id)
		require.True(t, ok)
		assert.Equal(t, StatusError, got.Status)
		require.NotNil(t, got.ErrorInfo)
		assert.Equal(t, InterruptedReason, *got.ErrorInfo)
		assert.Nil(t, got.Result)
	}
	got, ok := restored.Get(done.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)

	// The failure is persisted, so yet another restart sees error, and the
	// job is retryable through the sanctioned reopen path.
	again, err := NewStore[fakeInput, fakeResult](StoreOptions{IDPrefix: "tst-", Persistence: p})
	require.NoError(t, err)
	got, ok = again.Get(running.ID)
	require.True(t, ok)
	assert.Equal(t, StatusError, got.Status)

	reopened, err := again.Reopen(running.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, reopened.Status)
	assert.Nil(t, reopened.ErrorInfo)
}
