package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StoreOptions fixes a store's behavior at construction time.
type StoreOptions struct {
	// IDPrefix is prepended to generated entity ids, e.g. "trx-".
	IDPrefix string

	// PrependNew inserts created entities at the head of the order
	// (newest-first lists); the default appends at the tail.
	PrependNew bool

	// Persistence, when set, is loaded at construction and written through
	// on every mutation.
	Persistence Persistence
}

// Subscriber receives the full snapshot after every successful mutation.
type Subscriber[I, R any] func(snapshot []Entity[I, R])

// Patch is a partial update applied by Update. Nil fields are left untouched.
type Patch[R any] struct {
	Status    *Status
	Result    *R
	ErrorInfo *string
}

// Store is an ordered, keyed collection of entities. It is the single source
// of truth for one module's items and is mutated only through its controller.
type Store[I, R any] struct {
	mu      sync.RWMutex
	opts    StoreOptions
	items   map[string]*Entity[I, R]
	order   []string
	subs    map[int]Subscriber[I, R]
	nextSub int
	now     func() time.Time
}

// NewStore creates a store; if opts.Persistence is set, previously saved
// entities are restored in creation order.
func NewStore[I, R any](opts StoreOptions) (*Store[I, R], error) {
	s := &Store[I, R]{
		opts:  opts,
		items: make(map[string]*Entity[I, R]),
		subs:  make(map[int]Subscriber[I, R]),
		now:   time.Now,
	}
	if opts.Persistence != nil {
		if err := s.restore(); err != nil {
			return nil, fmt.Errorf("restore store: %w", err)
		}
	}
	return s, nil
}

// Create allocates a new id, inserts the entity in pending state and returns
// a copy of it.
func (s *Store[I, R]) Create(input I) (Entity[I, R], error) {
	now := s.now().UTC()
	ent := &Entity[I, R]{
		ID:        s.opts.IDPrefix + uuid.NewString(),
		Status:    StatusPending,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.items[ent.ID] = ent
	if s.opts.PrependNew {
		s.order = append([]string{ent.ID}, s.order...)
	} else {
		s.order = append(s.order, ent.ID)
	}
	if err := s.persist(*ent); err != nil {
		delete(s.items, ent.ID)
		s.removeFromOrder(ent.ID)
		s.mu.Unlock()
		return Entity[I, R]{}, err
	}
	cp := *ent
	s.mu.Unlock()

	s.notify()
	return cp, nil
}

// Update merges patch into the entity. It fails with ErrNotFound for unknown
// ids and with ErrInvalidTransition when patch.Status would move the entity
// backward or out of a terminal state. UpdatedAt is refreshed on success.
func (s *Store[I, R]) Update(id string, patch Patch[R]) (Entity[I, R], error) {
	s.mu.Lock()
	ent, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return Entity[I, R]{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if patch.Status != nil && *patch.Status != ent.Status {
		if ent.Status.Terminal() || (*patch.Status).rank() < ent.Status.rank() {
			from, to := ent.Status, *patch.Status
			s.mu.Unlock()
			return Entity[I, R]{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		ent.Status = *patch.Status
	}
	if patch.Result != nil {
		ent.Result = patch.Result
	}
	if patch.ErrorInfo != nil {
		ent.ErrorInfo = patch.ErrorInfo
	}

	// Terminal invariant: exactly one of result / error info survives.
	switch ent.Status {
	case StatusCompleted:
		ent.ErrorInfo = nil
	case StatusError:
		ent.Result = nil
	}

	ent.UpdatedAt = s.now().UTC()
	if err := s.persist(*ent); err != nil {
		s.mu.Unlock()
		return Entity[I, R]{}, err
	}
	cp := *ent
	s.mu.Unlock()

	s.notify()
	return cp, nil
}

// Reopen moves an errored entity back to processing, clearing its error info.
// It is the single sanctioned exception to forward-only transitions and is
// reserved for the controller's retry path.
func (s *Store[I, R]) Reopen(id string) (Entity[I, R], error) {
	s.mu.Lock()
	ent, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return Entity[I, R]{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if ent.Status != StatusError {
		status := ent.Status
		s.mu.Unlock()
		return Entity[I, R]{}, fmt.Errorf("%w: reopen from %s", ErrInvalidTransition, status)
	}

	ent.Status = StatusProcessing
	ent.ErrorInfo = nil
	ent.Result = nil
	ent.UpdatedAt = s.now().UTC()
	if err := s.persist(*ent); err != nil {
		s.mu.Unlock()
		return Entity[I, R]{}, err
	}
	cp := *ent
	s.mu.Unlock()

	s.notify()
	return cp, nil
}

// Remove deletes the entity permanently. A second call for the same id fails
// with ErrNotFound. Relative order of the remaining entities is unchanged.
func (s *Store[I, R]) Remove(id string) error {
	s.mu.Lock()
	if _, ok := s.items[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.items, id)
	s.removeFromOrder(id)
	if p := s.opts.Persistence; p != nil {
		if err := p.Delete(id); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("delete persisted entity: %w", err)
		}
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// Get returns a copy of the entity, or false if absent.
func (s *Store[I, R]) Get(id string) (Entity[I, R], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok := s.items[id]
	if !ok {
		return Entity[I, R]{}, false
	}
	return *ent, true
}

// List returns a snapshot of all entities in store order.
func (s *Store[I, R]) List() []Entity[I, R] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Len returns the number of entities.
func (s *Store[I, R]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Subscribe registers fn to receive a snapshot after every successful
// mutation. The returned function unsubscribes.
func (s *Store[I, R]) Subscribe(fn Subscriber[I, R]) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store[I, R]) snapshotLocked() []Entity[I, R] {
	out := make([]Entity[I, R], 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.items[id])
	}
	return out
}

// notify calls subscribers outside the lock so they may read the store.
func (s *Store[I, R]) notify() {
	s.mu.RLock()
	snapshot := s.snapshotLocked()
	subs := make([]Subscriber[I, R], 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

func (s *Store[I, R]) removeFromOrder(id string) {
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *Store[I, R]) persist(ent Entity[I, R]) error {
	p := s.opts.Persistence
	if p == nil {
		return nil
	}
	data, err := marshalEntity(ent)
	if err != nil {
		return err
	}
	if err := p.Save(ent.ID, data); err != nil {
		return fmt.Errorf("persist entity: %w", err)
	}
	return nil
}

func (s *Store[I, R]) restore() error {
	records, err := s.opts.Persistence.LoadAll()
	if err != nil {
		return err
	}

	restored := make([]*Entity[I, R], 0, len(records))
	for _, data := range records {
		ent, err := unmarshalEntity[I, R](data)
		if err != nil {
			return err
		}
		// A non-terminal record means the process died or shut down while
		// the job was queued or running. Its goroutine is gone, so fail it
		// here; Retry can then reopen it.
		if !ent.Status.Terminal() {
			ent.Status = StatusError
			ent.ErrorInfo = strPtr(InterruptedReason)
			ent.Result = nil
			ent.UpdatedAt = s.now().UTC()
			if err := s.persist(ent); err != nil {
				return err
			}
		}
		restored = append(restored, &ent)
	}

	sort.Slice(restored, func(i, j int) bool {
		if restored[i].CreatedAt.Equal(restored[j].CreatedAt) {
			return restored[i].ID < restored[j].ID
		}
		return restored[i].CreatedAt.Before(restored[j].CreatedAt)
	})

	for _, ent := range restored {
		s.items[ent.ID] = ent
		if s.opts.PrependNew {
			s.order = append([]string{ent.ID}, s.order...)
		} else {
			s.order = append(s.order, ent.ID)
		}
	}
	return nil
}
