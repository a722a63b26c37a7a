package engine

import (
	"strings"
	"sync"
)

// Selection tracks which item in a collection is active and filters the
// collection by a case-insensitive substring search. It is collection-
// agnostic: the three closures describe how to list items, extract their id
// and extract their searchable text.
type Selection[T any] struct {
	list func() []T
	id   func(T) string
	text func(T) string

	mu     sync.RWMutex
	active string
	search string
}

// NewSelection builds a selection over a collection described by the three
// accessors.
func NewSelection[T any](list func() []T, id func(T) string, text func(T) string) *Selection[T] {
	return &Selection[T]{list: list, id: id, text: text}
}

// Select activates the item with the given id. Unknown ids leave the
// current selection untouched.
func (s *Selection[T]) Select(id string) bool {
	for _, item := range s.list() {
		if s.id(item) == id {
			s.mu.Lock()
			s.active = id
			s.mu.Unlock()
			return true
		}
	}
	return false
}

// Clear drops the active selection.
func (s *Selection[T]) Clear() {
	s.mu.Lock()
	s.active = ""
	s.mu.Unlock()
}

// SetSearch replaces the search filter. An empty query shows everything.
func (s *Selection[T]) SetSearch(query string) {
	s.mu.Lock()
	s.search = query
	s.mu.Unlock()
}

// Search returns the current filter text.
func (s *Selection[T]) Search() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search
}

// Active returns the active item, if any.
func (s *Selection[T]) Active() (T, bool) {
	s.mu.RLock()
	active := s.active
	s.mu.RUnlock()

	var zero T
	if active == "" {
		return zero, false
	}
	for _, item := range s.list() {
		if s.id(item) == active {
			return item, true
		}
	}
	return zero, false
}

// ActiveID returns the active item's id, or "" when nothing is selected.
func (s *Selection[T]) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Visible returns the items matching the current search, in collection
// order.
func (s *Selection[T]) Visible() []T {
	s.mu.RLock()
	query := strings.ToLower(s.search)
	s.mu.RUnlock()

	items := s.list()
	if query == "" {
		return items
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(s.text(item)), query) {
			out = append(out, item)
		}
	}
	return out
}

// Reconcile re-validates the active selection against the collection. When
// the active item is gone it falls back to the first remaining item, or to
// no selection when the collection is empty. With no prior selection there
// is nothing to repair and none is made. It returns the resulting active id.
func (s *Selection[T]) Reconcile() string {
	items := s.list()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == "" {
		return ""
	}
	for _, item := range items {
		if s.id(item) == s.active {
			return s.active
		}
	}
	if len(items) == 0 {
		s.active = ""
		return ""
	}
	s.active = s.id(items[0])
	return s.active
}
