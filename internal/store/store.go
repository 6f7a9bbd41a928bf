// Package store holds the in-memory alert and incident collections.
//
// Entities are versioned by a logical timestamp. Upsert keeps the newest
// version (last-writer-wins) regardless of arrival order. Values handed out
// by the store are deep copies, so callers can never mutate stored state.
// Iteration order is undefined; callers sort explicitly.
package store

import (
	"fmt"
	"sync"
	"time"

	apperrors "socsync/internal/errors"
)

// Entity is a versioned value the store can own.
type Entity[T any] interface {
	EntityID() string
	Version() time.Time
	Clone() T
}

// ChangeKind describes a store mutation.
type ChangeKind string

const (
	ChangeUpsert ChangeKind = "upsert"
	ChangeRemove ChangeKind = "remove"
	ChangeReset  ChangeKind = "reset"
	ChangeSelect ChangeKind = "select"
)

// Change is delivered to watchers after a mutation has been applied.
type Change struct {
	Kind ChangeKind
	ID   string
}

// Option configures a Store.
type Option[T Entity[T]] func(*Store[T])

// WithNormalizer sets a function applied to every written entity.
func WithNormalizer[T Entity[T]](fn func(T) T) Option[T] {
	return func(s *Store[T]) {
		s.normalize = fn
	}
}

type watcher struct {
	id int
	fn func(Change)
}

// Store is a keyed collection of entities.
type Store[T Entity[T]] struct {
	mu        sync.RWMutex
	items     map[string]T
	selected  string
	normalize func(T) T

	watchMu  sync.Mutex
	watchers []watcher
	nextID   int
}

// New creates an empty store.
func New[T Entity[T]](opts ...Option[T]) *Store[T] {
	s := &Store[T]{items: make(map[string]T)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store[T]) prepare(entity T) T {
	if s.normalize != nil {
		return s.normalize(entity)
	}
	return entity.Clone()
}

// Set replaces the whole collection with entities. The selection survives
// only if the selected id is still present.
func (s *Store[T]) Set(entities []T) {
	next := make(map[string]T, len(entities))
	for _, e := range entities {
		id := e.EntityID()
		if id == "" {
			continue
		}
		prepared := s.prepare(e)
		if cur, ok := next[id]; ok && prepared.Version().Before(cur.Version()) {
			continue
		}
		next[id] = prepared
	}

	s.mu.Lock()
	s.items = next
	if _, ok := next[s.selected]; !ok {
		s.selected = ""
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeReset})
}

// Upsert stores entity unless an entity with a newer version is already
// present, in which case it returns false and an ErrStale conflict.
// Applying the same entity twice leaves the same state.
func (s *Store[T]) Upsert(entity T) (bool, error) {
	id := entity.EntityID()
	if id == "" {
		return false, apperrors.Validation("upsert", "entity has no id")
	}
	prepared := s.prepare(entity)

	s.mu.Lock()
	if cur, ok := s.items[id]; ok && prepared.Version().Before(cur.Version()) {
		s.mu.Unlock()
		return false, &apperrors.Error{
			Kind:    apperrors.KindConflict,
			Op:      "upsert",
			Code:    "STALE_WRITE",
			Message: fmt.Sprintf("%s: version %s older than stored %s", id, prepared.Version().Format(time.RFC3339Nano), cur.Version().Format(time.RFC3339Nano)),
			Err:     apperrors.ErrStale,
		}
	}
	s.items[id] = prepared
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeUpsert, ID: id})
	return true, nil
}

// Replace stores entity without the version check. It exists to restore
// a retained snapshot when an optimistic update is rolled back.
func (s *Store[T]) Replace(entity T) {
	id := entity.EntityID()
	if id == "" {
		return
	}
	prepared := entity.Clone()

	s.mu.Lock()
	s.items[id] = prepared
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeUpsert, ID: id})
}

// Update applies fn to a copy of the stored entity and stores the result.
// fn must not return an entity with a different id.
func (s *Store[T]) Update(id string, fn func(T) T) (T, bool) {
	var zero T
	s.mu.Lock()
	cur, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return zero, false
	}
	next := s.prepare(fn(cur.Clone()))
	if next.EntityID() != id {
		s.mu.Unlock()
		return zero, false
	}
	s.items[id] = next
	out := next.Clone()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeUpsert, ID: id})
	return out, true
}

// Remove deletes an entity. If it was selected the selection is cleared in
// the same step.
func (s *Store[T]) Remove(id string) bool {
	s.mu.Lock()
	_, ok := s.items[id]
	if ok {
		delete(s.items, id)
		if s.selected == id {
			s.selected = ""
		}
	}
	s.mu.Unlock()

	if ok {
		s.notify(Change{Kind: ChangeRemove, ID: id})
	}
	return ok
}

// Get returns a copy of the entity.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	return e.Clone(), true
}

// Has reports whether id is stored.
func (s *Store[T]) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok
}

// Query returns copies of every entity matching pred. A nil pred matches all.
func (s *Store[T]) Query(pred func(T) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.items))
	for _, e := range s.items {
		if pred == nil || pred(e) {
			out = append(out, e.Clone())
		}
	}
	return out
}

// All returns copies of every entity.
func (s *Store[T]) All() []T {
	return s.Query(nil)
}

// Len returns the number of stored entities.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Select marks id as the current selection. Unknown ids are rejected.
func (s *Store[T]) Select(id string) bool {
	s.mu.Lock()
	_, ok := s.items[id]
	if ok {
		s.selected = id
	}
	s.mu.Unlock()

	if ok {
		s.notify(Change{Kind: ChangeSelect, ID: id})
	}
	return ok
}

// Deselect clears the selection.
func (s *Store[T]) Deselect() {
	s.mu.Lock()
	had := s.selected != ""
	s.selected = ""
	s.mu.Unlock()

	if had {
		s.notify(Change{Kind: ChangeSelect})
	}
}

// Selected returns a copy of the selected entity.
func (s *Store[T]) Selected() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var zero T
	if s.selected == "" {
		return zero, false
	}
	e, ok := s.items[s.selected]
	if !ok {
		return zero, false
	}
	return e.Clone(), true
}

// SelectedID returns the selected id or "".
func (s *Store[T]) SelectedID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Watch registers fn for change notifications. Watchers run in
// registration order after the change is visible.
func (s *Store[T]) Watch(fn func(Change)) func() {
	s.watchMu.Lock()
	s.nextID++
	id := s.nextID
	s.watchers = append(s.watchers, watcher{id: id, fn: fn})
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		for i, w := range s.watchers {
			if w.id == id {
				s.watchers = append(s.watchers[:i:i], s.watchers[i+1:]...)
				return
			}
		}
	}
}

func (s *Store[T]) notify(c Change) {
	s.watchMu.Lock()
	ws := append([]watcher(nil), s.watchers...)
	s.watchMu.Unlock()
	for _, w := range ws {
		w.fn(c)
	}
}
