// Package memory provides an in-process reservation.Store.
//
// Each record has its own lock; the id index is guarded by a separate RWMutex
// held only for lookups and inserts. Operations on different ids never wait on
// each other, and operations on one id are linearizable.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	reservation "github.com/chimerakang/reservation-go"
	"github.com/google/uuid"
)

type entry struct {
	mu sync.RWMutex
	r  reservation.Reservation
}

// Store is an in-memory reservation store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*entry // id → record
}

// compile-time check
var _ reservation.Store = (*Store)(nil)

// New creates an empty store seeded with the given reservations.
func New(seed ...reservation.Reservation) *Store {
	s := &Store{records: make(map[string]*entry, len(seed))}
	for _, r := range seed {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		s.records[r.ID] = &entry{r: clone(r)}
	}
	return s
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[id]
	return e, ok
}

// List returns reservations ordered by creation time.
func (s *Store) List(_ context.Context, includeDeleted bool) ([]reservation.Reservation, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.records))
	for _, e := range s.records {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]reservation.Reservation, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		r := clone(e.r)
		e.mu.RUnlock()
		if !includeDeleted && r.IsDeleted() {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Get returns a reservation by id.
func (s *Store) Get(_ context.Context, id string) (reservation.Reservation, error) {
	e, ok := s.lookup(id)
	if !ok {
		return reservation.Reservation{}, fmt.Errorf("memory: reservation %s: %w", id, reservation.ErrNotFound)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return clone(e.r), nil
}

// Create stores r, assigning an id if it has none.
func (s *Store) Create(_ context.Context, r reservation.Reservation) (reservation.Reservation, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r = clone(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[r.ID]; exists {
		return reservation.Reservation{}, fmt.Errorf("memory: reservation %s: %w", r.ID, reservation.ErrConflict)
	}
	s.records[r.ID] = &entry{r: r}
	return clone(r), nil
}

// mutate applies fn to the record under its write lock.
func (s *Store) mutate(id string, fn func(r *reservation.Reservation)) (reservation.Reservation, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return reservation.Reservation{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.r)
	return clone(e.r), true
}

// Update overwrites the mutable fields and clears DeletedAt.
func (s *Store) Update(_ context.Context, id string, f reservation.Fields, at time.Time) (reservation.Reservation, error) {
	r, ok := s.mutate(id, func(r *reservation.Reservation) {
		r.Fields = cloneFields(f)
		r.UpdatedAt = at
		r.DeletedAt = nil
	})
	if !ok {
		return reservation.Reservation{}, fmt.Errorf("memory: reservation %s: %w", id, reservation.ErrNotFound)
	}
	return r, nil
}

// SetStatus overwrites the status.
func (s *Store) SetStatus(_ context.Context, id string, st reservation.Status, at time.Time) (reservation.Reservation, error) {
	r, ok := s.mutate(id, func(r *reservation.Reservation) {
		r.Status = st
		r.UpdatedAt = at
	})
	if !ok {
		return reservation.Reservation{}, fmt.Errorf("memory: reservation %s: %w", id, reservation.ErrNotFound)
	}
	return r, nil
}

// SoftDelete sets DeletedAt unless it is already set.
func (s *Store) SoftDelete(_ context.Context, id string, at time.Time) (bool, error) {
	_, ok := s.mutate(id, func(r *reservation.Reservation) {
		if r.DeletedAt == nil {
			t := at
			r.DeletedAt = &t
		}
	})
	return ok, nil
}

// Restore clears DeletedAt.
func (s *Store) Restore(_ context.Context, id string, at time.Time) (bool, error) {
	_, ok := s.mutate(id, func(r *reservation.Reservation) {
		if r.DeletedAt != nil {
			r.DeletedAt = nil
			r.UpdatedAt = at
		}
	})
	return ok, nil
}

// Exists reports whether id is stored.
func (s *Store) Exists(_ context.Context, id string) (bool, error) {
	_, ok := s.lookup(id)
	return ok, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Len returns the number of stored records, deleted ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func clone(r reservation.Reservation) reservation.Reservation {
	r.Fields = cloneFields(r.Fields)
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		r.DeletedAt = &t
	}
	return r
}

func cloneFields(f reservation.Fields) reservation.Fields {
	if f.SpecialRequests != nil {
		s := *f.SpecialRequests
		f.SpecialRequests = &s
	}
	return f
}
