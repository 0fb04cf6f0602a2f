package refresh

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a Store backed by maps. It is safe for concurrent use and
// intended for tests and single-process deployments.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	active  map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[string]Record{},
		active:  map[string]string{},
	}
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.Identifier]; ok {
		return ErrExists
	}
	r.Status = StatusActive
	s.records[r.Identifier] = r
	return nil
}

// EnsureActive implements Store.
func (s *MemoryStore) EnsureActive(ctx context.Context, candidate Record, now time.Time) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.active[candidate.OwnerID]; ok {
		cur := s.records[id]
		if cur.Usable(now) {
			return cur, false, nil
		}
		if cur.Status == StatusActive {
			cur.Status = StatusRevoked
			s.records[id] = cur
		}
		delete(s.active, candidate.OwnerID)
	}
	if _, ok := s.records[candidate.Identifier]; ok {
		return Record{}, false, ErrExists
	}
	candidate.Status = StatusActive
	s.records[candidate.Identifier] = candidate
	s.active[candidate.OwnerID] = candidate.Identifier
	return candidate, true, nil
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

// Revoke implements Store.
func (s *MemoryStore) Revoke(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != StatusActive {
		return false, nil
	}
	r.Status = StatusRevoked
	s.records[id] = r
	if s.active[r.OwnerID] == id {
		delete(s.active, r.OwnerID)
	}
	return true, nil
}
