package keys

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when no key exists for an identifier.
var ErrNotFound = errors.New("keys: key not found")

// Provider returns raw key bytes (a secret or PEM text) by identifier.
type Provider interface {
	GetKey(ctx context.Context, id string) ([]byte, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, id string) ([]byte, error)

// GetKey calls f.
func (f ProviderFunc) GetKey(ctx context.Context, id string) ([]byte, error) {
	return f(ctx, id)
}

// Static is an in-memory Provider, safe for concurrent use.
type Static struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

// NewStatic returns a provider holding copies of m.
func NewStatic(m map[string][]byte) *Static {
	s := &Static{keys: make(map[string][]byte, len(m))}
	for id, k := range m {
		s.keys[id] = append([]byte(nil), k...)
	}
	return s
}

// Put adds or replaces a key.
func (s *Static) Put(id string, key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[id] = append([]byte(nil), key...)
}

// Delete removes a key.
func (s *Static) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, id)
}

// GetKey implements Provider.
func (s *Static) GetKey(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), k...), nil
}

// Watcher is implemented by providers that can report key changes.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}
