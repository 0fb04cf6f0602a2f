package principal

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrNotFound is returned by a Directory that has no principal for an id.
var ErrNotFound = errors.New("principal: not found")

// Principal is an authenticated identity. The zero value is anonymous.
type Principal struct {
	ID         string
	Name       string
	Active     bool
	Roles      []string
	Attributes map[string]string
}

// Anonymous returns the unauthenticated principal.
func Anonymous() Principal { return Principal{} }

// IsAnonymous reports whether p carries no identity.
func (p Principal) IsAnonymous() bool { return p.ID == "" }

// HasRole reports whether p was granted role.
func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// Clone returns a deep copy of p.
func (p Principal) Clone() Principal {
	out := p
	out.Roles = slices.Clone(p.Roles)
	if p.Attributes != nil {
		out.Attributes = make(map[string]string, len(p.Attributes))
		for k, v := range p.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// Directory resolves principal identifiers carried in tokens and refresh
// records. Load returns ErrNotFound for unknown ids.
type Directory interface {
	Load(ctx context.Context, id string) (Principal, error)
}

// DirectoryFunc adapts a function to Directory.
type DirectoryFunc func(ctx context.Context, id string) (Principal, error)

// Load calls f.
func (f DirectoryFunc) Load(ctx context.Context, id string) (Principal, error) {
	return f(ctx, id)
}

// Static is an in-memory Directory, safe for concurrent use.
type Static struct {
	mu   sync.RWMutex
	byID map[string]Principal
}

// NewStatic returns a directory holding ps.
func NewStatic(ps ...Principal) *Static {
	s := &Static{byID: make(map[string]Principal, len(ps))}
	for _, p := range ps {
		s.byID[p.ID] = p.Clone()
	}
	return s
}

// Put adds or replaces p.
func (s *Static) Put(p Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ID] = p.Clone()
}

// SetActive flips the active flag of id. Unknown ids are ignored.
func (s *Static) SetActive(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.byID[id]; ok {
		p.Active = active
		s.byID[id] = p
	}
}

// Load implements Directory.
func (s *Static) Load(ctx context.Context, id string) (Principal, error) {
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok || id == "" {
		return Principal{}, ErrNotFound
	}
	return p.Clone(), nil
}
