package claims

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
)

// Path addresses a claim by its map keys, outermost first.
type Path []string

// P builds a Path from segments. P("sub") and P("drupal", "uid") are the
// one- and two-segment forms.
func P(segments ...string) Path {
	return Path(segments)
}

// Dotted splits a dotted claim name such as "drupal.uid" into a Path.
// Empty segments are dropped.
func Dotted(name string) Path {
	parts := strings.Split(name, ".")
	out := make(Path, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Payload is the claim set of a token. The zero value is an empty payload
// ready for use. A Payload is not safe for concurrent mutation.
type Payload struct {
	root map[string]Value
}

// New returns an empty payload.
func New() *Payload {
	return &Payload{root: map[string]Value{}}
}

// FromMap builds a payload from the map shape produced by encoding/json.
func FromMap(m map[string]any) (*Payload, error) {
	p := New()
	for k, raw := range m {
		v, err := Of(raw)
		if err != nil {
			return nil, err
		}
		p.root[k] = v
	}
	return p, nil
}

// Parse decodes a JSON object into a payload.
func Parse(data []byte) (*Payload, error) {
	p := New()
	if err := p.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns the value at path. Missing segments, or a segment that walks
// through a non-map value, report false.
func (p *Payload) Get(path Path) (Value, bool) {
	if p == nil || len(path) == 0 || p.root == nil {
		return Value{}, false
	}
	cur := p.root
	for i, seg := range path {
		v, ok := cur[seg]
		if !ok {
			return Value{}, false
		}
		if i == len(path)-1 {
			return v.Clone(), true
		}
		if v.kind != KindMap {
			return Value{}, false
		}
		cur = v.m
	}
	return Value{}, false
}

// Has reports whether a non-null value exists at path.
func (p *Payload) Has(path Path) bool {
	v, ok := p.Get(path)
	return ok && !v.IsNull()
}

// Set stores a copy of v at path, creating intermediate maps. Any non-map
// value on the way is replaced by a map. An empty path is ignored.
func (p *Payload) Set(path Path, v Value) {
	if p == nil || len(path) == 0 {
		return
	}
	if p.root == nil {
		p.root = map[string]Value{}
	}
	cur := p.root
	for _, seg := range path[:len(path)-1] {
		next, ok := cur[seg]
		if !ok || next.kind != KindMap || next.m == nil {
			next = emptyMap()
			cur[seg] = next
		}
		cur = next.m
	}
	cur[path[len(path)-1]] = v.Clone()
}

// Unset removes the value at path. It is a no-op when any segment is absent
// or walks through a non-map value.
func (p *Payload) Unset(path Path) {
	if p == nil || len(path) == 0 || p.root == nil {
		return
	}
	cur := p.root
	for _, seg := range path[:len(path)-1] {
		next, ok := cur[seg]
		if !ok || next.kind != KindMap {
			return
		}
		cur = next.m
	}
	delete(cur, path[len(path)-1])
}

// Len returns the number of top-level claims.
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.root)
}

// Keys returns the sorted top-level claim names.
func (p *Payload) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, 0, len(p.root))
	for k := range p.root {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a deep copy of the payload in encoding/json shapes.
func (p *Payload) Map() map[string]any {
	out := make(map[string]any, p.Len())
	if p == nil {
		return out
	}
	for k, v := range p.root {
		out[k] = v.Interface()
	}
	return out
}

// Clone returns a deep copy of p.
func (p *Payload) Clone() *Payload {
	out := New()
	if p == nil {
		return out
	}
	for k, v := range p.root {
		out.root[k] = v.Clone()
	}
	return out
}

// Equal reports whether both payloads hold the same claim tree.
func (p *Payload) Equal(o *Payload) bool {
	if p.Len() != o.Len() {
		return false
	}
	if p.Len() == 0 {
		return true
	}
	for k, v := range p.root {
		other, ok := o.root[k]
		if !ok || !v.Equal(other) {
			return false
		}
	}
	return true
}

// MarshalJSON implements json.Marshaler.
func (p *Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}

// UnmarshalJSON implements json.Unmarshaler. The input must be a JSON object.
func (p *Payload) UnmarshalJSON(data []byte) error {
	raw, err := decodeJSON(data)
	if err != nil {
		return err
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return errors.New("claims: payload must be a JSON object")
	}
	parsed, err := FromMap(m)
	if err != nil {
		return err
	}
	p.root = parsed.root
	return nil
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("claims: trailing data after JSON value")
	}
	return raw, nil
}
