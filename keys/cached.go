package keys

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Cached memoizes another provider for a fixed TTL. Concurrent misses for
// the same identifier share one upstream call. Misses are not cached.
type Cached struct {
	next  Provider
	cache *gocache.Cache
	group singleflight.Group
}

// NewCached wraps next. A non-positive ttl keeps entries until Flush.
func NewCached(next Provider, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &Cached{next: next, cache: gocache.New(ttl, time.Minute)}
}

// GetKey implements Provider.
func (c *Cached) GetKey(ctx context.Context, id string) ([]byte, error) {
	if v, ok := c.cache.Get(id); ok {
		return append([]byte(nil), v.([]byte)...), nil
	}
	v, err, _ := c.group.Do(id, func() (any, error) {
		key, err := c.next.GetKey(ctx, id)
		if err != nil {
			return nil, err
		}
		c.cache.SetDefault(id, key)
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v.([]byte)...), nil
}

// Invalidate drops the cached key for id.
func (c *Cached) Invalidate(id string) { c.cache.Delete(id) }

// Flush drops every cached key.
func (c *Cached) Flush() { c.cache.Flush() }

// Watch implements Watcher when the wrapped provider does. The cache is
// flushed before onChange runs.
func (c *Cached) Watch(ctx context.Context, onChange func()) error {
	w, ok := c.next.(Watcher)
	if !ok {
		return nil
	}
	return w.Watch(ctx, func() {
		c.Flush()
		onChange()
	})
}
