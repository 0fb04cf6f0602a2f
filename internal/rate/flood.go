package rate

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Flood counts events per (event name, identifier) over a sliding window.
// Callers check IsAllowed before acting and Register after a failure.
type Flood interface {
	// IsAllowed reports whether fewer than limit events were registered for
	// identifier within the last window.
	IsAllowed(ctx context.Context, event string, limit int, window time.Duration, identifier string) (bool, error)
	// Register records one event that stays countable for window.
	Register(ctx context.Context, event string, window time.Duration, identifier string) error
	// Clear forgets every event for identifier.
	Clear(ctx context.Context, event, identifier string) error
}

// RedisFlood keeps one sorted set per (event, identifier) scored by event
// time in milliseconds.
type RedisFlood struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisFlood returns a flood backend using keys under prefix.
func NewRedisFlood(rdb redis.UniversalClient, prefix string) *RedisFlood {
	if prefix == "" {
		prefix = "jwtauth"
	}
	return &RedisFlood{redis: rdb, prefix: prefix, now: time.Now}
}

func (f *RedisFlood) key(event, identifier string) string {
	return f.prefix + ":flood:" + event + ":" + identifier
}

// IsAllowed implements Flood.
func (f *RedisFlood) IsAllowed(ctx context.Context, event string, limit int, window time.Duration, identifier string) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, ErrInvalidWindow
	}
	key := f.key(event, identifier)
	cutoff := f.now().Add(-window).UnixMilli()

	var card *redis.IntCmd
	_, err := f.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
		card = p.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return card.Val() < int64(limit), nil
}

// Register implements Flood.
func (f *RedisFlood) Register(ctx context.Context, event string, window time.Duration, identifier string) error {
	if window <= 0 {
		return ErrInvalidWindow
	}
	key := f.key(event, identifier)
	now := f.now().UnixMilli()

	_, err := f.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: uuid.NewString()})
		p.PExpire(ctx, key, window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Clear implements Flood.
func (f *RedisFlood) Clear(ctx context.Context, event, identifier string) error {
	if err := f.redis.Del(ctx, f.key(event, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// MemoryFlood is an in-process Flood. Entries expire from the cache once
// their newest event leaves the registration window.
type MemoryFlood struct {
	mu    sync.Mutex
	cache *gocache.Cache
	now   func() time.Time
}

// NewMemoryFlood returns an empty in-memory flood backend.
func NewMemoryFlood() *MemoryFlood {
	return &MemoryFlood{cache: gocache.New(gocache.NoExpiration, time.Minute), now: time.Now}
}

func memoryKey(event, identifier string) string {
	return event + "\x00" + identifier
}

// IsAllowed implements Flood.
func (f *MemoryFlood) IsAllowed(ctx context.Context, event string, limit int, window time.Duration, identifier string) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, ErrInvalidWindow
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := f.now().Add(-window)
	hits := f.hits(event, identifier)
	count := 0
	for _, at := range hits {
		if !at.Before(cutoff) {
			count++
		}
	}
	return count < limit, nil
}

// Register implements Flood.
func (f *MemoryFlood) Register(ctx context.Context, event string, window time.Duration, identifier string) error {
	if window <= 0 {
		return ErrInvalidWindow
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	hits := f.hits(event, identifier)
	kept := hits[:0]
	for _, at := range hits {
		if now.Sub(at) < window {
			kept = append(kept, at)
		}
	}
	kept = append(kept, now)
	f.cache.Set(memoryKey(event, identifier), kept, window)
	return nil
}

// Clear implements Flood.
func (f *MemoryFlood) Clear(ctx context.Context, event, identifier string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache.Delete(memoryKey(event, identifier))
	return nil
}

func (f *MemoryFlood) hits(event, identifier string) []time.Time {
	v, ok := f.cache.Get(memoryKey(event, identifier))
	if !ok {
		return nil
	}
	hits, _ := v.([]time.Time)
	return hits
}
