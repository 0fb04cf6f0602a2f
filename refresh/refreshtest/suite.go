// Package refreshtest holds the behaviour every refresh.Store must share.
package refreshtest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/jwtauth/refresh"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) refresh.Store

// Run exercises a store implementation.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateLookup", func(t *testing.T) { testCreateLookup(t, newStore(t)) })
	t.Run("EnsureActiveReuses", func(t *testing.T) { testEnsureActiveReuses(t, newStore(t)) })
	t.Run("EnsureActiveReplacesExpired", func(t *testing.T) { testEnsureActiveReplacesExpired(t, newStore(t)) })
	t.Run("RevokeIsCompareAndSwap", func(t *testing.T) { testRevoke(t, newStore(t)) })
	t.Run("ConcurrentEnsureActive", func(t *testing.T) { testConcurrentEnsureActive(t, newStore(t)) })
	t.Run("ConcurrentRevoke", func(t *testing.T) { testConcurrentRevoke(t, newStore(t)) })
}

// Now is truncated to milliseconds, the precision every store keeps.
func Now() time.Time {
	return time.UnixMilli(time.Now().UnixMilli())
}

func record(t *testing.T, owner string, now time.Time, ttl time.Duration) refresh.Record {
	t.Helper()
	id, err := refresh.NewIdentifier()
	if err != nil {
		t.Fatalf("new identifier: %v", err)
	}
	r := refresh.Record{Identifier: id, OwnerID: owner, CreatedAt: now}
	if ttl > 0 {
		r.ExpiresAt = now.Add(ttl)
	}
	return r
}

func sameRecord(a, b refresh.Record) bool {
	return a.Identifier == b.Identifier &&
		a.OwnerID == b.OwnerID &&
		a.Status == b.Status &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.ExpiresAt.Equal(b.ExpiresAt)
}

func testCreateLookup(t *testing.T, s refresh.Store) {
	ctx := context.Background()
	now := Now()
	r := record(t, "7", now, time.Hour)
	if err := s.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.Lookup(ctx, r.Identifier)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	r.Status = refresh.StatusActive
	if !sameRecord(got, r) {
		t.Fatalf("lookup = %+v, want %+v", got, r)
	}
	if err := s.Create(ctx, r); !errors.Is(err, refresh.ErrExists) {
		t.Fatalf("expected ErrExists on duplicate, got %v", err)
	}
	if _, err := s.Lookup(ctx, "missing"); !errors.Is(err, refresh.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	forever := record(t, "8", now, 0)
	if err := s.Create(ctx, forever); err != nil {
		t.Fatalf("create without expiry: %v", err)
	}
	got, err = s.Lookup(ctx, forever.Identifier)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !got.ExpiresAt.IsZero() {
		t.Fatalf("expected no expiry, got %v", got.ExpiresAt)
	}
}

func testEnsureActiveReuses(t *testing.T, s refresh.Store) {
	ctx := context.Background()
	now := Now()

	first, created, err := s.EnsureActive(ctx, record(t, "7", now, time.Hour), now)
	if err != nil || !created {
		t.Fatalf("first ensure: created=%v err=%v", created, err)
	}
	second, created, err := s.EnsureActive(ctx, record(t, "7", now, time.Hour), now)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if created || second.Identifier != first.Identifier {
		t.Fatalf("expected existing record to be reused, got created=%v id=%s", created, second.Identifier)
	}

	other, created, err := s.EnsureActive(ctx, record(t, "8", now, time.Hour), now)
	if err != nil || !created || other.Identifier == first.Identifier {
		t.Fatalf("expected separate record per owner, got created=%v err=%v", created, err)
	}

	if ok, err := s.Revoke(ctx, first.Identifier); err != nil || !ok {
		t.Fatalf("revoke: ok=%v err=%v", ok, err)
	}
	third, created, err := s.EnsureActive(ctx, record(t, "7", now, time.Hour), now)
	if err != nil || !created || third.Identifier == first.Identifier {
		t.Fatalf("expected new record after revoke, got created=%v err=%v", created, err)
	}
}

func testEnsureActiveReplacesExpired(t *testing.T, s refresh.Store) {
	ctx := context.Background()
	then := Now().Add(-2 * time.Hour)

	old, _, err := s.EnsureActive(ctx, record(t, "7", then, time.Hour), then)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	now := Now()
	fresh, created, err := s.EnsureActive(ctx, record(t, "7", now, time.Hour), now)
	if err != nil || !created || fresh.Identifier == old.Identifier {
		t.Fatalf("expected expired record to be replaced, got created=%v err=%v", created, err)
	}

	// Stores may have reclaimed the expired record entirely.
	got, err := s.Lookup(ctx, old.Identifier)
	if err == nil && got.Usable(now) {
		t.Fatalf("expected expired record to be unusable, got %+v", got)
	}
}

func testRevoke(t *testing.T, s refresh.Store) {
	ctx := context.Background()
	r := record(t, "7", Now(), time.Hour)
	if err := s.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := s.Revoke(ctx, r.Identifier); err != nil || !ok {
		t.Fatalf("first revoke: ok=%v err=%v", ok, err)
	}
	if ok, err := s.Revoke(ctx, r.Identifier); err != nil || ok {
		t.Fatalf("second revoke: ok=%v err=%v", ok, err)
	}
	got, err := s.Lookup(ctx, r.Identifier)
	if err != nil || got.Status != refresh.StatusRevoked {
		t.Fatalf("expected revoked record, got %+v err=%v", got, err)
	}
	if _, err := s.Revoke(ctx, "missing"); !errors.Is(err, refresh.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testConcurrentEnsureActive(t *testing.T, s refresh.Store) {
	ctx := context.Background()
	now := Now()
	const workers = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]int{}
		created int
	)
	candidates := make([]refresh.Record, workers)
	for i := range candidates {
		candidates[i] = record(t, "7", now, time.Hour)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(candidate refresh.Record) {
			defer wg.Done()
			rec, c, err := s.EnsureActive(ctx, candidate, now)
			if err != nil {
				t.Errorf("ensure: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[rec.Identifier]++
			if c {
				created++
			}
		}(candidates[i])
	}
	wg.Wait()

	if len(ids) != 1 || created != 1 {
		t.Fatalf("expected one active record, got ids=%d created=%d", len(ids), created)
	}
}

func testConcurrentRevoke(t *testing.T, s refresh.Store) {
	ctx := context.Background()
	r := record(t, "7", Now(), time.Hour)
	if err := s.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Revoke(ctx, r.Identifier)
			if err != nil {
				t.Errorf("revoke: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winning revoke, got %d", wins)
	}
}
