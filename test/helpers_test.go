//go:build integration
// +build integration

package test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/jwtauth"
	"github.com/MrEthical07/jwtauth/jwt"
	"github.com/MrEthical07/jwtauth/keys"
	"github.com/MrEthical07/jwtauth/principal"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// cmdCounter is a go-redis Hook that counts Redis round-trips. A pipeline or
// transaction counts once.
type cmdCounter struct {
	commands   atomic.Int64
	roundTrips atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		h.roundTrips.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.roundTrips.Add(1)
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.roundTrips.Store(0)
}

func (h *cmdCounter) RoundTrips() int64 { return h.roundTrips.Load() }

func testSecret() []byte {
	secret := make([]byte, 64)
	for i := range secret {
		secret[i] = byte(i*7 + 3)
	}
	return secret
}

func alice() principal.Principal {
	return principal.Principal{ID: "7", Name: "alice", Active: true}
}

// newCountedEngine builds an engine on miniredis with a cmdCounter hook.
// Reset the counter before each measured operation.
func newCountedEngine(t *testing.T, mutate func(*jwtauth.Config)) (*jwtauth.Engine, *cmdCounter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	// Warm the connection before counting so handshake commands are not
	// measured.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}
	counter := &cmdCounter{}
	rdb.AddHook(counter)

	cfg := jwtauth.DefaultConfig()
	cfg.JWT.Keys = map[jwt.Algorithm]jwtauth.KeyRef{jwt.HS256: {Sign: "hs"}}
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := jwtauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithKeyProvider(keys.NewStatic(map[string][]byte{"hs": testSecret()})).
		WithPrincipalDirectory(principal.NewStatic(alice())).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	counter.Reset()
	return engine, counter
}
