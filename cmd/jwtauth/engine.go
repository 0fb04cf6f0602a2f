package main

import (
	"context"
	"fmt"
	"os"

	"github.com/MrEthical07/jwtauth"
	"github.com/MrEthical07/jwtauth/config"
	"github.com/MrEthical07/jwtauth/keys"
	"github.com/MrEthical07/jwtauth/principal"
	"github.com/MrEthical07/jwtauth/refresh/pgstore"
	"github.com/MrEthical07/jwtauth/refresh/sqlstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds the engine and everything it borrowed that must be closed
// after it.
type app struct {
	engine    *jwtauth.Engine
	directory *principal.Static
	closers   []func()
}

func (r *app) Close() {
	if r.engine != nil {
		r.engine.Close()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	rt := &app{directory: principal.NewStatic()}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	if cfg.PrincipalsFile != "" {
		ps, err := config.LoadPrincipals(cfg.PrincipalsFile)
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			rt.directory.Put(p)
		}
	}

	b := jwtauth.New().
		WithConfig(cfg.Auth).
		WithLogger(log).
		WithPrincipalDirectory(rt.directory).
		WithAuditSink(jwtauth.NewJSONWriterSink(os.Stderr))

	if cfg.Keys.Dir != "" {
		dir, err := keys.NewDir(cfg.Keys.Dir, log)
		if err != nil {
			return nil, err
		}
		var provider keys.Provider = dir
		if cfg.Keys.CacheTTL > 0 {
			provider = keys.NewCached(dir, cfg.Keys.CacheTTL)
		}
		b.WithKeyProvider(provider)
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		b.WithRedis(client)
	}

	switch cfg.Store.Driver {
	case config.DriverSQLite:
		store, err := sqlstore.Open(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = store.Close() })
		b.WithRefreshStore(store)
	case config.DriverPostgres:
		store, err := pgstore.Connect(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, store.Close)
		b.WithRefreshStore(store)
	}

	engine, err := b.Build()
	if err != nil {
		return nil, err
	}
	rt.engine = engine
	ok = true
	return rt, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
