//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrEthical07/jwtauth"
	"github.com/MrEthical07/jwtauth/jwt"
	"github.com/MrEthical07/jwtauth/keys"
	"github.com/MrEthical07/jwtauth/principal"
	"github.com/MrEthical07/jwtauth/refresh"
	"github.com/MrEthical07/jwtauth/refresh/sqlstore"
)

func TestRefreshRaceSingleWinner(t *testing.T) {
	stores := map[string]func(t *testing.T) refresh.Store{
		"memory": func(*testing.T) refresh.Store { return refresh.NewMemoryStore() },
		"sqlite": func(t *testing.T) refresh.Store {
			s, err := sqlstore.Open(":memory:")
			if err != nil {
				t.Fatalf("sqlstore.Open: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			cfg := jwtauth.DefaultConfig()
			cfg.JWT.Keys = map[jwt.Algorithm]jwtauth.KeyRef{jwt.HS256: {Sign: "hs"}}
			cfg.Refresh.Policy = refresh.PolicySingleActive
			cfg.Refresh.RotateOnRedeem = true
			cfg.Flood.IPLimit = 1000

			engine, err := jwtauth.New().
				WithConfig(cfg).
				WithKeyProvider(keys.NewStatic(map[string][]byte{"hs": testSecret()})).
				WithPrincipalDirectory(principal.NewStatic(alice())).
				WithRefreshStore(open(t)).
				Build()
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			t.Cleanup(engine.Close)

			token, err := engine.IssueRefreshToken(context.Background(), alice())
			if err != nil {
				t.Fatalf("IssueRefreshToken failed: %v", err)
			}

			const workers = 16
			start := make(chan struct{})
			results := make(chan error, workers)
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := engine.Redeem(context.Background(), token)
					results <- err
				}()
			}
			close(start)
			wg.Wait()
			close(results)

			wins := 0
			for err := range results {
				switch {
				case err == nil:
					wins++
				case errors.Is(err, jwtauth.ErrRefreshNotFound):
				default:
					t.Fatalf("unexpected redeem error: %v", err)
				}
			}
			if wins != 1 {
				t.Fatalf("expected exactly one winner, got %d", wins)
			}
		})
	}
}
