package jwtauth

import (
	"context"
	"testing"

	"github.com/MrEthical07/jwtauth/keys"
	"github.com/MrEthical07/jwtauth/principal"
	"github.com/MrEthical07/jwtauth/refresh"
)

func newBenchmarkEngine(b *testing.B, cfg Config) *Engine {
	b.Helper()

	engine, err := New().
		WithConfig(cfg).
		WithKeyProvider(keys.NewStatic(map[string][]byte{"hs": testSecret()})).
		WithPrincipalDirectory(testDirectory()).
		Build()
	if err != nil {
		b.Fatalf("build failed: %v", err)
	}
	b.Cleanup(engine.Close)
	return engine
}

func BenchmarkAuthenticateToken(b *testing.B) {
	engine := newBenchmarkEngine(b, testConfig())

	access, err := engine.Issue(context.Background(), principal.Principal{ID: "7", Active: true})
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.AuthenticateToken(context.Background(), access); err != nil {
			b.Fatalf("authenticate failed: %v", err)
		}
	}
}

func BenchmarkAuthenticateTokenParallel(b *testing.B) {
	engine := newBenchmarkEngine(b, testConfig())

	access, err := engine.Issue(context.Background(), principal.Principal{ID: "7", Active: true})
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := engine.AuthenticateToken(context.Background(), access); err != nil {
				b.Errorf("authenticate failed: %v", err)
				return
			}
		}
	})
}

func BenchmarkIssue(b *testing.B) {
	engine := newBenchmarkEngine(b, testConfig())
	p := principal.Principal{ID: "7", Active: true}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Issue(context.Background(), p); err != nil {
			b.Fatalf("issue failed: %v", err)
		}
	}
}

func BenchmarkRedeemSingleActive(b *testing.B) {
	cfg := testConfig()
	cfg.Flood.Enabled = false
	cfg.Refresh.Policy = refresh.PolicySingleActive
	engine := newBenchmarkEngine(b, cfg)
	p := principal.Principal{ID: "7", Active: true}

	token, err := engine.IssueRefreshToken(context.Background(), p)
	if err != nil {
		b.Fatalf("refresh issue failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Redeem(context.Background(), token); err != nil {
			b.Fatalf("redeem failed: %v", err)
		}
	}
}

func BenchmarkAuthenticateRejected(b *testing.B) {
	engine := newBenchmarkEngine(b, testConfig())

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = engine.AuthenticateToken(context.Background(), "a.b.c")
	}
}
