package jwtauth

import (
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/jwtauth/jwt"
	"github.com/MrEthical07/jwtauth/refresh"
)

func TestConfigValidateEnums(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name: "jwt leeway valid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 45 * time.Second
			},
			wantValid: true,
		},
		{
			name: "jwt leeway invalid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "jwt access ttl invalid",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 0
			},
			wantValid: false,
		},
		{
			name: "jwt algorithm valid",
			mutate: func(c *Config) {
				c.JWT.Algorithm = jwt.EdDSA
			},
			wantValid: true,
		},
		{
			name: "jwt algorithm unknown",
			mutate: func(c *Config) {
				c.JWT.Algorithm = "none"
			},
			wantValid: false,
		},
		{
			name: "jwt algorithm outside supported set",
			mutate: func(c *Config) {
				c.JWT.SupportedAlgorithms = []jwt.Algorithm{jwt.RS256}
			},
			wantValid: false,
		},
		{
			name: "jwt signing set outside supported set",
			mutate: func(c *Config) {
				c.JWT.SupportedAlgorithms = []jwt.Algorithm{jwt.HS256}
				c.JWT.SigningAlgorithms = []jwt.Algorithm{jwt.HS256, jwt.RS256}
			},
			wantValid: false,
		},
		{
			name: "jwt keys for unsupported algorithm",
			mutate: func(c *Config) {
				c.JWT.SupportedAlgorithms = []jwt.Algorithm{jwt.HS256}
				c.JWT.Keys = map[jwt.Algorithm]KeyRef{jwt.RS256: {Sign: "rs"}}
			},
			wantValid: false,
		},
		{
			name: "claims path empty",
			mutate: func(c *Config) {
				c.Claims.PrincipalPath = ""
			},
			wantValid: false,
		},
		{
			name: "refresh policy valid",
			mutate: func(c *Config) {
				c.Refresh.Policy = refresh.PolicySingleActive
			},
			wantValid: true,
		},
		{
			name: "refresh policy invalid",
			mutate: func(c *Config) {
				c.Refresh.Policy = refresh.Policy(77)
			},
			wantValid: false,
		},
		{
			name: "refresh policy ignored when disabled",
			mutate: func(c *Config) {
				c.Refresh.Enabled = false
				c.Refresh.Policy = refresh.Policy(77)
			},
			wantValid: true,
		},
		{
			name: "refresh prefix empty",
			mutate: func(c *Config) {
				c.Refresh.RedisPrefix = ""
			},
			wantValid: false,
		},
		{
			name: "flood limit invalid",
			mutate: func(c *Config) {
				c.Flood.IPLimit = 0
			},
			wantValid: false,
		},
		{
			name: "flood window invalid",
			mutate: func(c *Config) {
				c.Flood.IPWindow = 0
			},
			wantValid: false,
		},
		{
			name: "flood settings ignored when disabled",
			mutate: func(c *Config) {
				c.Flood.Enabled = false
				c.Flood.IPLimit = 0
			},
			wantValid: true,
		},
		{
			name: "audit buffer invalid",
			mutate: func(c *Config) {
				c.Audit.BufferSize = -1
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestConfigValidateAlgorithmErrorsAreConfigErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.Algorithm = "ES256"

	err := cfg.Validate()
	var cfgErr *jwt.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *jwt.ConfigError, got %v", err)
	}
	if cfgErr.Algorithm != "ES256" {
		t.Fatalf("expected ES256 in error, got %q", cfgErr.Algorithm)
	}
	if PublicMessage(err) != cfgErr.Error() {
		t.Fatalf("expected configuration detail in public message, got %q", PublicMessage(err))
	}
}

func TestDefaultAndHighSecurityConfigsValidate(t *testing.T) {
	for name, cfg := range map[string]Config{
		"default":       DefaultConfig(),
		"high-security": HighSecurityConfig(),
	} {
		if err := cfg.Validate(); err != nil {
			t.Fatalf("%s: expected valid config, got %v", name, err)
		}
	}

	hs := HighSecurityConfig()
	if hs.JWT.Algorithm != jwt.RS256 || !hs.Refresh.RotateOnRedeem {
		t.Fatalf("unexpected high security config %+v", hs)
	}
}

func TestWithConfigClonesSlices(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.SupportedAlgorithms = []jwt.Algorithm{jwt.HS256}
	cfg.JWT.Keys = map[jwt.Algorithm]KeyRef{jwt.HS256: {Sign: "hs"}}

	b := New().WithConfig(cfg)
	cfg.JWT.SupportedAlgorithms[0] = jwt.RS256
	cfg.JWT.Keys[jwt.HS256] = KeyRef{Sign: "other"}

	if b.config.JWT.SupportedAlgorithms[0] != jwt.HS256 {
		t.Fatal("builder config shares SupportedAlgorithms with caller")
	}
	if b.config.JWT.Keys[jwt.HS256].Sign != "hs" {
		t.Fatal("builder config shares Keys with caller")
	}
}
