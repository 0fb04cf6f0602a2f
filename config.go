package jwtauth

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/MrEthical07/jwtauth/claims"
	"github.com/MrEthical07/jwtauth/jwt"
	"github.com/MrEthical07/jwtauth/refresh"
)

// Config is the complete engine configuration. Obtain a populated value from
// DefaultConfig and adjust the fields you need.
type Config struct {
	JWT     JWTConfig     `yaml:"jwt"`
	Claims  ClaimsConfig  `yaml:"claims"`
	Refresh RefreshConfig `yaml:"refresh"`
	Flood   FloodConfig   `yaml:"flood"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig selects algorithms, key identifiers and token lifetimes.
type JWTConfig struct {
	// Algorithm is the active signing algorithm.
	Algorithm jwt.Algorithm `yaml:"algorithm"`
	// SupportedAlgorithms are accepted on decode. Empty means all.
	SupportedAlgorithms []jwt.Algorithm `yaml:"supported_algorithms"`
	// SigningAlgorithms may be selected as the active algorithm. Empty
	// means SupportedAlgorithms.
	SigningAlgorithms []jwt.Algorithm `yaml:"signing_algorithms"`
	// Keys maps an algorithm to the key provider identifiers used for it.
	Keys      map[jwt.Algorithm]KeyRef `yaml:"keys"`
	AccessTTL time.Duration            `yaml:"access_ttl"`
	Leeway    time.Duration            `yaml:"leeway"`
	// Issuer and Audience are written on issue and asserted on
	// authenticate when non-empty.
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// KeyRef names the key provider entries for one algorithm. Symmetric
// algorithms use Sign for both operations and fall back to Verify. For
// asymmetric algorithms Verify is optional; the public key is derived from
// the Sign key when it is empty.
type KeyRef struct {
	Sign   string `yaml:"sign"`
	Verify string `yaml:"verify"`
}

/*
====================================
CLAIMS CONFIG
====================================
*/

// ClaimsConfig controls where the principal identifier lives in the payload.
type ClaimsConfig struct {
	// PrincipalPath is the dotted claim path holding the principal id.
	PrincipalPath string `yaml:"principal_path"`
	// RequirePrincipal rejects valid tokens that resolve to no principal.
	// When false such tokens authenticate as the anonymous principal.
	RequirePrincipal bool `yaml:"require_principal"`
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls refresh token issuance and redemption.
type RefreshConfig struct {
	Enabled bool           `yaml:"enabled"`
	Policy  refresh.Policy `yaml:"policy"`
	// TTL bounds the lifetime of a refresh record. Zero disables expiry.
	TTL time.Duration `yaml:"ttl"`
	// RotateOnRedeem revokes a record when it is redeemed, making every
	// refresh token single-use.
	RotateOnRedeem bool   `yaml:"rotate_on_redeem"`
	RedisPrefix    string `yaml:"redis_prefix"`
}

/*
====================================
FLOOD CONFIG
====================================
*/

// FloodConfig limits failed refresh redemptions per client IP.
type FloodConfig struct {
	Enabled   bool          `yaml:"enabled"`
	IPLimit   int           `yaml:"ip_limit"`
	IPWindow  time.Duration `yaml:"ip_window"`
	EventName string        `yaml:"event_name"`
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls in-process metric collection.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// DefaultConfig returns the baseline configuration: HS256 signing, one hour
// access tokens under the drupal.uid claim, JWT-wrapped refresh tokens valid
// for one week and 50 failed refresh attempts per IP per hour.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Algorithm: jwt.HS256,
			AccessTTL: time.Hour,
		},
		Claims: ClaimsConfig{
			PrincipalPath:    "drupal.uid",
			RequirePrincipal: true,
		},
		Refresh: RefreshConfig{
			Enabled:     true,
			Policy:      refresh.PolicyJWT,
			TTL:         7 * 24 * time.Hour,
			RedisPrefix: "jwtauth",
		},
		Flood: FloodConfig{
			Enabled:   true,
			IPLimit:   50,
			IPWindow:  time.Hour,
			EventName: "jwtauth.failed_refresh_ip",
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// HighSecurityConfig tightens DefaultConfig: RS256 only, 15 minute access
// tokens, single-use refresh tokens valid for one day and a stricter flood
// limit.
func HighSecurityConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Algorithm = jwt.RS256
	cfg.JWT.SupportedAlgorithms = []jwt.Algorithm{jwt.RS256}
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.Refresh.TTL = 24 * time.Hour
	cfg.Refresh.RotateOnRedeem = true
	cfg.Flood.IPLimit = 10
	cfg.Audit.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.SupportedAlgorithms = slices.Clone(cfg.JWT.SupportedAlgorithms)
	out.JWT.SigningAlgorithms = slices.Clone(cfg.JWT.SigningAlgorithms)
	out.JWT.Keys = maps.Clone(cfg.JWT.Keys)
	return out
}

func (c *Config) principalPath() claims.Path {
	return claims.Dotted(c.Claims.PrincipalPath)
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first inconsistency in c. Algorithm problems are
// returned as *jwt.ConfigError.
func (c *Config) Validate() error {
	// JWT
	supported := c.JWT.SupportedAlgorithms
	if len(supported) == 0 {
		supported = jwt.Algorithms()
	}
	for _, alg := range supported {
		if _, ok := jwt.Describe(alg); !ok {
			return &jwt.ConfigError{Reason: jwt.ConfigUnsupportedAlgorithm, Algorithm: alg}
		}
	}
	signing := c.JWT.SigningAlgorithms
	if len(signing) == 0 {
		signing = supported
	}
	for _, alg := range signing {
		if !slices.Contains(supported, alg) {
			return &jwt.ConfigError{Reason: jwt.ConfigUnsupportedAlgorithm, Algorithm: alg, Detail: "signing algorithm is not in the supported set"}
		}
	}
	if c.JWT.Algorithm != "" && !slices.Contains(signing, c.JWT.Algorithm) {
		return &jwt.ConfigError{Reason: jwt.ConfigUnsupportedAlgorithm, Algorithm: c.JWT.Algorithm, Detail: "not a signing algorithm"}
	}
	for alg := range c.JWT.Keys {
		if !slices.Contains(supported, alg) {
			return fmt.Errorf("JWT Keys configured for unsupported algorithm %s", alg)
		}
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Claims
	if len(c.principalPath()) == 0 {
		return errors.New("Claims PrincipalPath must not be empty")
	}

	// Refresh
	if c.Refresh.Enabled {
		switch c.Refresh.Policy {
		case refresh.PolicyJWT, refresh.PolicySingleActive:
		default:
			return errors.New("invalid Refresh Policy")
		}
		if c.Refresh.TTL < 0 {
			return errors.New("Refresh TTL must be >= 0")
		}
		if c.Refresh.RedisPrefix == "" {
			return errors.New("Refresh RedisPrefix must not be empty")
		}
	}

	// Flood
	if c.Flood.Enabled {
		if c.Flood.IPLimit <= 0 {
			return errors.New("Flood IPLimit must be > 0")
		}
		if c.Flood.IPWindow <= 0 {
			return errors.New("Flood IPWindow must be > 0")
		}
		if c.Flood.EventName == "" {
			return errors.New("Flood EventName must not be empty")
		}
	}

	// Audit
	if c.Audit.BufferSize < 0 {
		return errors.New("Audit BufferSize must be >= 0")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintSeverity ranks a LintWarning.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is a non-fatal configuration smell.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintWarnings is the result of Config.Lint.
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Code
	}
	return out
}

// BySeverity returns the warnings at or above min.
func (ws LintWarnings) BySeverity(min LintSeverity) LintWarnings {
	var out LintWarnings
	for _, w := range ws {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins the warnings at or above min into one error, or returns nil.
func (ws LintWarnings) AsError(min LintSeverity) error {
	var errs []error
	for _, w := range ws.BySeverity(min) {
		errs = append(errs, fmt.Errorf("%s [%s]: %s", w.Code, w.Severity, w.Message))
	}
	return errors.Join(errs...)
}

// Lint reports settings that are valid but risky. It assumes c passed
// Validate.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", LintWarn, "JWT Leeway above 1m widens the replay window for expired tokens")
	}
	if c.JWT.AccessTTL > time.Hour {
		add("access_ttl_long", LintWarn, "JWT AccessTTL above 1h keeps stolen access tokens usable for long")
	}
	if c.Refresh.Enabled && (c.Refresh.TTL == 0 || c.Refresh.TTL > 30*24*time.Hour) {
		add("refresh_ttl_long", LintWarn, "Refresh TTL is unbounded or above 30 days")
	}
	if c.Refresh.Enabled && !c.Flood.Enabled {
		add("flood_disabled", LintHigh, "refresh redemption is not rate limited")
	}
	if c.Refresh.Enabled && !c.Refresh.RotateOnRedeem {
		add("refresh_reusable", LintInfo, "refresh tokens stay valid after redemption until they expire")
	}
	if desc, ok := jwt.Describe(c.JWT.Algorithm); ok && desc.KeyType == jwt.Symmetric {
		add("shared_secret", LintInfo, "symmetric signing requires every verifier to hold the signing secret")
	}
	if len(c.JWT.SupportedAlgorithms) == 0 {
		add("all_algorithms_accepted", LintWarn, "every known algorithm is accepted on decode")
	}
	return ws
}
