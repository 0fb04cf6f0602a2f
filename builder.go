package jwtauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/jwtauth/events"
	internalaudit "github.com/MrEthical07/jwtauth/internal/audit"
	"github.com/MrEthical07/jwtauth/internal/rate"
	"github.com/MrEthical07/jwtauth/keys"
	"github.com/MrEthical07/jwtauth/principal"
	"github.com/MrEthical07/jwtauth/refresh"
	"github.com/MrEthical07/jwtauth/refresh/redisstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine.
//
// Builder instances are intended to be configured during initialization and
// used for exactly one Build call.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	keys         keys.Provider
	directory    principal.Directory
	refreshStore refresh.Store
	auditSink    AuditSink
	logger       *zap.Logger
	now          func() time.Time

	subscribers []events.Subscriber
	noDefaults  bool

	built bool
}

// New describes the new operation and its observable behavior.
//
// New starts from DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// With a redis client and no explicit refresh store, refresh records and
// flood control counters live in redis under Refresh.RedisPrefix.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithKeyProvider sets where signing and verification keys are read from.
func (b *Builder) WithKeyProvider(p keys.Provider) *Builder {
	b.keys = p
	return b
}

// WithPrincipalDirectory sets the directory used to resolve token
// principals and refresh token owners. It is required.
func (b *Builder) WithPrincipalDirectory(d principal.Directory) *Builder {
	b.directory = d
	return b
}

// WithRefreshStore sets the refresh record store. It takes precedence over
// WithRedis.
func (b *Builder) WithRefreshStore(s refresh.Store) *Builder {
	b.refreshStore = s
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// The sink only receives events when Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger shared by the engine and the dispatcher.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithSubscriber registers extra subscribers after the built-in ones.
func (b *Builder) WithSubscriber(subs ...events.Subscriber) *Builder {
	b.subscribers = append(b.subscribers, subs...)
	return b
}

// WithoutDefaultSubscribers skips the built-in claim subscribers. The
// caller then owns iat, exp and principal handling.
func (b *Builder) WithoutDefaultSubscribers() *Builder {
	b.noDefaults = true
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// withClock overrides the clock used for claims and refresh records.
func (b *Builder) withClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, wires the stores and subscribers and
// loads the configured keys. A missing signing key for the active algorithm
// is not an error; Issue reports it.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.directory == nil {
		return nil, errors.New("principal directory required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- REFRESH STORE --------
	store := b.refreshStore
	if store == nil && cfg.Refresh.Enabled {
		if b.redis != nil {
			store = redisstore.New(b.redis, cfg.Refresh.RedisPrefix)
		} else {
			logger.Warn("no refresh store configured, records are kept in memory")
			store = refresh.NewMemoryStore()
		}
	}

	// -------- FLOOD CONTROL --------
	var flood rate.Flood
	if cfg.Flood.Enabled {
		if b.redis != nil {
			flood = rate.NewRedisFlood(b.redis, cfg.Refresh.RedisPrefix)
		} else {
			flood = rate.NewMemoryFlood()
		}
	}

	// -------- SUBSCRIBERS --------
	dispatcher := events.NewDispatcher(events.WithLogger(logger))
	path := cfg.principalPath()
	if !b.noDefaults {
		dispatcher.AddSubscriber(
			StandardClaims{
				TTL:      cfg.JWT.AccessTTL,
				Issuer:   cfg.JWT.Issuer,
				Audience: cfg.JWT.Audience,
				Now:      now,
			},
			PrincipalClaim{Path: path},
			IssuerAudience{Issuer: cfg.JWT.Issuer, Audience: cfg.JWT.Audience},
			Consumer{Path: path, Directory: b.directory, Logger: logger},
		)
	}
	dispatcher.AddSubscriber(b.subscribers...)

	engine := &Engine{
		config:     cfg,
		logger:     logger,
		dispatcher: dispatcher,
		keys:       b.keys,
		directory:  b.directory,
		refresh:    store,
		flood:      flood,
		metrics:    NewMetrics(cfg.Metrics),
		now:        now,
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger,
	}, b.auditSink)

	if err := engine.ReloadKeys(context.Background()); err != nil {
		engine.Close()
		return nil, err
	}

	for _, w := range cfg.Lint().BySeverity(LintWarn) {
		logger.Warn("configuration lint",
			zap.String("code", w.Code),
			zap.Stringer("severity", w.Severity),
			zap.String("message", w.Message),
		)
	}

	b.built = true

	return engine, nil
}
