package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/jwtauth/claims"
	"github.com/MrEthical07/jwtauth/events"
	internalaudit "github.com/MrEthical07/jwtauth/internal/audit"
	"github.com/MrEthical07/jwtauth/internal/flows"
	"github.com/MrEthical07/jwtauth/internal/rate"
	"github.com/MrEthical07/jwtauth/jwt"
	"github.com/MrEthical07/jwtauth/keys"
	"github.com/MrEthical07/jwtauth/principal"
	"github.com/MrEthical07/jwtauth/refresh"
	"go.uber.org/zap"
)

var bearerPattern = regexp.MustCompile(`^Bearer (.+)$`)

// Engine authenticates bearer tokens and issues access and refresh tokens.
//
// Engine instances are built once by Builder and are safe for concurrent use.
// ReloadKeys may run while requests are being served.
type Engine struct {
	config     Config
	logger     *zap.Logger
	transcoder atomic.Pointer[jwt.Transcoder]
	reloadMu   sync.Mutex
	dispatcher *events.Dispatcher
	keys       keys.Provider
	directory  principal.Directory
	refresh    refresh.Store
	flood      rate.Flood
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	now        func() time.Time
}

// Close describes the close operation and its observable behavior.
//
// Close flushes and stops the audit dispatcher. Stores passed to the Builder
// are owned by the caller and are not closed.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByKind breaks AuditDropped down by event kind. Only kinds
// with drops are present.
func (e *Engine) AuditDroppedByKind() map[AuditKind]uint64 {
	if e == nil || e.audit == nil {
		return map[AuditKind]uint64{}
	}
	return e.audit.DroppedByKind()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot returns empty maps when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Dispatcher returns the event dispatcher so callers can register
// subscribers after Build.
func (e *Engine) Dispatcher() *events.Dispatcher {
	return e.dispatcher
}

// Transcoder returns the transcoder currently in use. ReloadKeys replaces
// it; do not cache the result.
func (e *Engine) Transcoder() *jwt.Transcoder {
	return e.transcoder.Load()
}

/*
====================================
AUTHENTICATION
====================================
*/

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header.
func BearerToken(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	m := bearerPattern.FindStringSubmatch(r.Header.Get("Authorization"))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Applies reports whether r carries a bearer token this engine should look
// at. It does not validate the token.
func (e *Engine) Applies(r *http.Request) bool {
	_, ok := BearerToken(r)
	return ok
}

// Authenticate describes the authenticate operation and its observable behavior.
//
// Authenticate reads the bearer token of r and resolves it to a principal.
// Every rejection is returned as *AuthenticationError; other errors come
// from the principal directory.
func (e *Engine) Authenticate(ctx context.Context, r *http.Request) (Principal, error) {
	token, _ := BearerToken(r)
	if ip := ClientIP(r); ip != "" {
		ctx = WithClientIP(ctx, ip)
	}
	return e.AuthenticateToken(ctx, token)
}

// AuthenticateToken decodes token, runs VALIDATE and VALID and returns the
// principal the subscribers resolved. With Claims.RequirePrincipal false a
// valid token that resolves to nobody yields the anonymous principal and no
// error.
func (e *Engine) AuthenticateToken(ctx context.Context, token string) (Principal, error) {
	if e == nil {
		return principal.Anonymous(), ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeLatency(MetricAuthenticateLatency, start)

	res := flows.RunAuthenticate(ctx, token, flows.AuthenticateDeps{
		Decode:     e.decode,
		Dispatcher: e.dispatcher,
	})

	switch res.Failure {
	case flows.AuthFailureNone:
		e.metricInc(MetricAuthenticateSuccess)
		return res.Principal, nil

	case flows.AuthFailureNoToken:
		e.metricInc(MetricAuthenticateNoToken)
		return principal.Anonymous(), &AuthenticationError{Failure: FailureNoToken}

	case flows.AuthFailureDecode:
		e.metricInc(MetricDecodeFailure)
		e.metricInc(MetricAuthenticateFailure)
		err := &AuthenticationError{Failure: FailureDecode, Decode: res.DecodeReason, Err: res.Err}
		e.logger.Debug("token decode failed", zap.Stringer("reason", res.DecodeReason))
		e.emitAudit(ctx, AuditTokenRejected, false, "", err, func() map[string]string {
			return map[string]string{"stage": "decode", "reason": res.DecodeReason.String()}
		})
		return principal.Anonymous(), err

	case flows.AuthFailureRejected:
		e.metricInc(MetricValidationRejected)
		e.metricInc(MetricAuthenticateFailure)
		err := &AuthenticationError{Failure: FailureRejected, Reason: res.Reason}
		e.logger.Debug("token rejected",
			zap.String("subscriber", res.RejectedBy),
			zap.String("reason", res.Reason),
		)
		e.emitAudit(ctx, AuditTokenRejected, false, "", err, func() map[string]string {
			return map[string]string{"stage": "validate", "subscriber": res.RejectedBy}
		})
		return principal.Anonymous(), err

	case flows.AuthFailureNoPrincipal:
		if !e.config.Claims.RequirePrincipal {
			e.metricInc(MetricAuthenticateSuccess)
			return principal.Anonymous(), nil
		}
		e.metricInc(MetricNoPrincipal)
		e.metricInc(MetricAuthenticateFailure)
		err := &AuthenticationError{Failure: FailureNoPrincipal}
		e.emitAudit(ctx, AuditTokenRejected, false, "", err, func() map[string]string {
			return map[string]string{"stage": "valid"}
		})
		return principal.Anonymous(), err

	default:
		e.metricInc(MetricAuthenticateFailure)
		e.logger.Error("principal resolution failed", zap.Error(res.Err))
		return principal.Anonymous(), fmt.Errorf("jwtauth: resolve principal: %w", res.Err)
	}
}

/*
====================================
ISSUANCE
====================================
*/

// Issue describes the issue operation and its observable behavior.
//
// Issue runs GENERATE for p and signs the result with the active
// algorithm. Failures are returned as *IssuanceError; errors.Is reports
// ErrNoKeyConfigured when the active algorithm has no signing key.
func (e *Engine) Issue(ctx context.Context, p Principal) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	return e.finishIssue(ctx, p, e.runIssue(ctx, p))
}

func (e *Engine) runIssue(ctx context.Context, p Principal) flows.IssueResult {
	return flows.RunIssue(ctx, p, flows.IssueDeps{
		Dispatcher: e.dispatcher,
		Encode:     e.encode,
	})
}

// finishIssue records the outcome of one signing attempt.
func (e *Engine) finishIssue(ctx context.Context, p Principal, res flows.IssueResult) (string, error) {
	switch res.Failure {
	case flows.IssueFailureNone:
		e.metricInc(MetricIssueSuccess)
		e.emitAudit(ctx, AuditTokenIssued, true, p.ID, nil, nil)
		return res.Token, nil

	case flows.IssueFailureNoKey:
		e.metricInc(MetricIssueNoKey)
		e.logger.Warn("no signing key configured", zap.String("algorithm", string(e.transcoder.Load().Algorithm())))
	default:
		e.metricInc(MetricIssueFailure)
		e.logger.Error("token signing failed", zap.Error(res.Err))
	}
	err := &IssuanceError{Err: res.Err}
	e.emitAudit(ctx, AuditTokenIssueFailed, false, p.ID, err, nil)
	return "", err
}

// IssueRefreshToken describes the issuerefreshtoken operation and its observable behavior.
//
// IssueRefreshToken hands p a refresh token according to Refresh.Policy.
// Under PolicySingleActive an unexpired active record is returned again
// instead of creating a new one.
func (e *Engine) IssueRefreshToken(ctx context.Context, p Principal) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	if !e.config.Refresh.Enabled {
		return "", ErrRefreshDisabled
	}
	if p.IsAnonymous() {
		return "", ErrAnonymousPrincipal
	}
	return e.issueRefresh(ctx, p)
}

func (e *Engine) issueRefresh(ctx context.Context, p Principal) (string, error) {
	res := flows.RunIssueRefresh(ctx, p, flows.IssueRefreshDeps{
		Policy:        e.config.Refresh.Policy,
		Store:         e.refresh,
		TTL:           e.config.Refresh.TTL,
		Now:           e.now,
		NewIdentifier: refresh.NewIdentifier,
		Encode:        e.encode,
	})

	var err error
	switch res.Failure {
	case flows.IssueRefreshFailureNone:
		if res.Created {
			e.metricInc(MetricRefreshIssued)
		} else {
			e.metricInc(MetricRefreshReused)
		}
		e.emitAudit(ctx, AuditRefreshIssued, true, p.ID, nil, func() map[string]string {
			return map[string]string{
				"policy": e.config.Refresh.Policy.String(),
				"reused": fmt.Sprint(!res.Created),
			}
		})
		return res.Token, nil

	case flows.IssueRefreshFailureStore:
		err = fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	case flows.IssueRefreshFailureNoKey, flows.IssueRefreshFailureEncode:
		err = &IssuanceError{Err: res.Err}
	default:
		err = fmt.Errorf("jwtauth: refresh identifier: %w", res.Err)
	}
	e.metricInc(MetricRefreshFailure)
	e.logger.Error("refresh token issuance failed", zap.String("principal_id", p.ID), zap.Error(res.Err))
	e.emitAudit(ctx, AuditRefreshFailed, false, p.ID, err, func() map[string]string {
		return map[string]string{"stage": "issue"}
	})
	return "", err
}

// IssuePair issues an access token and, when refresh is enabled, a refresh
// token for p.
func (e *Engine) IssuePair(ctx context.Context, p Principal) (TokenPair, error) {
	access, err := e.Issue(ctx, p)
	if err != nil {
		return TokenPair{}, err
	}
	pair := TokenPair{AccessToken: access}
	if !e.config.Refresh.Enabled || p.IsAnonymous() {
		return pair, nil
	}
	pair.RefreshToken, err = e.issueRefresh(ctx, p)
	if err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Redeem describes the redeem operation and its observable behavior.
//
// Redeem exchanges a refresh token for a new access token and a refresh
// token for the next exchange. The client IP stored with WithClientIP is
// the flood control identifier.
func (e *Engine) Redeem(ctx context.Context, presented string) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	if !e.config.Refresh.Enabled {
		return TokenPair{}, ErrRefreshDisabled
	}
	ip := clientIPFromContext(ctx)

	res := flows.RunRedeem(ctx, presented, ip, flows.RedeemDeps{
		Policy:    e.config.Refresh.Policy,
		Store:     e.refresh,
		Decode:    e.decode,
		Directory: e.directory,
		Flood:     e.flood,
		FloodCfg: flows.FloodPolicy{
			Enabled: e.config.Flood.Enabled,
			Event:   e.config.Flood.EventName,
			Limit:   e.config.Flood.IPLimit,
			Window:  e.config.Flood.IPWindow,
		},
		Now:          e.now,
		Rotate:       e.config.Refresh.RotateOnRedeem,
		IssueAccess:  e.signForRedeem,
		IssueRefresh: e.issueRefresh,
		Warn:         e.logger.Sugar().Warnw,
	})

	var err error
	switch res.Failure {
	case flows.RedeemFailureNone:
		_, _ = e.finishIssue(ctx, res.Owner, flows.IssueResult{Token: res.AccessToken})
		e.metricInc(MetricRefreshRedeemed)
		e.emitAudit(ctx, AuditRefreshRedeemed, true, res.Owner.ID, nil, func() map[string]string {
			return map[string]string{"rotated": fmt.Sprint(res.Rotated)}
		})
		return TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}, nil

	case flows.RedeemFailureFloodBlocked:
		e.metricInc(MetricFloodBlocked)
		e.logger.Warn("refresh blocked by flood control", zap.String("ip", ip))
		e.emitAudit(ctx, AuditFloodBlocked, false, "", ErrFloodBlocked, nil)
		return TokenPair{}, ErrFloodBlocked

	case flows.RedeemFailureNotFound:
		err = ErrRefreshNotFound
	case flows.RedeemFailureOwnerInactive:
		e.metricInc(MetricRefreshOwnerInactive)
		err = ErrOwnerInactive
	case flows.RedeemFailureIssue:
		err = res.Err
	default:
		e.logger.Error("refresh backend failed", zap.Error(res.Err))
		err = fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	}
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, AuditRefreshFailed, false, res.Record.OwnerID, err, func() map[string]string {
		return map[string]string{"stage": "redeem"}
	})
	return TokenPair{}, err
}

// signForRedeem signs an access token for a redemption. Success is recorded
// by Redeem once the record is committed; failures are recorded here.
func (e *Engine) signForRedeem(ctx context.Context, p Principal) (string, error) {
	res := e.runIssue(ctx, p)
	if res.Failure != flows.IssueFailureNone {
		return e.finishIssue(ctx, p, res)
	}
	return res.Token, nil
}

/*
====================================
KEYS
====================================
*/

// ReloadKeys fetches every configured key from the key provider into a new
// transcoder and swaps it in. On error the previous transcoder stays active.
func (e *Engine) ReloadKeys(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	tc, err := newTranscoder(ctx, e.config.JWT, e.keys, e.now)
	if err != nil {
		e.metricInc(MetricKeyReloadFailure)
		e.logger.Error("key reload failed", zap.Error(err))
		e.emitAudit(ctx, AuditKeysReloadFailed, false, "", err, nil)
		return err
	}
	e.transcoder.Store(tc)
	e.metricInc(MetricKeyReload)
	e.emitAudit(ctx, AuditKeysReloaded, true, "", nil, nil)

	if !tc.HasSigningKey(tc.Algorithm()) {
		e.logger.Warn("no signing key configured for active algorithm", zap.String("algorithm", string(tc.Algorithm())))
	} else {
		e.logger.Info("keys loaded", zap.String("algorithm", string(tc.Algorithm())))
	}
	return nil
}

// Decode verifies token with the active transcoder without running any
// subscriber.
func (e *Engine) Decode(token string) (*claims.Payload, error) {
	return e.decode(token)
}

func (e *Engine) decode(token string) (*claims.Payload, error) {
	return e.transcoder.Load().Decode(token)
}

func (e *Engine) encode(p *claims.Payload) (string, error) {
	return e.transcoder.Load().Encode(p)
}

func newTranscoder(ctx context.Context, cfg JWTConfig, provider keys.Provider, now func() time.Time) (*jwt.Transcoder, error) {
	tc, err := jwt.NewTranscoder(jwt.Config{
		Algorithm: cfg.Algorithm,
		Supported: cfg.SupportedAlgorithms,
		Signing:   cfg.SigningAlgorithms,
		Leeway:    cfg.Leeway,
		Now:       now,
	})
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return tc, nil
	}
	for _, alg := range tc.SupportedAlgorithms() {
		ref, ok := cfg.Keys[alg]
		if !ok {
			continue
		}
		if err := loadKeys(ctx, tc, provider, alg, ref); err != nil {
			return nil, err
		}
	}
	return tc, nil
}

func loadKeys(ctx context.Context, tc *jwt.Transcoder, provider keys.Provider, alg jwt.Algorithm, ref KeyRef) error {
	fetch := func(id string) ([]byte, error) {
		data, err := provider.GetKey(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("jwtauth: key %q for %s: %w", id, alg, err)
		}
		return data, nil
	}

	desc, _ := jwt.Describe(alg)
	if desc.KeyType == jwt.Symmetric {
		id := ref.Sign
		if id == "" {
			id = ref.Verify
		}
		if id == "" {
			return nil
		}
		secret, err := fetch(id)
		if err != nil {
			return err
		}
		return tc.SetSecret(alg, secret)
	}

	if ref.Sign != "" {
		data, err := fetch(ref.Sign)
		if err != nil {
			return err
		}
		if err := tc.SetPrivateKey(alg, data); err != nil {
			return err
		}
	}
	if ref.Verify != "" {
		data, err := fetch(ref.Verify)
		if err != nil {
			return err
		}
		if err := tc.SetPublicKey(alg, data); err != nil {
			return err
		}
	}
	return nil
}

// WatchKeys reloads keys whenever the provider reports a change. It is a
// no-op for providers that cannot watch. WatchKeys returns once watching
// started.
func (e *Engine) WatchKeys(ctx context.Context) error {
	w, ok := e.keys.(keys.Watcher)
	if !ok {
		return nil
	}
	return w.Watch(ctx, func() {
		if err := e.ReloadKeys(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Warn("key watch reload failed", zap.Error(err))
		}
	})
}
