package jwtauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/jwtauth/claims"
	"github.com/MrEthical07/jwtauth/events"
	"github.com/MrEthical07/jwtauth/jwt"
	"github.com/MrEthical07/jwtauth/keys"
	"github.com/MrEthical07/jwtauth/principal"
	"github.com/MrEthical07/jwtauth/refresh"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testSecret() []byte {
	b := make([]byte, 64)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SupportedAlgorithms = []jwt.Algorithm{jwt.HS256, jwt.RS256}
	cfg.JWT.Keys = map[jwt.Algorithm]KeyRef{
		jwt.HS256: {Sign: "hs"},
	}
	cfg.Flood.IPLimit = 5
	return cfg
}

func testDirectory() *principal.Static {
	return principal.NewStatic(
		principal.Principal{ID: "7", Name: "alice", Active: true},
		principal.Principal{ID: "8", Name: "bob", Active: true},
	)
}

type testEngine struct {
	*Engine
	dir   *principal.Static
	keys  *keys.Static
	clock *testClock
}

func buildTestEngine(t *testing.T, cfg Config, opts ...func(*Builder)) *testEngine {
	t.Helper()

	te := &testEngine{
		dir:   testDirectory(),
		keys:  keys.NewStatic(map[string][]byte{"hs": testSecret()}),
		clock: newTestClock(),
	}
	b := New().
		WithConfig(cfg).
		WithKeyProvider(te.keys).
		WithPrincipalDirectory(te.dir).
		withClock(te.clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	te.Engine = engine
	return te
}

func (te *testEngine) alice() Principal {
	p, _ := te.dir.Load(context.Background(), "7")
	return p
}

func bearerRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func requireAuthFailure(t *testing.T, err error, want AuthFailure) *AuthenticationError {
	t.Helper()
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthenticationError, got %v", err)
	}
	if authErr.Failure != want {
		t.Fatalf("expected failure %s, got %s", want, authErr.Failure)
	}
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatal("expected errors.Is(err, ErrUnauthenticated)")
	}
	return authErr
}

func TestIssueAndAuthenticateRoundTrip(t *testing.T) {
	te := buildTestEngine(t, testConfig())
	ctx := context.Background()

	token, err := te.Issue(ctx, te.alice())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	payload, err := te.Decode(token)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	uid, ok := payload.Get(claims.Dotted("drupal.uid"))
	if !ok {
		t.Fatal("expected drupal.uid claim")
	}
	if n, ok := uid.AsInt64(); !ok || n != 7 {
		t.Fatalf("expected numeric uid 7, got %v", uid.Interface())
	}
	iat, _ := payload.Get(claims.P("iat"))
	exp, _ := payload.Get(claims.P("exp"))
	iatN, _ := iat.AsInt64()
	expN, _ := exp.AsInt64()
	if iatN != te.clock.Now().Unix() || expN-iatN != 3600 {
		t.Fatalf("unexpected iat/exp %d/%d", iatN, expN)
	}

	r := bearerRequest(token)
	if !te.Applies(r) {
		t.Fatal("expected Applies for bearer request")
	}
	p, err := te.Authenticate(ctx, r)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if p.ID != "7" || p.Name != "alice" {
		t.Fatalf("unexpected principal %+v", p)
	}
}

func TestAppliesRequiresBearerScheme(t *testing.T) {
	te := buildTestEngine(t, testConfig())

	cases := map[string]string{
		"missing": "",
		"basic":   "Basic dXNlcjpwYXNz",
		"empty":   "Bearer ",
		"case":    "bearer abc",
	}
	for name, header := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if te.Applies(r) {
			t.Fatalf("%s: expected Applies to be false", name)
		}
	}
}

func TestAuthenticateWithoutToken(t *testing.T) {
	te := buildTestEngine(t, testConfig())

	p, err := te.Authenticate(context.Background(), bearerRequest(""))
	requireAuthFailure(t, err, FailureNoToken)
	if !p.IsAnonymous() {
		t.Fatal("expected anonymous principal")
	}
	if PublicMessage(err) != "No bearer token was provided." {
		t.Fatalf("unexpected message %q", PublicMessage(err))
	}
}

func TestAuthenticateTamperedToken(t *testing.T) {
	te := buildTestEngine(t, testConfig())
	token, err := te.Issue(context.Background(), te.alice())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	tampered := tamperSignature(token)

	_, err = te.AuthenticateToken(context.Background(), tampered)
	authErr := requireAuthFailure(t, err, FailureDecode)
	if authErr.Decode != jwt.ReasonSignatureInvalid {
		t.Fatalf("expected bad signature, got %s", authErr.Decode)
	}
	if StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", StatusCode(err))
	}
	if PublicMessage(err) != "Invalid token." {
		t.Fatalf("unexpected message %q", PublicMessage(err))
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	te := buildTestEngine(t, testConfig())
	token, err := te.Issue(context.Background(), te.alice())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	te.clock.Advance(2 * time.Hour)
	_, err = te.AuthenticateToken(context.Background(), token)
	authErr := requireAuthFailure(t, err, FailureDecode)
	if authErr.Decode != jwt.ReasonExpired {
		t.Fatalf("expected expired, got %s", authErr.Decode)
	}
}

func TestAuthenticateMissingPrincipalClaim(t *testing.T) {
	te := buildTestEngine(t, testConfig())

	payload := claims.New()
	payload.Set(claims.P("exp"), claims.Int(te.clock.Now().Add(time.Hour).Unix()))
	token, err := te.Transcoder().Encode(payload)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	_, err = te.AuthenticateToken(context.Background(), token)
	authErr := requireAuthFailure(t, err, FailureRejected)
	if authErr.Reason != MissingPrincipalReason {
		t.Fatalf("unexpected reason %q", authErr.Reason)
	}
	if !errors.Is(err, ErrValidationRejected) {
		t.Fatal("expected errors.Is(err, ErrValidationRejected)")
	}
}

func TestValidateStopsAtFirstInvalidation(t *testing.T) {
	var yRan bool
	te := buildTestEngine(t, testConfig(), func(b *Builder) {
		b.WithSubscriber(events.SubscriberFunc(func(d *events.Dispatcher) {
			d.OnValidate("y", 5, func(_ context.Context, e *events.ValidateEvent) {
				yRan = true
				e.Invalidate("rejected by y")
			})
			d.OnValidate("x", 10, func(_ context.Context, e *events.ValidateEvent) {
				e.Invalidate("rejected by x")
			})
		}))
	})

	token, err := te.Issue(context.Background(), te.alice())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	_, err = te.AuthenticateToken(context.Background(), token)
	authErr := requireAuthFailure(t, err, FailureRejected)
	if authErr.Reason != "rejected by x" {
		t.Fatalf("expected x to win, got %q", authErr.Reason)
	}
	if yRan {
		t.Fatal("expected y to be skipped after x invalidated")
	}
}

func tamperSignature(token string) string {
	i := strings.LastIndex(token, ".") + 1
	c := byte('A')
	if token[i] == 'A' {
		c = 'B'
	}
	return token[:i] + string(c) + token[i+1:]
}

func TestAuthenticateInactivePrincipal(t *testing.T) {
	te := buildTestEngine(t, testConfig())
	token, err := te.Issue(context.Background(), te.alice())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	te.dir.SetActive("7", false)

	_, err = te.AuthenticateToken(context.Background(), token)
	requireAuthFailure(t, err, FailureNoPrincipal)
}

func TestAuthenticateAnonymousWhenPrincipalOptional(t *testing.T) {
	cfg := testConfig()
	cfg.Claims.RequirePrincipal = false
	te := buildTestEngine(t, cfg)
	token, err := te.Issue(context.Background(), te.alice())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	te.dir.SetActive("7", false)

	p, err := te.AuthenticateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !p.IsAnonymous() {
		t.Fatalf("expected anonymous principal, got %+v", p)
	}
}

func TestAuthenticateDirectoryFailure(t *testing.T) {
	boom := errors.New("directory down")
	dir := principal.DirectoryFunc(func(ctx context.Context, id string) (principal.Principal, error) {
		return principal.Principal{}, boom
	})
	te := buildTestEngine(t, testConfig(), func(b *Builder) { b.WithPrincipalDirectory(dir) })

	token, err := te.Issue(context.Background(), principal.Principal{ID: "7", Active: true})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	_, err = te.AuthenticateToken(context.Background(), token)
	if !errors.Is(err, boom) {
		t.Fatalf("expected directory error, got %v", err)
	}
	if errors.Is(err, ErrUnauthenticated) {
		t.Fatal("directory failures must not look like a rejected token")
	}
}

func TestIssueWithoutSigningKey(t *testing.T) {
	te := buildTestEngine(t, testConfig(), func(b *Builder) { b.WithKeyProvider(nil) })

	_, err := te.Issue(context.Background(), te.alice())
	var issueErr *IssuanceError
	if !errors.As(err, &issueErr) {
		t.Fatalf("expected *IssuanceError, got %v", err)
	}
	if !errors.Is(err, ErrNoKeyConfigured) {
		t.Fatalf("expected ErrNoKeyConfigured, got %v", err)
	}
	if PublicMessage(err) != "Please set a signing key for the active JWT algorithm." {
		t.Fatalf("unexpected message %q", PublicMessage(err))
	}
}

func TestRS256KeysFromProvider(t *testing.T) {
	pem, err := jwt.GeneratePrivateKeyPEM(jwt.RS256)
	if err != nil {
		t.Fatalf("GeneratePrivateKeyPEM failed: %v", err)
	}
	cfg := testConfig()
	cfg.JWT.Algorithm = jwt.RS256
	cfg.JWT.Keys[jwt.RS256] = KeyRef{Sign: "rs"}

	te := buildTestEngine(t, cfg, func(b *Builder) {
		b.WithKeyProvider(keys.NewStatic(map[string][]byte{"hs": testSecret(), "rs": pem}))
	})
	token, err := te.Issue(context.Background(), te.alice())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	p, err := te.AuthenticateToken(context.Background(), token)
	if err != nil || p.ID != "7" {
		t.Fatalf("Authenticate failed: %v %+v", err, p)
	}
}

func TestReloadKeysKeepsPreviousOnFailure(t *testing.T) {
	te := buildTestEngine(t, testConfig())
	ctx := context.Background()

	te.keys.Delete("hs")
	if err := te.ReloadKeys(ctx); !errors.Is(err, keys.ErrNotFound) {
		t.Fatalf("expected keys.ErrNotFound, got %v", err)
	}
	old, err := te.Issue(ctx, te.alice())
	if err != nil {
		t.Fatalf("expected previous key to stay active: %v", err)
	}

	rotated := testSecret()
	rotated[0] = 'Z'
	te.keys.Put("hs", rotated)
	if err := te.ReloadKeys(ctx); err != nil {
		t.Fatalf("ReloadKeys failed: %v", err)
	}
	_, err = te.AuthenticateToken(ctx, old)
	authErr := requireAuthFailure(t, err, FailureDecode)
	if authErr.Decode != jwt.ReasonSignatureInvalid {
		t.Fatalf("expected bad signature after rotation, got %s", authErr.Decode)
	}

	snap := te.MetricsSnapshot()
	if snap.Counters[MetricKeyReload] != 2 || snap.Counters[MetricKeyReloadFailure] != 1 {
		t.Fatalf("unexpected reload counters %+v", snap.Counters)
	}
}

/*
====================================
REFRESH
====================================
*/

func TestRedeemIssuesNewPair(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	te := buildTestEngine(t, testConfig(), func(b *Builder) { b.WithRedis(rdb) })
	ctx := WithClientIP(context.Background(), "203.0.113.9")

	pair, err := te.IssuePair(ctx, te.alice())
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}
	if pair.RefreshToken == "" {
		t.Fatal("expected refresh token")
	}

	next, err := te.Redeem(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	if next.AccessToken == "" || next.RefreshToken == "" {
		t.Fatalf("expected new pair, got %+v", next)
	}
	p, err := te.AuthenticateToken(ctx, next.AccessToken)
	if err != nil || p.ID != "7" {
		t.Fatalf("expected redeemed access token to authenticate: %v", err)
	}

	// without rotation the presented token stays valid until it expires
	if _, err := te.Redeem(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("second Redeem failed: %v", err)
	}

	te.clock.Advance(8 * 24 * time.Hour)
	if _, err := te.Redeem(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("expected expired refresh token to be rejected, got %v", err)
	}
}

func TestRedeemRotatesWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Refresh.RotateOnRedeem = true
	te := buildTestEngine(t, cfg)
	ctx := context.Background()

	first, err := te.IssueRefreshToken(ctx, te.alice())
	if err != nil {
		t.Fatalf("IssueRefreshToken failed: %v", err)
	}
	if _, err := te.Redeem(ctx, first); err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	_, err = te.Redeem(ctx, first)
	if !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("expected reused token to be rejected, got %v", err)
	}
	if StatusCode(err) != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", StatusCode(err))
	}
}

func TestRedeemRejectsAccessToken(t *testing.T) {
	te := buildTestEngine(t, testConfig())
	access, err := te.Issue(context.Background(), te.alice())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := te.Redeem(context.Background(), access); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("expected access token to be refused, got %v", err)
	}
}

func TestRedeemInactiveOwner(t *testing.T) {
	te := buildTestEngine(t, testConfig())
	ctx := context.Background()
	token, err := te.IssueRefreshToken(ctx, te.alice())
	if err != nil {
		t.Fatalf("IssueRefreshToken failed: %v", err)
	}
	te.dir.SetActive("7", false)

	if _, err := te.Redeem(ctx, token); !errors.Is(err, ErrOwnerInactive) {
		t.Fatalf("expected ErrOwnerInactive, got %v", err)
	}
}

func TestRedeemFloodControlBlocksSixthAttempt(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	te := buildTestEngine(t, testConfig(), func(b *Builder) { b.WithRedis(rdb) })
	ctx := WithClientIP(context.Background(), "198.51.100.7")

	for i := 0; i < 5; i++ {
		if _, err := te.Redeem(ctx, "not-a-token"); !errors.Is(err, ErrRefreshNotFound) {
			t.Fatalf("attempt %d: expected ErrRefreshNotFound, got %v", i+1, err)
		}
	}

	valid, err := te.IssueRefreshToken(ctx, te.alice())
	if err != nil {
		t.Fatalf("IssueRefreshToken failed: %v", err)
	}
	_, err = te.Redeem(ctx, valid)
	if !errors.Is(err, ErrFloodBlocked) {
		t.Fatalf("expected ErrFloodBlocked, got %v", err)
	}
	if StatusCode(err) != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", StatusCode(err))
	}

	other := WithClientIP(context.Background(), "198.51.100.8")
	if _, err := te.Redeem(other, valid); err != nil {
		t.Fatalf("expected other client to be unaffected, got %v", err)
	}
	if te.MetricsSnapshot().Counters[MetricFloodBlocked] != 1 {
		t.Fatal("expected one flood blocked metric")
	}
}

func TestSingleActivePolicyReusesToken(t *testing.T) {
	cfg := testConfig()
	cfg.Refresh.Policy = refresh.PolicySingleActive
	te := buildTestEngine(t, cfg)
	ctx := context.Background()

	first, err := te.IssueRefreshToken(ctx, te.alice())
	if err != nil {
		t.Fatalf("IssueRefreshToken failed: %v", err)
	}
	second, err := te.IssueRefreshToken(ctx, te.alice())
	if err != nil {
		t.Fatalf("IssueRefreshToken failed: %v", err)
	}
	if first != second {
		t.Fatal("expected the active refresh token to be reused")
	}

	pair, err := te.Redeem(ctx, first)
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	if pair.RefreshToken != first {
		t.Fatal("expected redeem to hand back the same active token")
	}

	snap := te.MetricsSnapshot()
	if snap.Counters[MetricRefreshIssued] != 1 || snap.Counters[MetricRefreshReused] != 2 {
		t.Fatalf("unexpected refresh counters %+v", snap.Counters)
	}
}

func TestRefreshDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Refresh.Enabled = false
	te := buildTestEngine(t, cfg)

	if _, err := te.IssueRefreshToken(context.Background(), te.alice()); !errors.Is(err, ErrRefreshDisabled) {
		t.Fatalf("expected ErrRefreshDisabled, got %v", err)
	}
	_, err := te.Redeem(context.Background(), "x")
	if StatusCode(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", StatusCode(err))
	}
	pair, err := te.IssuePair(context.Background(), te.alice())
	if err != nil || pair.RefreshToken != "" {
		t.Fatalf("expected access-only pair, got %+v %v", pair, err)
	}
}

func TestRefreshRequiresPrincipal(t *testing.T) {
	te := buildTestEngine(t, testConfig())
	_, err := te.IssueRefreshToken(context.Background(), principal.Anonymous())
	if !errors.Is(err, ErrAnonymousPrincipal) {
		t.Fatalf("expected ErrAnonymousPrincipal, got %v", err)
	}
}

/*
====================================
BUILDER
====================================
*/

func TestBuilderRequiresDirectory(t *testing.T) {
	_, err := New().WithConfig(testConfig()).Build()
	if err == nil {
		t.Fatal("expected error without principal directory")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig()).WithPrincipalDirectory(testDirectory())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.Algorithm = jwt.Algorithm("ES256")
	_, err := New().WithConfig(cfg).WithPrincipalDirectory(testDirectory()).Build()
	var cfgErr *jwt.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *jwt.ConfigError, got %v", err)
	}
}

func TestBuilderWithoutDefaultSubscribers(t *testing.T) {
	te := buildTestEngine(t, testConfig(), func(b *Builder) { b.WithoutDefaultSubscribers() })

	token, err := te.Issue(context.Background(), te.alice())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	payload, err := te.Decode(token)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if payload.Has(claims.P("exp")) || payload.Has(claims.Dotted("drupal.uid")) {
		t.Fatal("expected an empty payload without default subscribers")
	}
	if len(te.Dispatcher().Subscribers(events.StageValidate)) != 0 {
		t.Fatal("expected no VALIDATE subscribers")
	}
}
