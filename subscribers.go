package jwtauth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/jwtauth/claims"
	"github.com/MrEthical07/jwtauth/events"
	"github.com/MrEthical07/jwtauth/principal"
	"go.uber.org/zap"
)

// Names and priorities of the built-in subscribers.
const (
	SubscriberStandardClaims   = "jwtauth.standard_claims"
	SubscriberPrincipalClaim   = "jwtauth.principal_claim"
	SubscriberIssuerAudience   = "jwtauth.issuer_audience"
	SubscriberRequirePrincipal = "jwtauth.require_principal"
	SubscriberLoadPrincipal    = "jwtauth.load_principal"

	PriorityStandardClaims = 100
	PriorityPrincipalClaim = 99
	PriorityIssuerAudience = 50
	PriorityConsumer       = 0
)

// MissingPrincipalReason is the invalidation message for tokens that carry
// no principal claim.
const MissingPrincipalReason = "No uid was provided in the JWT payload."

// StandardClaims writes iat, exp and the optional iss and aud claims during
// GENERATE.
type StandardClaims struct {
	TTL      time.Duration
	Issuer   string
	Audience string
	Now      func() time.Time
}

func (s StandardClaims) Subscribe(d *events.Dispatcher) {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	d.OnGenerate(SubscriberStandardClaims, PriorityStandardClaims, func(_ context.Context, e *events.GenerateEvent) {
		t := now()
		e.AddClaim(claims.P("iat"), claims.Int(t.Unix()))
		e.AddClaim(claims.P("exp"), claims.Int(t.Add(s.TTL).Unix()))
		if s.Issuer != "" {
			e.AddClaim(claims.P("iss"), claims.String(s.Issuer))
		}
		if s.Audience != "" {
			e.AddClaim(claims.P("aud"), claims.String(s.Audience))
		}
	})
}

// IssuerAudience rejects tokens whose iss or aud claim does not match during
// VALIDATE. Empty fields are not checked.
type IssuerAudience struct {
	Issuer   string
	Audience string
}

func (s IssuerAudience) Subscribe(d *events.Dispatcher) {
	if s.Issuer == "" && s.Audience == "" {
		return
	}
	d.OnValidate(SubscriberIssuerAudience, PriorityIssuerAudience, func(_ context.Context, e *events.ValidateEvent) {
		if s.Issuer != "" {
			v, _ := e.Claim(claims.P("iss"))
			if iss, _ := v.AsString(); iss != s.Issuer {
				e.Invalidate("The token issuer is not accepted.")
				return
			}
		}
		if s.Audience != "" && !audienceContains(e, s.Audience) {
			e.Invalidate("The token audience is not accepted.")
		}
	})
}

// aud may be a single string or a list of strings.
func audienceContains(e *events.ValidateEvent, want string) bool {
	v, ok := e.Claim(claims.P("aud"))
	if !ok {
		return false
	}
	if s, ok := v.AsString(); ok {
		return s == want
	}
	items, _ := v.AsList()
	for _, it := range items {
		if s, ok := it.AsString(); ok && s == want {
			return true
		}
	}
	return false
}

// PrincipalClaim writes the principal id at Path during GENERATE. Numeric
// ids are written as JSON numbers.
type PrincipalClaim struct {
	Path claims.Path
}

func (s PrincipalClaim) Subscribe(d *events.Dispatcher) {
	d.OnGenerate(SubscriberPrincipalClaim, PriorityPrincipalClaim, func(_ context.Context, e *events.GenerateEvent) {
		p := e.Principal()
		if p.IsAnonymous() {
			return
		}
		e.AddClaim(s.Path, principalValue(p.ID))
	})
}

func principalValue(id string) claims.Value {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil && strconv.FormatInt(n, 10) == id {
		return claims.Int(n)
	}
	return claims.String(id)
}

// Consumer requires the principal claim during VALIDATE and resolves it
// through Directory during VALID. Unknown and inactive principals leave the
// event anonymous; directory failures fail the event.
type Consumer struct {
	Path      claims.Path
	Directory principal.Directory
	Logger    *zap.Logger
}

func (s Consumer) Subscribe(d *events.Dispatcher) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	d.OnValidate(SubscriberRequirePrincipal, PriorityConsumer, func(_ context.Context, e *events.ValidateEvent) {
		v, ok := e.Claim(s.Path)
		if !ok {
			e.Invalidate(MissingPrincipalReason)
			return
		}
		if id, ok := v.Text(); !ok || id == "" {
			e.Invalidate(MissingPrincipalReason)
		}
	})

	d.OnValid(SubscriberLoadPrincipal, PriorityConsumer, func(ctx context.Context, e *events.ValidEvent) {
		if s.Directory == nil {
			return
		}
		v, _ := e.Claim(s.Path)
		id, _ := v.Text()
		p, err := s.Directory.Load(ctx, id)
		if errors.Is(err, principal.ErrNotFound) {
			logger.Info("no principal found for token", zap.String("principal_id", id))
			return
		}
		if err != nil {
			e.Fail(err)
			return
		}
		if !p.Active {
			logger.Info("token principal is inactive", zap.String("principal_id", id))
			return
		}
		e.SetPrincipal(p)
	})
}
