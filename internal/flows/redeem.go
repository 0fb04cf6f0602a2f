package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/jwtauth/claims"
	"github.com/MrEthical07/jwtauth/internal/rate"
	"github.com/MrEthical07/jwtauth/principal"
	"github.com/MrEthical07/jwtauth/refresh"
)

// RedeemFailureKind classifies refresh redemption failures.
type RedeemFailureKind int

const (
	RedeemFailureNone RedeemFailureKind = iota
	RedeemFailureFloodBlocked
	RedeemFailureNotFound
	RedeemFailureOwnerInactive
	RedeemFailureBackend
	RedeemFailureIssue
)

// RedeemResult carries the re-issued tokens or failure metadata.
type RedeemResult struct {
	Failure      RedeemFailureKind
	Err          error
	Record       refresh.Record
	Owner        principal.Principal
	AccessToken  string
	RefreshToken string
	// Rotated reports that the presented record was revoked.
	Rotated bool
	// FloodHit reports that a failure was registered with flood control.
	FloodHit bool
}

// FloodPolicy configures the per-client limit on failed redemptions.
type FloodPolicy struct {
	Enabled bool
	Event   string
	Limit   int
	Window  time.Duration
}

// RedeemDeps captures refresh redemption dependencies.
type RedeemDeps struct {
	Policy refresh.Policy
	Store  refresh.Store
	// Decode verifies PolicyJWT refresh tokens.
	Decode    func(string) (*claims.Payload, error)
	Directory principal.Directory
	Flood     rate.Flood
	FloodCfg  FloodPolicy
	Now       func() time.Time
	Rotate    bool
	// IssueAccess signs an access token for the record owner.
	IssueAccess func(context.Context, principal.Principal) (string, error)
	// IssueRefresh hands the owner a refresh token for the next redemption.
	// Nil skips it.
	IssueRefresh func(context.Context, principal.Principal) (string, error)
	Warn         func(string, ...any)
}

// RunRedeem checks flood control, resolves the presented refresh token to an
// active owner and issues new tokens on that owner's behalf. Every failure
// registers a flood hit for clientID.
func RunRedeem(ctx context.Context, presented, clientID string, deps RedeemDeps) RedeemResult {
	if clientID == "" {
		clientID = "unknown"
	}
	res := runRedeem(ctx, presented, clientID, deps)
	if res.Failure != RedeemFailureNone && deps.FloodCfg.Enabled && deps.Flood != nil {
		if err := deps.Flood.Register(ctx, deps.FloodCfg.Event, deps.FloodCfg.Window, clientID); err != nil {
			if deps.Warn != nil {
				deps.Warn("jwtauth: flood register failed", "error", err)
			}
		} else {
			res.FloodHit = true
		}
	}
	return res
}

func runRedeem(ctx context.Context, presented, clientID string, deps RedeemDeps) RedeemResult {
	if deps.FloodCfg.Enabled && deps.Flood != nil {
		allowed, err := deps.Flood.IsAllowed(ctx, deps.FloodCfg.Event, deps.FloodCfg.Limit, deps.FloodCfg.Window, clientID)
		if err != nil {
			return RedeemResult{Failure: RedeemFailureBackend, Err: err}
		}
		if !allowed {
			return RedeemResult{Failure: RedeemFailureFloodBlocked}
		}
	}

	id, err := resolveIdentifier(presented, deps)
	if err != nil {
		return RedeemResult{Failure: RedeemFailureNotFound, Err: err}
	}

	rec, err := deps.Store.Lookup(ctx, id)
	if err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			return RedeemResult{Failure: RedeemFailureNotFound, Err: err}
		}
		return RedeemResult{Failure: RedeemFailureBackend, Err: err}
	}
	if !rec.Usable(deps.Now()) {
		return RedeemResult{Failure: RedeemFailureNotFound, Record: rec}
	}

	owner, err := deps.Directory.Load(ctx, rec.OwnerID)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return RedeemResult{Failure: RedeemFailureOwnerInactive, Err: err, Record: rec}
		}
		return RedeemResult{Failure: RedeemFailureBackend, Err: err, Record: rec}
	}
	if !owner.Active {
		return RedeemResult{Failure: RedeemFailureOwnerInactive, Record: rec, Owner: owner}
	}

	// Sign before revoking so a signing failure leaves the record usable.
	access, err := deps.IssueAccess(ctx, owner)
	if err != nil {
		return RedeemResult{Failure: RedeemFailureIssue, Err: err, Record: rec, Owner: owner}
	}

	rotated := false
	if deps.Rotate {
		won, err := deps.Store.Revoke(ctx, rec.Identifier)
		if err != nil && !errors.Is(err, refresh.ErrNotFound) {
			return RedeemResult{Failure: RedeemFailureBackend, Err: err, Record: rec, Owner: owner}
		}
		if !won {
			// a concurrent redemption consumed the record first; access is
			// dropped unreturned
			return RedeemResult{Failure: RedeemFailureNotFound, Err: err, Record: rec, Owner: owner}
		}
		rotated = true
	}

	res := RedeemResult{
		Failure:     RedeemFailureNone,
		Record:      rec,
		Owner:       owner,
		AccessToken: access,
		Rotated:     rotated,
	}
	if deps.IssueRefresh != nil {
		next, err := deps.IssueRefresh(ctx, owner)
		if err != nil {
			// the access token is still valid; the client keeps its old
			// refresh token unless it was rotated away
			if deps.Warn != nil {
				deps.Warn("jwtauth: refresh re-issue failed", "owner", owner.ID, "error", err)
			}
		} else {
			res.RefreshToken = next
		}
	}
	return res
}

var errNoJTI = errors.New("refresh token has no jti claim")

func resolveIdentifier(presented string, deps RedeemDeps) (string, error) {
	if presented == "" {
		return "", refresh.ErrNotFound
	}
	if deps.Policy != refresh.PolicyJWT {
		return presented, nil
	}
	payload, err := deps.Decode(presented)
	if err != nil {
		return "", err
	}
	v, ok := payload.Get(claims.P("jti"))
	if !ok {
		return "", errNoJTI
	}
	jti, ok := v.AsString()
	if !ok || jti == "" {
		return "", errNoJTI
	}
	return jti, nil
}
