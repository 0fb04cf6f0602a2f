package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/jwtauth/claims"
	"github.com/MrEthical07/jwtauth/events"
	"github.com/MrEthical07/jwtauth/jwt"
	"github.com/MrEthical07/jwtauth/principal"
	"github.com/MrEthical07/jwtauth/refresh"
)

// IssueFailureKind classifies access token issuance failures.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureNoKey
	IssueFailureEncode
)

// IssueResult carries a signed access token or failure metadata.
type IssueResult struct {
	Failure IssueFailureKind
	Err     error
	Token   string
	Payload *claims.Payload
}

// IssueDeps captures access token issuance dependencies.
type IssueDeps struct {
	Dispatcher *events.Dispatcher
	Encode     func(*claims.Payload) (string, error)
}

// RunIssue builds the claims of owner through GENERATE and signs them.
func RunIssue(ctx context.Context, owner principal.Principal, deps IssueDeps) IssueResult {
	generate := events.NewGenerateEvent(owner)
	deps.Dispatcher.Generate(ctx, generate)
	payload := generate.Payload()

	token, err := deps.Encode(payload)
	if err != nil {
		failure := IssueFailureEncode
		if errors.Is(err, jwt.ErrNoKeyConfigured) {
			failure = IssueFailureNoKey
		}
		return IssueResult{Failure: failure, Err: err, Payload: payload}
	}
	return IssueResult{Failure: IssueFailureNone, Token: token, Payload: payload}
}

// IssueRefreshFailureKind classifies refresh token issuance failures.
type IssueRefreshFailureKind int

const (
	IssueRefreshFailureNone IssueRefreshFailureKind = iota
	IssueRefreshFailureIdentifier
	IssueRefreshFailureStore
	IssueRefreshFailureNoKey
	IssueRefreshFailureEncode
)

// IssueRefreshResult carries the token handed to the client and the record
// it refers to.
type IssueRefreshResult struct {
	Failure IssueRefreshFailureKind
	Err     error
	Token   string
	Record  refresh.Record
	// Created is false when the single-active policy reused a record.
	Created bool
}

// IssueRefreshDeps captures refresh token issuance dependencies.
type IssueRefreshDeps struct {
	Policy        refresh.Policy
	Store         refresh.Store
	TTL           time.Duration
	Now           func() time.Time
	NewIdentifier func() (string, error)
	// Encode signs the {jti, exp} payload of PolicyJWT tokens.
	Encode func(*claims.Payload) (string, error)
}

// RunIssueRefresh creates or reuses a refresh record for owner.
func RunIssueRefresh(ctx context.Context, owner principal.Principal, deps IssueRefreshDeps) IssueRefreshResult {
	id, err := deps.NewIdentifier()
	if err != nil {
		return IssueRefreshResult{Failure: IssueRefreshFailureIdentifier, Err: err}
	}
	now := deps.Now()
	candidate := refresh.Record{
		Identifier: id,
		OwnerID:    owner.ID,
		Status:     refresh.StatusActive,
		CreatedAt:  now,
	}
	if deps.TTL > 0 {
		candidate.ExpiresAt = now.Add(deps.TTL)
	}

	switch deps.Policy {
	case refresh.PolicySingleActive:
		rec, created, err := deps.Store.EnsureActive(ctx, candidate, now)
		if err != nil {
			return IssueRefreshResult{Failure: IssueRefreshFailureStore, Err: err}
		}
		return IssueRefreshResult{Token: rec.Identifier, Record: rec, Created: created}

	case refresh.PolicyJWT:
		if err := deps.Store.Create(ctx, candidate); err != nil {
			return IssueRefreshResult{Failure: IssueRefreshFailureStore, Err: err}
		}
		payload := claims.New()
		payload.Set(claims.P("jti"), claims.String(candidate.Identifier))
		if !candidate.ExpiresAt.IsZero() {
			payload.Set(claims.P("exp"), claims.Int(candidate.ExpiresAt.Unix()))
		}
		token, err := deps.Encode(payload)
		if err != nil {
			failure := IssueRefreshFailureEncode
			if errors.Is(err, jwt.ErrNoKeyConfigured) {
				failure = IssueRefreshFailureNoKey
			}
			return IssueRefreshResult{Failure: failure, Err: err, Record: candidate}
		}
		return IssueRefreshResult{Token: token, Record: candidate, Created: true}
	}

	return IssueRefreshResult{
		Failure: IssueRefreshFailureStore,
		Err:     fmt.Errorf("unknown refresh policy %v", deps.Policy),
	}
}
