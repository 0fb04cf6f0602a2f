package flows

import (
	"context"

	"github.com/MrEthical07/jwtauth/claims"
	"github.com/MrEthical07/jwtauth/events"
	"github.com/MrEthical07/jwtauth/jwt"
	"github.com/MrEthical07/jwtauth/principal"
)

// AuthFailureKind classifies authentication failures for root-level mapping.
type AuthFailureKind int

const (
	AuthFailureNone AuthFailureKind = iota
	AuthFailureNoToken
	AuthFailureDecode
	AuthFailureRejected
	AuthFailureNoPrincipal
	AuthFailureInternal
)

// AuthenticateResult carries the resolved principal or failure metadata.
type AuthenticateResult struct {
	Failure      AuthFailureKind
	Err          error
	DecodeReason jwt.DecodeReason
	// Reason is the invalidation message of the rejecting subscriber.
	Reason     string
	RejectedBy string
	Payload    *claims.Payload
	Principal  principal.Principal
}

// AuthenticateDeps captures authentication dependencies.
type AuthenticateDeps struct {
	Decode     func(token string) (*claims.Payload, error)
	Dispatcher *events.Dispatcher
}

// RunAuthenticate drives decode, VALIDATE and VALID for one bearer token.
func RunAuthenticate(ctx context.Context, token string, deps AuthenticateDeps) AuthenticateResult {
	if token == "" {
		return AuthenticateResult{Failure: AuthFailureNoToken}
	}

	payload, err := deps.Decode(token)
	if err != nil {
		reason, _ := jwt.ReasonOf(err)
		return AuthenticateResult{
			Failure:      AuthFailureDecode,
			Err:          err,
			DecodeReason: reason,
		}
	}

	validate := events.NewValidateEvent(token, payload)
	deps.Dispatcher.Validate(ctx, validate)
	if !validate.IsValid() {
		return AuthenticateResult{
			Failure:    AuthFailureRejected,
			Reason:     validate.Reason(),
			RejectedBy: validate.InvalidatedBy(),
			Payload:    payload,
		}
	}

	valid := events.NewValidEvent(token, payload)
	deps.Dispatcher.Valid(ctx, valid)
	if err := valid.Err(); err != nil {
		return AuthenticateResult{
			Failure: AuthFailureInternal,
			Err:     err,
			Payload: payload,
		}
	}
	p := valid.Principal()
	if p.IsAnonymous() {
		return AuthenticateResult{
			Failure: AuthFailureNoPrincipal,
			Payload: payload,
		}
	}

	return AuthenticateResult{
		Failure:   AuthFailureNone,
		Payload:   payload,
		Principal: p,
	}
}
