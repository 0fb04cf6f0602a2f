package events

import (
	"github.com/MrEthical07/jwtauth/claims"
	"github.com/MrEthical07/jwtauth/principal"
)

// Stage names a point in the token lifecycle at which subscribers run.
type Stage uint8

const (
	// StageGenerate builds the claims of a token about to be signed.
	StageGenerate Stage = iota + 1
	// StageValidate runs negative assertions against verified claims.
	StageValidate
	// StageValid resolves the principal of an accepted token.
	StageValid
)

func (s Stage) String() string {
	switch s {
	case StageGenerate:
		return "generate"
	case StageValidate:
		return "validate"
	case StageValid:
		return "valid"
	default:
		return "unknown"
	}
}

// GenerateEvent carries the payload under construction for one issuance.
type GenerateEvent struct {
	owner   principal.Principal
	payload *claims.Payload
}

// NewGenerateEvent starts an empty payload for owner.
func NewGenerateEvent(owner principal.Principal) *GenerateEvent {
	return &GenerateEvent{owner: owner, payload: claims.New()}
}

// Principal returns the principal the token is issued for.
func (e *GenerateEvent) Principal() principal.Principal { return e.owner }

// AddClaim sets value at path, creating intermediate maps.
func (e *GenerateEvent) AddClaim(path claims.Path, value claims.Value) {
	e.payload.Set(path, value)
}

// RemoveClaim deletes the claim at path if present.
func (e *GenerateEvent) RemoveClaim(path claims.Path) {
	e.payload.Unset(path)
}

// Claim reads a claim added by an earlier subscriber.
func (e *GenerateEvent) Claim(path claims.Path) (claims.Value, bool) {
	return e.payload.Get(path)
}

// Payload returns a copy of the payload built so far.
func (e *GenerateEvent) Payload() *claims.Payload { return e.payload.Clone() }

// ValidateEvent carries verified claims through the VALIDATE stage.
type ValidateEvent struct {
	token         string
	payload       *claims.Payload
	invalid       bool
	reason        string
	invalidatedBy string
}

// NewValidateEvent wraps a decoded token.
func NewValidateEvent(token string, payload *claims.Payload) *ValidateEvent {
	return &ValidateEvent{token: token, payload: payload}
}

// Token returns the raw token text.
func (e *ValidateEvent) Token() string { return e.token }

// Claim reads a verified claim.
func (e *ValidateEvent) Claim(path claims.Path) (claims.Value, bool) {
	return e.payload.Get(path)
}

// Payload returns a copy of the verified claims.
func (e *ValidateEvent) Payload() *claims.Payload { return e.payload.Clone() }

// Invalidate rejects the token with a human-readable reason. Only the first
// call has effect; the dispatcher runs no further VALIDATE subscribers.
func (e *ValidateEvent) Invalidate(reason string) {
	if e.invalid {
		return
	}
	e.invalid = true
	e.reason = reason
}

// IsValid reports whether no subscriber has invalidated the token.
func (e *ValidateEvent) IsValid() bool { return !e.invalid }

// Reason returns the invalidation reason, or "" while valid.
func (e *ValidateEvent) Reason() string { return e.reason }

// InvalidatedBy names the subscriber that rejected the token.
func (e *ValidateEvent) InvalidatedBy() string { return e.invalidatedBy }

// ValidEvent carries an accepted token through the VALID stage.
type ValidEvent struct {
	token     string
	payload   *claims.Payload
	principal principal.Principal
	err       error
}

// NewValidEvent wraps a token that passed VALIDATE. The principal starts
// anonymous.
func NewValidEvent(token string, payload *claims.Payload) *ValidEvent {
	return &ValidEvent{token: token, payload: payload, principal: principal.Anonymous()}
}

// Token returns the raw token text.
func (e *ValidEvent) Token() string { return e.token }

// Claim reads a verified claim.
func (e *ValidEvent) Claim(path claims.Path) (claims.Value, bool) {
	return e.payload.Get(path)
}

// Payload returns a copy of the verified claims.
func (e *ValidEvent) Payload() *claims.Payload { return e.payload.Clone() }

// SetPrincipal records the authenticated principal.
func (e *ValidEvent) SetPrincipal(p principal.Principal) { e.principal = p }

// Principal returns the resolved principal, anonymous if none was set.
func (e *ValidEvent) Principal() principal.Principal { return e.principal }

// Fail records an internal error such as a directory outage. It does not stop
// later subscribers. The first error wins.
func (e *ValidEvent) Fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// Err returns the error recorded by Fail.
func (e *ValidEvent) Err() error { return e.err }
