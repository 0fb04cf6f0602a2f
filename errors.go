package jwtauth

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/jwtauth/jwt"
)

var (
	// ErrUnauthenticated matches every *AuthenticationError.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrValidationRejected matches authentication errors raised by a
	// VALIDATE subscriber.
	ErrValidationRejected = errors.New("token rejected by validation")
	// ErrNoKeyConfigured is returned when the active algorithm has no
	// signing key.
	ErrNoKeyConfigured = jwt.ErrNoKeyConfigured
	// ErrRefreshNotFound is returned when a presented refresh token has no
	// active, unexpired record.
	ErrRefreshNotFound = errors.New("refresh token not found")
	// ErrOwnerInactive is returned when the owner of a refresh token is
	// missing or blocked.
	ErrOwnerInactive = errors.New("refresh token owner inactive")
	// ErrFloodBlocked is returned when a client exceeded the failed refresh
	// limit.
	ErrFloodBlocked = errors.New("too many failed refresh attempts")
	// ErrRefreshDisabled is returned by refresh operations when
	// Refresh.Enabled is false.
	ErrRefreshDisabled = errors.New("refresh tokens disabled")
	// ErrBackendUnavailable wraps refresh store and flood control failures.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrAnonymousPrincipal is returned when a refresh token is requested
	// for the anonymous principal.
	ErrAnonymousPrincipal = errors.New("principal is anonymous")
	// ErrEngineNotReady is returned by methods called on a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// AuthFailure says at which step authentication stopped.
type AuthFailure uint8

const (
	FailureNoToken AuthFailure = iota + 1
	FailureDecode
	FailureRejected
	FailureNoPrincipal
)

func (f AuthFailure) String() string {
	switch f {
	case FailureNoToken:
		return "no_token"
	case FailureDecode:
		return "decode"
	case FailureRejected:
		return "rejected"
	case FailureNoPrincipal:
		return "no_principal"
	default:
		return "unknown"
	}
}

// AuthenticationError is returned by Authenticate for every rejected
// request. Decode carries the transcoder reason for FailureDecode, Reason
// the invalidation message for FailureRejected.
type AuthenticationError struct {
	Failure AuthFailure
	Decode  jwt.DecodeReason
	Reason  string
	Err     error
}

func (e *AuthenticationError) Error() string {
	switch e.Failure {
	case FailureDecode:
		return "unauthenticated: " + e.Decode.String()
	case FailureRejected:
		return "unauthenticated: rejected: " + e.Reason
	default:
		return "unauthenticated: " + e.Failure.String()
	}
}

func (e *AuthenticationError) Is(target error) bool {
	if target == ErrUnauthenticated {
		return true
	}
	return target == ErrValidationRejected && e.Failure == FailureRejected
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// IssuanceError is returned when a token could not be signed.
type IssuanceError struct {
	Err error
}

func (e *IssuanceError) Error() string {
	return "token issuance failed: " + e.Err.Error()
}

func (e *IssuanceError) Unwrap() error { return e.Err }

// StatusCode maps err to the HTTP status a transport should answer with.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrFloodBlocked):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrRefreshNotFound), errors.Is(err, ErrOwnerInactive):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrAnonymousPrincipal):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRefreshDisabled):
		return http.StatusNotFound
	case errors.Is(err, ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns a message safe to show the client. Decode and
// validation failures collapse into one generic message; configuration
// errors keep their detail since they are operator-facing.
func PublicMessage(err error) string {
	var cfgErr *jwt.ConfigError
	var authErr *AuthenticationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFloodBlocked):
		return "Too many failed refresh attempts. Try again later."
	case errors.Is(err, ErrRefreshNotFound):
		return "Refresh token not found."
	case errors.Is(err, ErrOwnerInactive):
		return "Access denied."
	case errors.As(err, &authErr):
		if authErr.Failure == FailureNoToken {
			return "No bearer token was provided."
		}
		return "Invalid token."
	case errors.Is(err, ErrAnonymousPrincipal):
		return "Authentication required."
	case errors.Is(err, ErrRefreshDisabled):
		return "Refresh tokens are disabled."
	case errors.Is(err, ErrNoKeyConfigured):
		return "Please set a signing key for the active JWT algorithm."
	case errors.As(err, &cfgErr):
		return cfgErr.Error()
	case errors.Is(err, ErrBackendUnavailable):
		return "Service temporarily unavailable."
	default:
		return "Internal error."
	}
}
