package jwt

import (
	"errors"
	"fmt"
)

// ErrNoKeyConfigured is returned when a token must be signed with an
// algorithm that has no signing key loaded.
var ErrNoKeyConfigured = errors.New("jwt: no key configured")

var (
	errUnsupportedAlgorithm = errors.New("jwt: algorithm not accepted")
	errNoVerifyKey          = errors.New("jwt: no verification key")
)

// DecodeReason classifies why a token failed to decode.
type DecodeReason uint8

const (
	ReasonUnknown DecodeReason = iota
	ReasonMalformed
	ReasonSignatureInvalid
	ReasonExpired
	ReasonNotYetValid
	ReasonUnsupportedAlgorithm
)

func (r DecodeReason) String() string {
	switch r {
	case ReasonMalformed:
		return "malformed"
	case ReasonSignatureInvalid:
		return "signature_invalid"
	case ReasonExpired:
		return "expired"
	case ReasonNotYetValid:
		return "not_yet_valid"
	case ReasonUnsupportedAlgorithm:
		return "unsupported_algorithm"
	default:
		return "unknown"
	}
}

// DecodeError reports a token that could not be decoded and verified.
//
// errors.Is matches any *DecodeError with the same Reason, so the exported
// Err* values below work as targets.
type DecodeError struct {
	Reason DecodeReason
	Err    error
}

var (
	ErrMalformed            = &DecodeError{Reason: ReasonMalformed}
	ErrSignatureInvalid     = &DecodeError{Reason: ReasonSignatureInvalid}
	ErrExpired              = &DecodeError{Reason: ReasonExpired}
	ErrNotYetValid          = &DecodeError{Reason: ReasonNotYetValid}
	ErrUnsupportedAlgorithm = &DecodeError{Reason: ReasonUnsupportedAlgorithm}
)

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "jwt: decode failed: " + e.Reason.String()
	}
	return fmt.Sprintf("jwt: decode failed: %s: %v", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Reason == e.Reason
}

// ReasonOf extracts the decode reason from err.
func ReasonOf(err error) (DecodeReason, bool) {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Reason, true
	}
	return ReasonUnknown, false
}

// ConfigReason classifies a rejected key or algorithm configuration.
type ConfigReason uint8

const (
	ConfigUnsupportedAlgorithm ConfigReason = iota + 1
	ConfigKeyTooSmall
	ConfigKeyTypeMismatch
	ConfigInvalidKey
)

func (r ConfigReason) String() string {
	switch r {
	case ConfigUnsupportedAlgorithm:
		return "unsupported algorithm"
	case ConfigKeyTooSmall:
		return "key too small"
	case ConfigKeyTypeMismatch:
		return "key type mismatch"
	case ConfigInvalidKey:
		return "invalid key"
	default:
		return "invalid configuration"
	}
}

// ConfigError reports key material or algorithm settings that were refused.
type ConfigError struct {
	Reason    ConfigReason
	Algorithm Algorithm
	Detail    string
}

func (e *ConfigError) Error() string {
	msg := "jwt: " + e.Reason.String()
	if e.Algorithm != "" {
		msg += " for " + string(e.Algorithm)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ConfigError) Is(target error) bool {
	t, ok := target.(*ConfigError)
	return ok && t.Reason == e.Reason && (t.Algorithm == "" || t.Algorithm == e.Algorithm)
}

// EncodingError reports a failure to produce a signed token.
type EncodingError struct {
	Algorithm Algorithm
	Err       error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("jwt: encode %s: %v", e.Algorithm, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }
