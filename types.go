package jwtauth

import (
	"io"

	internalaudit "github.com/MrEthical07/jwtauth/internal/audit"
	"github.com/MrEthical07/jwtauth/principal"
)

// Principal is the identity a token resolves to.
type Principal = principal.Principal

// TokenPair is the result of a successful refresh redemption. RefreshToken
// is empty when refresh re-issue failed after the access token was signed.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditKind names the lifecycle step an [AuditEvent] records.
type AuditKind = internalaudit.Kind

const (
	AuditTokenIssued      = internalaudit.KindTokenIssued
	AuditTokenIssueFailed = internalaudit.KindTokenIssueFailed
	AuditTokenRejected    = internalaudit.KindTokenRejected
	AuditRefreshIssued    = internalaudit.KindRefreshIssued
	AuditRefreshRedeemed  = internalaudit.KindRefreshRedeemed
	AuditRefreshFailed    = internalaudit.KindRefreshFailed
	AuditFloodBlocked     = internalaudit.KindFloodBlocked
	AuditKeysReloaded     = internalaudit.KindKeysReloaded
	AuditKeysReloadFailed = internalaudit.KindKeysReloadFailed
)

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
