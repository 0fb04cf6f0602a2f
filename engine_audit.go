package jwtauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/jwtauth/jwt"
	"github.com/google/uuid"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrNoToken        AuditErrorCode = "no_token"
	auditErrInvalidToken   AuditErrorCode = "invalid_token"
	auditErrExpired        AuditErrorCode = "expired"
	auditErrRejected       AuditErrorCode = "rejected"
	auditErrNoPrincipal    AuditErrorCode = "no_principal"
	auditErrNoKey          AuditErrorCode = "no_key"
	auditErrMisconfigured  AuditErrorCode = "misconfigured"
	auditErrRefreshUnknown AuditErrorCode = "refresh_not_found"
	auditErrOwnerInactive  AuditErrorCode = "owner_inactive"
	auditErrFloodBlocked   AuditErrorCode = "flood_blocked"
	auditErrUnavailable    AuditErrorCode = "backend_unavailable"
	auditErrInternal       AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	kind AuditKind,
	success bool,
	principalID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		ID:          uuid.NewString(),
		Timestamp:   e.now().UTC(),
		Kind:        kind,
		PrincipalID: principalID,
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var authErr *AuthenticationError
	var cfgErr *jwt.ConfigError
	switch {
	case errors.As(err, &authErr):
		switch authErr.Failure {
		case FailureNoToken:
			return auditErrNoToken
		case FailureDecode:
			if authErr.Decode == jwt.ReasonExpired {
				return auditErrExpired
			}
			return auditErrInvalidToken
		case FailureRejected:
			return auditErrRejected
		default:
			return auditErrNoPrincipal
		}
	case errors.Is(err, ErrNoKeyConfigured):
		return auditErrNoKey
	case errors.As(err, &cfgErr):
		return auditErrMisconfigured
	case errors.Is(err, ErrFloodBlocked):
		return auditErrFloodBlocked
	case errors.Is(err, ErrRefreshNotFound):
		return auditErrRefreshUnknown
	case errors.Is(err, ErrOwnerInactive):
		return auditErrOwnerInactive
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeLatency(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}
