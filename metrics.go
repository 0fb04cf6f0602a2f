package jwtauth

import internalmetrics "github.com/MrEthical07/jwtauth/internal/metrics"

// MetricID identifies a counter or histogram in the in-process metrics
// system.
type MetricID = internalmetrics.MetricID

const (
	MetricAuthenticateSuccess  = internalmetrics.MetricAuthenticateSuccess
	MetricAuthenticateFailure  = internalmetrics.MetricAuthenticateFailure
	MetricAuthenticateNoToken  = internalmetrics.MetricAuthenticateNoToken
	MetricDecodeFailure        = internalmetrics.MetricDecodeFailure
	MetricValidationRejected   = internalmetrics.MetricValidationRejected
	MetricNoPrincipal          = internalmetrics.MetricNoPrincipal
	MetricIssueSuccess         = internalmetrics.MetricIssueSuccess
	MetricIssueNoKey           = internalmetrics.MetricIssueNoKey
	MetricIssueFailure         = internalmetrics.MetricIssueFailure
	MetricRefreshIssued        = internalmetrics.MetricRefreshIssued
	MetricRefreshReused        = internalmetrics.MetricRefreshReused
	MetricRefreshRedeemed      = internalmetrics.MetricRefreshRedeemed
	MetricRefreshFailure       = internalmetrics.MetricRefreshFailure
	MetricRefreshOwnerInactive = internalmetrics.MetricRefreshOwnerInactive
	MetricFloodBlocked         = internalmetrics.MetricFloodBlocked
	MetricKeyReload            = internalmetrics.MetricKeyReload
	MetricKeyReloadFailure     = internalmetrics.MetricKeyReloadFailure
	// MetricAuthenticateLatency only carries a histogram.
	MetricAuthenticateLatency = internalmetrics.MetricAuthenticateLatency
)

// Metrics holds atomic counters and the optional latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When Enabled is false, all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
