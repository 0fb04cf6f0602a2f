package internaldefs

import (
	"github.com/MrEthical07/jwtauth"
)

// CounterDef names one jwtauth counter for exporters. Name is the flat
// Prometheus name; Operation and Outcome place the counter on a per-operation
// instrument with an outcome attribute.
type CounterDef struct {
	ID        jwtauth.MetricID
	Name      string
	Help      string
	Operation Operation
	Outcome   string
}

// Operation groups the counters of one engine operation.
type Operation string

const (
	OpAuthenticate Operation = "authenticate"
	OpIssue        Operation = "issue"
	OpRefresh      Operation = "refresh"
	OpKeys         Operation = "keys"
)

// Operations lists every operation in a stable order with its instrument
// description.
var Operations = []struct {
	Op   Operation
	Help string
}{
	{OpAuthenticate, "Bearer authentication attempts by outcome."},
	{OpIssue, "Access token signing attempts by outcome."},
	{OpRefresh, "Refresh token issuance and redemption by outcome."},
	{OpKeys, "Key reloads by outcome."},
}

// HistogramDef names one jwtauth histogram for exporters. InstrumentName is
// the dotted base name used by OpenTelemetry.
type HistogramDef struct {
	ID             jwtauth.MetricID
	Name           string
	InstrumentName string
	Help           string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: jwtauth.MetricAuthenticateSuccess, Name: "jwtauth_authenticate_success_total", Help: "Requests authenticated from a bearer token.", Operation: OpAuthenticate, Outcome: "success"},
	{ID: jwtauth.MetricAuthenticateFailure, Name: "jwtauth_authenticate_failure_total", Help: "Requests whose bearer token was rejected.", Operation: OpAuthenticate, Outcome: "failure"},
	{ID: jwtauth.MetricAuthenticateNoToken, Name: "jwtauth_authenticate_no_token_total", Help: "Requests without a bearer token.", Operation: OpAuthenticate, Outcome: "no_token"},
	{ID: jwtauth.MetricDecodeFailure, Name: "jwtauth_decode_failure_total", Help: "Tokens that failed signature or time checks.", Operation: OpAuthenticate, Outcome: "decode_failure"},
	{ID: jwtauth.MetricValidationRejected, Name: "jwtauth_validation_rejected_total", Help: "Tokens invalidated by a VALIDATE subscriber.", Operation: OpAuthenticate, Outcome: "rejected"},
	{ID: jwtauth.MetricNoPrincipal, Name: "jwtauth_no_principal_total", Help: "Valid tokens that resolved no active principal.", Operation: OpAuthenticate, Outcome: "no_principal"},
	{ID: jwtauth.MetricIssueSuccess, Name: "jwtauth_issue_success_total", Help: "Access tokens issued.", Operation: OpIssue, Outcome: "success"},
	{ID: jwtauth.MetricIssueNoKey, Name: "jwtauth_issue_no_key_total", Help: "Issue attempts without a signing key.", Operation: OpIssue, Outcome: "no_key"},
	{ID: jwtauth.MetricIssueFailure, Name: "jwtauth_issue_failure_total", Help: "Issue attempts that failed to sign.", Operation: OpIssue, Outcome: "failure"},
	{ID: jwtauth.MetricRefreshIssued, Name: "jwtauth_refresh_issued_total", Help: "Refresh records created.", Operation: OpRefresh, Outcome: "issued"},
	{ID: jwtauth.MetricRefreshReused, Name: "jwtauth_refresh_reused_total", Help: "Refresh records handed out again under the single active policy.", Operation: OpRefresh, Outcome: "reused"},
	{ID: jwtauth.MetricRefreshRedeemed, Name: "jwtauth_refresh_redeemed_total", Help: "Refresh tokens exchanged for an access token.", Operation: OpRefresh, Outcome: "redeemed"},
	{ID: jwtauth.MetricRefreshFailure, Name: "jwtauth_refresh_failure_total", Help: "Refresh redemptions that failed.", Operation: OpRefresh, Outcome: "failure"},
	{ID: jwtauth.MetricRefreshOwnerInactive, Name: "jwtauth_refresh_owner_inactive_total", Help: "Refresh redemptions refused for an inactive owner.", Operation: OpRefresh, Outcome: "owner_inactive"},
	{ID: jwtauth.MetricFloodBlocked, Name: "jwtauth_flood_blocked_total", Help: "Refresh redemptions blocked by flood control.", Operation: OpRefresh, Outcome: "flood_blocked"},
	{ID: jwtauth.MetricKeyReload, Name: "jwtauth_key_reload_total", Help: "Successful key reloads.", Operation: OpKeys, Outcome: "reloaded"},
	{ID: jwtauth.MetricKeyReloadFailure, Name: "jwtauth_key_reload_failure_total", Help: "Key reloads that kept the previous keys.", Operation: OpKeys, Outcome: "failure"},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{
		ID:             jwtauth.MetricAuthenticateLatency,
		Name:           "jwtauth_authenticate_latency_seconds",
		InstrumentName: "jwtauth.authenticate.latency",
		Help:           "Bearer authentication latency.",
	},
}

// AuditDroppedName is the counter for audit events dropped under
// backpressure. Exporters that support attributes split it by event kind
// under AuditKindAttr.
const (
	AuditDroppedName = "jwtauth_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
	AuditKindAttr    = "kind"

	AuditDroppedInstrument = "jwtauth.audit.dropped"
)

// InstrumentName is the dotted OpenTelemetry name of the counter for op.
func InstrumentName(op Operation) string {
	return "jwtauth." + string(op)
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// bucket of a snapshot is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBounds is the text form of each bucket bound, +Inf included.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed eight bucket array, padding with
// zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
