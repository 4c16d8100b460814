package internaldefs

import (
	goToken "github.com/MrEthical07/goToken"
)

// Sample binds one engine counter to the label value it is exported under.
type Sample struct {
	ID    goToken.MetricID
	Value string
}

// Family is one exported counter. Engine counters that record outcomes of the same
// operation share a family and differ by the value of Label.
type Family struct {
	Name    string
	Help    string
	Label   string
	Samples []Sample
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   goToken.MetricID
	Name string
	Help string
}

// CounterFamilies lists every exported counter family in render order.
var CounterFamilies = []Family{
	{
		Name:  "gotoken_issue_total",
		Help:  "Token pair issuance by result.",
		Label: "result",
		Samples: []Sample{
			{goToken.MetricIssueSuccess, "success"},
			{goToken.MetricIssueFailure, "failure"},
		},
	},
	{
		Name:  "gotoken_refresh_total",
		Help:  "Refresh rotations by result.",
		Label: "result",
		Samples: []Sample{
			{goToken.MetricRefreshSuccess, "success"},
			{goToken.MetricRefreshFailure, "failure"},
		},
	},
	{
		Name:  "gotoken_validations_total",
		Help:  "Token validations by outcome.",
		Label: "outcome",
		Samples: []Sample{
			{goToken.MetricValidateSuccess, "accepted"},
			{goToken.MetricValidateMissingToken, "missing_token"},
			{goToken.MetricValidateRecordMissing, "record_missing"},
			{goToken.MetricValidateTypeMismatch, "type_mismatch"},
			{goToken.MetricValidateRevoked, "revoked"},
			{goToken.MetricValidateExpired, "expired"},
			{goToken.MetricValidateNotYetValid, "not_yet_valid"},
			{goToken.MetricValidateViolation, "violation"},
		},
	},
	{
		Name:  "gotoken_revocations_total",
		Help:  "Blacklist writes by trigger.",
		Label: "trigger",
		Samples: []Sample{
			{goToken.MetricRevoke, "explicit"},
			{goToken.MetricRevokeGroup, "group"},
			{goToken.MetricAutoRevoke, "expired"},
		},
	},
	{
		Name:  "gotoken_authentications_total",
		Help:  "Subject resolution by result.",
		Label: "result",
		Samples: []Sample{
			{goToken.MetricAuthenticateSuccess, "success"},
			{goToken.MetricAuthenticateFailure, "failure"},
		},
	},
	{
		Name:    "gotoken_store_errors_total",
		Help:    "Token store failures surfaced to callers.",
		Samples: []Sample{{goToken.MetricStoreError, ""}},
	},
}

// LatencyHistogram is the only exported histogram.
var LatencyHistogram = HistogramDef{
	ID:   goToken.MetricValidateLatency,
	Name: "gotoken_validate_latency_seconds",
	Help: "Time spent validating a token against its record.",
}

// AuditDroppedName names the counter of audit events lost to a full buffer.
const AuditDroppedName = "gotoken_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."

// HistogramBounds are the upper bounds, in seconds, of the latency buckets.
var HistogramBounds = [8]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// CumulativeBuckets turns raw per-bucket counts into running totals. Missing buckets
// count as zero.
func CumulativeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
