package internaldefs

import (
	"strconv"

	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goGuard.MetricLoginSuccess, Name: "goguard_login_success_total", Help: "Logins that issued a session."},
	{ID: goGuard.MetricLoginFailure, Name: "goguard_login_failure_total", Help: "Failed login attempts."},
	{ID: goGuard.MetricSessionCapExceeded, Name: "goguard_session_cap_exceeded_total", Help: "Logins refused because the user hit the active session cap."},
	{ID: goGuard.MetricChallengeRequired, Name: "goguard_challenge_required_total", Help: "Logins that required a step-up challenge."},
	{ID: goGuard.MetricChallengeIssued, Name: "goguard_challenge_issued_total", Help: "One-time codes issued."},
	{ID: goGuard.MetricChallengeSuccess, Name: "goguard_challenge_success_total", Help: "Challenges verified."},
	{ID: goGuard.MetricChallengeFailure, Name: "goguard_challenge_failure_total", Help: "Failed challenge verifications."},
	{ID: goGuard.MetricChallengeIntercepted, Name: "goguard_challenge_intercepted_total", Help: "Challenges burned because another device presented the code."},
	{ID: goGuard.MetricAuthAllowed, Name: "goguard_auth_allowed_total", Help: "Requests admitted by the authenticator."},
	{ID: goGuard.MetricAuthRejected, Name: "goguard_auth_rejected_total", Help: "Requests rejected by the authenticator."},
	{ID: goGuard.MetricHijackDetected, Name: "goguard_hijack_detected_total", Help: "Sessions revoked after a device fingerprint mismatch."},
	{ID: goGuard.MetricImpossibleTravel, Name: "goguard_impossible_travel_total", Help: "Requests flagged for impossible travel."},
	{ID: goGuard.MetricLegacyMigrated, Name: "goguard_legacy_migrated_total", Help: "Legacy credentials upgraded to tracked sessions."},
	{ID: goGuard.MetricLegacyReplayRejected, Name: "goguard_legacy_replay_rejected_total", Help: "Legacy credentials presented again after migration."},
	{ID: goGuard.MetricRefreshSuccess, Name: "goguard_refresh_success_total", Help: "Access tokens reissued from a refresh token."},
	{ID: goGuard.MetricRefreshFailure, Name: "goguard_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: goGuard.MetricSessionCreated, Name: "goguard_session_created_total", Help: "Sessions created."},
	{ID: goGuard.MetricLogout, Name: "goguard_logout_total", Help: "Single-session logouts."},
	{ID: goGuard.MetricLogoutAll, Name: "goguard_logout_all_total", Help: "Logout-all operations."},
	{ID: goGuard.MetricCacheError, Name: "goguard_cache_error_total", Help: "Session cache failures absorbed by the durable store."},
	{ID: goGuard.MetricRiskCounterError, Name: "goguard_risk_counter_error_total", Help: "Velocity counter failures; the signal was skipped."},
	{ID: goGuard.MetricNotificationDropped, Name: "goguard_notification_dropped_total", Help: "Notifications dropped because the queue was full."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricValidateLatency, Name: "goguard_authenticate_latency_seconds", Help: "Request authentication latency."},
}

// AuditDroppedName and AuditDroppedHelp describe the dispatcher drop counter.
const (
	AuditDroppedName = "goguard_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped due to dispatcher backpressure."
)

// BucketCount is the number of histogram buckets, including +Inf.
const BucketCount = len(goGuard.HistogramBounds) + 1

// UpperBounds returns the finite bucket bounds in seconds.
func UpperBounds() []float64 {
	out := make([]float64, len(goGuard.HistogramBounds))
	for i, d := range goGuard.HistogramBounds {
		out[i] = d.Seconds()
	}
	return out
}

// BucketLabels returns the "le" label of each bucket, "+Inf" last.
func BucketLabels() []string {
	bounds := UpperBounds()
	out := make([]string, 0, len(bounds)+1)
	for _, b := range bounds {
		out = append(out, strconv.FormatFloat(b, 'g', -1, 64))
	}
	return append(out, "+Inf")
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
