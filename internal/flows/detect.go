package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/risk"
	"github.com/MrEthical07/goGuard/session"
)

// DetectVerdict classifies the per-request comparison.
type DetectVerdict int

const (
	DetectClean DetectVerdict = iota
	// DetectHijack means the device fingerprint changed; the session is revoked.
	DetectHijack
	// DetectTravel means the session moved implausibly fast; the request is
	// still allowed.
	DetectTravel
)

// DetectResult is the detector outcome. Stage names the check that decided
// it, or that failed when an error is returned.
type DetectResult struct {
	Verdict DetectVerdict
	Stage   AuthStage
	Travel  *risk.Travel
}

// DetectMetrics carries metric IDs needed by the detector.
type DetectMetrics struct {
	Hijack           int
	ImpossibleTravel int
}

// DetectEvents carries audit event names used by the detector.
type DetectEvents struct {
	Hijack           string
	ImpossibleTravel string
}

// DetectDeps captures detector dependencies.
type DetectDeps struct {
	ImpossibleTravelKmh float64
	TravelPenalty       int
	Now                 func() time.Time

	FingerprintMatches func(stored, current string) bool
	RevokeSession      func(ctx context.Context, sessionID string) error
	MarkSuspicious     func(ctx context.Context, sessionID string) error
	IncrementRiskScore func(ctx context.Context, userID string, delta int) error

	NotifyHijack func(ctx context.Context, snap *session.Snapshot, meta ClientMeta)
	NotifyTravel func(ctx context.Context, userID string, travel risk.Travel)

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics DetectMetrics
	Events  DetectEvents
	// HijackError is recorded on the hijack audit event.
	HijackError error
}

// RunDetect compares a validated snapshot against the current request. A
// fingerprint mismatch is a hard failure; impossible travel is surfaced but
// never blocks.
func RunDetect(ctx context.Context, snap *session.Snapshot, meta ClientMeta, deps DetectDeps) (DetectResult, error) {
	deps.Now = nowOrDefault(deps.Now)
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.FingerprintMatches == nil || deps.RevokeSession == nil ||
		deps.MarkSuspicious == nil || deps.IncrementRiskScore == nil {
		return DetectResult{}, errNotReady
	}

	if !deps.FingerprintMatches(snap.Fingerprint, meta.Fingerprint) {
		if err := deps.RevokeSession(ctx, snap.SessionID); err != nil {
			return DetectResult{Stage: StageFingerprintCheck}, err
		}
		deps.MetricInc(deps.Metrics.Hijack)
		deps.EmitAudit(ctx, deps.Events.Hijack, false, snap.UserID, snap.SessionID, deps.HijackError, func() map[string]string {
			return map[string]string{
				"ip":         meta.IP,
				"user_agent": meta.UserAgent,
			}
		})
		if deps.NotifyHijack != nil {
			deps.NotifyHijack(ctx, snap, meta)
		}
		return DetectResult{Verdict: DetectHijack, Stage: StageFingerprintCheck}, nil
	}

	if !snap.IPChanged {
		return DetectResult{Verdict: DetectClean, Stage: StageFingerprintCheck}, nil
	}

	travel := risk.MeasureTravel(snap.Location, snap.LastActiveAt, snap.CurrentLocation, deps.Now())
	if !travel.Impossible(deps.ImpossibleTravelKmh) {
		return DetectResult{Verdict: DetectClean, Stage: StageTravelCheck}, nil
	}

	if deps.TravelPenalty > 0 {
		if err := deps.IncrementRiskScore(ctx, snap.UserID, deps.TravelPenalty); err != nil {
			return DetectResult{Stage: StageTravelCheck}, err
		}
	}
	if err := deps.MarkSuspicious(ctx, snap.SessionID); err != nil {
		return DetectResult{Stage: StageTravelCheck}, err
	}
	deps.MetricInc(deps.Metrics.ImpossibleTravel)
	deps.EmitAudit(ctx, deps.Events.ImpossibleTravel, true, snap.UserID, snap.SessionID, nil, func() map[string]string {
		return map[string]string{
			"from":      travel.From.Country,
			"to":        travel.To.Country,
			"speed_kmh": itoa(int(travel.SpeedKmh)),
		}
	})
	if deps.NotifyTravel != nil {
		deps.NotifyTravel(ctx, snap.UserID, travel)
	}
	return DetectResult{Verdict: DetectTravel, Stage: StageTravelCheck, Travel: &travel}, nil
}
