package flows

import (
	"context"
	"errors"
	"time"
)

// ChallengeRecord is a flow-local view of a stored challenge.
type ChallengeRecord struct {
	CodeHash    [32]byte
	IP          string
	Fingerprint string
	IssuedAt    time.Time
}

// ChallengeMetrics carries metric IDs needed by challenge flows.
type ChallengeMetrics struct {
	Issued              int
	Success             int
	Failure             int
	FingerprintMismatch int
}

// ChallengeEvents carries audit event names used by challenge flows.
type ChallengeEvents struct {
	Issued  string
	Success string
	Failure string
}

// ChallengeErrors carries host-level sentinel errors used by challenge flows.
type ChallengeErrors struct {
	EngineNotReady      error
	NotFoundOrExpired   error
	IPMismatch          error
	FingerprintMismatch error
	Incorrect           error
}

// ChallengeDeps captures issue/verify dependencies.
type ChallengeDeps struct {
	CodeDigits  int
	TTL         time.Duration
	MaxAttempts int
	Now         func() time.Time

	NewCode            func(digits int) (string, error)
	HashCode           func(string) [32]byte
	FingerprintMatches func(stored, current string) bool

	Save    func(ctx context.Context, identity string, record ChallengeRecord, ttl time.Duration) error
	Get     func(ctx context.Context, identity string) (*ChallengeRecord, error)
	Delete  func(ctx context.Context, identity string) error
	Consume func(ctx context.Context, identity string, issuedAt time.Time, hash [32]byte, maxAttempts int) error
	// MapStoreError translates store errors into the Errors sentinels or a
	// wrapped unavailability error.
	MapStoreError func(error) error

	// BeforeConsume runs once the request is known to come from the issuing
	// IP and device, before the code is checked. An error leaves the
	// challenge and its attempts untouched.
	BeforeConsume func(ctx context.Context) error
	// ResetRiskScore rehabilitates the identity after a successful step-up.
	ResetRiskScore     func(ctx context.Context, identity string) error
	NotifyInterception func(ctx context.Context, identity string, meta ClientMeta)

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics ChallengeMetrics
	Events  ChallengeEvents
	Errors  ChallengeErrors
}

func (d *ChallengeDeps) defaults() {
	d.Now = nowOrDefault(d.Now)
	if d.MetricInc == nil {
		d.MetricInc = noopMetric
	}
	if d.EmitAudit == nil {
		d.EmitAudit = noopAudit
	}
	if d.MapStoreError == nil {
		d.MapStoreError = func(err error) error { return err }
	}
	if d.NotifyInterception == nil {
		d.NotifyInterception = func(context.Context, string, ClientMeta) {}
	}
}

// RunIssueChallenge generates a code, stores its hash bound to the caller's
// IP and fingerprint, and returns the plaintext code. Any earlier challenge
// for the identity is replaced.
func RunIssueChallenge(ctx context.Context, identity string, meta ClientMeta, deps ChallengeDeps) (string, error) {
	deps.defaults()
	if deps.NewCode == nil || deps.HashCode == nil || deps.Save == nil {
		return "", deps.Errors.EngineNotReady
	}

	code, err := deps.NewCode(deps.CodeDigits)
	if err != nil {
		return "", err
	}
	record := ChallengeRecord{
		CodeHash:    deps.HashCode(code),
		IP:          meta.IP,
		Fingerprint: meta.Fingerprint,
		IssuedAt:    deps.Now(),
	}
	if err := deps.Save(ctx, identity, record, deps.TTL); err != nil {
		return "", deps.MapStoreError(err)
	}

	deps.MetricInc(deps.Metrics.Issued)
	deps.EmitAudit(ctx, deps.Events.Issued, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"identity": identity,
			"ip":       meta.IP,
		}
	})
	return code, nil
}

// RunVerifyChallenge checks, in order: existence, issuing IP, issuing
// device, and the code itself. Success consumes the challenge and resets the
// user's standing risk.
func RunVerifyChallenge(ctx context.Context, identity, code string, meta ClientMeta, deps ChallengeDeps) error {
	deps.defaults()
	if deps.HashCode == nil || deps.FingerprintMatches == nil || deps.Get == nil ||
		deps.Delete == nil || deps.Consume == nil || deps.ResetRiskScore == nil {
		return deps.Errors.EngineNotReady
	}

	fail := func(reason string, err error) error {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", "", err, func() map[string]string {
			return map[string]string{
				"identity": identity,
				"reason":   reason,
				"ip":       meta.IP,
			}
		})
		return err
	}

	record, err := deps.Get(ctx, identity)
	if err != nil {
		return fail("load", deps.MapStoreError(err))
	}

	// Codes are not portable across networks mid-challenge.
	if record.IP != meta.IP {
		return fail("ip_mismatch", deps.Errors.IPMismatch)
	}
	if !deps.FingerprintMatches(record.Fingerprint, meta.Fingerprint) {
		// The code reached another device; it is burned.
		if err := deps.Delete(ctx, identity); err != nil {
			return fail("delete", deps.MapStoreError(err))
		}
		deps.MetricInc(deps.Metrics.FingerprintMismatch)
		deps.NotifyInterception(ctx, identity, meta)
		return fail("fingerprint_mismatch", deps.Errors.FingerprintMismatch)
	}

	if deps.BeforeConsume != nil {
		if err := deps.BeforeConsume(ctx); err != nil {
			return err
		}
	}

	if err := deps.Consume(ctx, identity, record.IssuedAt, deps.HashCode(code), deps.MaxAttempts); err != nil {
		mapped := deps.MapStoreError(err)
		reason := "incorrect"
		if errors.Is(mapped, deps.Errors.NotFoundOrExpired) {
			reason = "consumed"
		}
		return fail(reason, mapped)
	}

	if err := deps.ResetRiskScore(ctx, identity); err != nil {
		return fail("risk_reset", err)
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, "", "", nil, func() map[string]string {
		return map[string]string{"identity": identity}
	})
	return nil
}
