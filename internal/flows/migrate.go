package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/geo"
)

// MigrateMetrics carries metric IDs needed by the legacy migration.
type MigrateMetrics struct {
	Migrated int
	Replayed int
}

// MigrateEvents carries audit event names used by the legacy migration.
type MigrateEvents struct {
	Migrated string
	Replayed string
}

// MigrateDeps captures the legacy-token upgrade dependencies.
type MigrateDeps struct {
	LegacyPenalty int
	// MarkerTTL is the minimum marker lifetime. A marker always outlives
	// the credential it guards, plus Leeway.
	MarkerTTL time.Duration
	Leeway    time.Duration
	Now       func() time.Time

	GetUserByID        func(context.Context, string) (UserRecord, error)
	ClaimMarker        func(ctx context.Context, tokenHash, userID string, ttl time.Duration) (bool, error)
	ReleaseMarker      func(ctx context.Context, tokenHash string) error
	ResolveLocation    func(context.Context, string) geo.Location
	IncrementRiskScore func(ctx context.Context, userID string, delta int) error
	IssueSession       IssueSessionFunc
	Warn               func(string, ...any)

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics MigrateMetrics
	Events  MigrateEvents

	UserNotFound error
}

// LegacyCredential identifies one session-less access token.
type LegacyCredential struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
}

// MigrateResult is the outcome of one legacy upgrade attempt. Rejected is
// set when the credential was already migrated or its user is gone.
type MigrateResult struct {
	Rejected bool
	User     UserRecord
	Tokens   *SessionTokens
}

// RunMigrate upgrades a session-less legacy token into a tracked session.
// A marker keyed by the token hash makes this happen at most once per
// credential; replays are rejected.
func RunMigrate(ctx context.Context, cred LegacyCredential, meta ClientMeta, deps MigrateDeps) (MigrateResult, error) {
	deps.Now = nowOrDefault(deps.Now)
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.ClaimMarker == nil || deps.GetUserByID == nil || deps.ResolveLocation == nil ||
		deps.IncrementRiskScore == nil || deps.IssueSession == nil {
		return MigrateResult{}, errNotReady
	}
	if cred.ExpiresAt.IsZero() {
		return MigrateResult{Rejected: true}, nil
	}
	userID, tokenHash := cred.UserID, cred.TokenHash

	claimed, err := deps.ClaimMarker(ctx, tokenHash, userID, deps.markerTTL(cred.ExpiresAt))
	if err != nil {
		return MigrateResult{}, err
	}
	if !claimed {
		deps.MetricInc(deps.Metrics.Replayed)
		deps.EmitAudit(ctx, deps.Events.Replayed, false, userID, "", nil, func() map[string]string {
			return map[string]string{"ip": meta.IP}
		})
		return MigrateResult{Rejected: true}, nil
	}

	user, err := deps.GetUserByID(ctx, userID)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			return MigrateResult{Rejected: true}, nil
		}
		deps.release(ctx, tokenHash)
		return MigrateResult{}, err
	}

	tokens, err := deps.IssueSession(ctx, user, meta, deps.ResolveLocation(ctx, meta.IP), true)
	if err != nil {
		deps.release(ctx, tokenHash)
		return MigrateResult{}, err
	}

	// The session already exists; a failed precautionary bump must not log
	// the user out.
	if deps.LegacyPenalty > 0 {
		if err := deps.IncrementRiskScore(ctx, user.UserID, deps.LegacyPenalty); err != nil {
			deps.Warn("goGuard: legacy migration risk increment failed", "user_id", user.UserID, "error", err)
		} else {
			user.RiskScore += deps.LegacyPenalty
		}
	}

	deps.MetricInc(deps.Metrics.Migrated)
	deps.EmitAudit(ctx, deps.Events.Migrated, true, user.UserID, tokens.SessionID, nil, func() map[string]string {
		return map[string]string{"ip": meta.IP}
	})
	return MigrateResult{User: user, Tokens: tokens}, nil
}

func (d MigrateDeps) markerTTL(expiresAt time.Time) time.Duration {
	return max(d.MarkerTTL, expiresAt.Sub(d.Now())+d.Leeway)
}

func (d MigrateDeps) release(ctx context.Context, tokenHash string) {
	if d.ReleaseMarker == nil {
		return
	}
	if err := d.ReleaseMarker(ctx, tokenHash); err != nil {
		d.Warn("goGuard: legacy migration marker release failed", "error", err)
	}
}
