package goGuard

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/internal"
	internalflows "github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/risk"
	"github.com/MrEthical07/goGuard/session"
)

// Authenticate decides one inbound request. The outcome is [Allowed],
// [Migrated] (a legacy token was upgraded; hand the new pair to the client)
// or [Rejected]. A non-nil error means a backing store failed and nothing
// was decided.
//
// A device fingerprint that differs from the session's revokes the session.
// Impossible travel raises the user's risk and alerts, but the request is
// still allowed with Suspicious set.
func (e *Engine) Authenticate(ctx context.Context, accessToken, refreshToken string, client ClientInfo) (AuthOutcome, error) {
	if e != nil && e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	res, err := internalflows.RunAuthenticate(ctx, internalflows.AuthRequest{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Meta:         toFlowMeta(client),
	}, e.authenticateFlowDeps())
	if err != nil {
		return nil, storeErr(err)
	}

	switch res.Kind {
	case internalflows.AuthAllowed:
		return Allowed{
			UserID:     res.UserID,
			Role:       Role(res.Role),
			SessionID:  res.SessionID,
			Suspicious: res.Travel != nil,
		}, nil
	case internalflows.AuthMigrated:
		pair := fromFlowTokens(res.Tokens)
		return Migrated{
			UserID:       res.UserID,
			Role:         Role(res.Role),
			SessionID:    pair.SessionID,
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
		}, nil
	default:
		return Rejected{Reason: rejectReason(res.Reason)}, nil
	}
}

func rejectReason(r internalflows.RejectReason) RejectReason {
	switch r {
	case internalflows.RejectNoToken:
		return ReasonNoToken
	case internalflows.RejectTokenInvalid:
		return ReasonTokenInvalid
	default:
		return ReasonSessionInvalidOrExpired
	}
}

// Refresh signs a new access token for the session behind refreshToken. The
// same device checks as [Engine.Authenticate] apply. The refresh token is
// returned unchanged.
//
// Errors: [ErrSessionInvalidOrExpired], [ErrStoreUnavailable].
func (e *Engine) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (TokenPair, error) {
	tokens, err := internalflows.RunRefresh(ctx, refreshToken, toFlowMeta(client), e.refreshFlowDeps())
	if err != nil {
		err = storeErr(err)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", "", err, func() map[string]string {
			return map[string]string{"ip": client.IP}
		})
		return TokenPair{}, err
	}
	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, "", tokens.SessionID, nil, func() map[string]string {
		return map[string]string{"ip": client.IP}
	})
	return fromFlowTokens(tokens), nil
}

func (e *Engine) authenticateFlowDeps() internalflows.AuthenticateDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := internalflows.AuthenticateDeps{
		HashToken:        internal.HashToken,
		SessionNotFound:  session.ErrNotFound,
		MigrationEnabled: cfg.Migration.Enabled,
		Detect:           e.detectFlowDeps(),
		Migrate:          e.migrateFlowDeps(),
		MetricInc:        e.flowMetricInc,
		EmitAudit:        e.emitAudit,
		Metrics: internalflows.AuthenticateMetrics{
			Allowed:  int(MetricAuthAllowed),
			Rejected: int(MetricAuthRejected),
		},
		Events: internalflows.AuthenticateEvents{
			Rejected: auditEventAuthRejected,
		},
	}
	if e == nil {
		return deps
	}

	if e.jwtManager != nil {
		deps.ParseAccess = e.jwtManager.ParseAccess
	}
	if e.sessions != nil {
		deps.ValidateAndRefresh = func(ctx context.Context, refreshHash, ip string) (*session.Snapshot, error) {
			snap, err := e.sessions.ValidateAndRefresh(ctx, refreshHash, ip)
			if err != nil && !errors.Is(err, session.ErrNotFound) {
				return nil, storeErr(err)
			}
			return snap, err
		}
	}
	return deps
}

func (e *Engine) refreshFlowDeps() internalflows.RefreshDeps {
	deps := internalflows.RefreshDeps{
		Authenticate: e.authenticateFlowDeps(),
		Errors: internalflows.RefreshErrors{
			EngineNotReady:          ErrEngineNotReady,
			SessionInvalidOrExpired: ErrSessionInvalidOrExpired,
			UserNotFound:            ErrUserNotFound,
		},
	}
	if e == nil {
		return deps
	}
	if e.users != nil {
		deps.GetUserByID = e.getUserByID
	}
	if e.jwtManager != nil {
		deps.IssueAccess = e.jwtManager.CreateAccess
	}
	return deps
}

func (e *Engine) detectFlowDeps() internalflows.DetectDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := internalflows.DetectDeps{
		TravelPenalty:      cfg.Detector.TravelPenalty,
		FingerprintMatches: internal.FingerprintMatches,
		MetricInc:          e.flowMetricInc,
		EmitAudit:          e.emitAudit,
		Metrics: internalflows.DetectMetrics{
			Hijack:           int(MetricHijackDetected),
			ImpossibleTravel: int(MetricImpossibleTravel),
		},
		Events: internalflows.DetectEvents{
			Hijack:           auditEventHijackDetected,
			ImpossibleTravel: auditEventImpossibleTravel,
		},
		HijackError: ErrHijackDetected,
	}
	if e == nil {
		return deps
	}

	deps.Now = e.now
	if e.risk != nil {
		deps.ImpossibleTravelKmh = e.risk.ImpossibleTravelKmh()
	}
	if e.sessions != nil {
		deps.RevokeSession = func(ctx context.Context, sessionID string) error {
			return storeErr(e.sessions.Revoke(ctx, sessionID))
		}
		deps.MarkSuspicious = func(ctx context.Context, sessionID string) error {
			return storeErr(e.sessions.MarkSuspicious(ctx, sessionID))
		}
	}
	if e.users != nil {
		deps.IncrementRiskScore = e.users.IncrementRiskScore
	}
	deps.NotifyHijack = func(_ context.Context, snap *session.Snapshot, meta internalflows.ClientMeta) {
		e.enqueue(notify.HijackAlert(snap.UserID, meta.IP, meta.UserAgent, e.now()))
	}
	deps.NotifyTravel = func(_ context.Context, userID string, travel risk.Travel) {
		e.enqueue(notify.TravelAlert(
			notify.KindImpossibleTravel,
			userID,
			placeName(travel.From),
			placeName(travel.To),
			travel.DistanceKm,
			travel.SpeedKmh,
			travel.ToTime,
		))
	}
	return deps
}

func (e *Engine) migrateFlowDeps() internalflows.MigrateDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := internalflows.MigrateDeps{
		LegacyPenalty: cfg.Migration.LegacyPenalty,
		MarkerTTL:     cfg.Migration.MarkerTTL,
		Leeway:        cfg.JWT.Leeway,
		MetricInc:     e.flowMetricInc,
		EmitAudit:     e.emitAudit,
		Metrics: internalflows.MigrateMetrics{
			Migrated: int(MetricLegacyMigrated),
			Replayed: int(MetricLegacyReplayRejected),
		},
		Events: internalflows.MigrateEvents{
			Migrated: auditEventLegacyMigrated,
			Replayed: auditEventLegacyReplayRejected,
		},
		UserNotFound: ErrUserNotFound,
	}
	if e == nil {
		return deps
	}

	deps.Warn = e.warn
	deps.Now = e.now
	if e.markers != nil {
		deps.ClaimMarker = func(ctx context.Context, tokenHash, userID string, ttl time.Duration) (bool, error) {
			ok, err := e.markers.Claim(ctx, tokenHash, userID, ttl)
			return ok, storeErr(err)
		}
		deps.ReleaseMarker = func(ctx context.Context, tokenHash string) error {
			return storeErr(e.markers.Release(ctx, tokenHash))
		}
	}
	if e.users != nil {
		deps.GetUserByID = e.getUserByID
		deps.IncrementRiskScore = e.users.IncrementRiskScore
	}
	if e.geo != nil {
		deps.ResolveLocation = e.resolveLocation
	}
	if e.sessions != nil {
		deps.IssueSession = e.issueSession
	}
	return deps
}
