package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/risk"
	"github.com/MrEthical07/goGuard/session"
)

// AuthKind tags the variant held by an AuthResult.
type AuthKind int

const (
	AuthRejected AuthKind = iota
	AuthAllowed
	AuthMigrated
)

// RejectReason classifies rejections for root-level mapping. Callers only
// ever see "no token", "invalid token" or "invalid or expired session".
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectNoToken
	RejectTokenInvalid
	RejectSessionInvalidOrExpired
)

// AuthStage names the state the request was in when it was decided.
type AuthStage string

const (
	StageNoToken          AuthStage = "no_token"
	StageLegacy           AuthStage = "legacy"
	StageValidate         AuthStage = "validate"
	StageFingerprintCheck AuthStage = "fingerprint_check"
	StageTravelCheck      AuthStage = "travel_check"
	StageAllow            AuthStage = "allow"
)

// AuthRequest is one inbound authenticated request.
type AuthRequest struct {
	AccessToken  string
	RefreshToken string
	Meta         ClientMeta
}

// AuthResult is a tagged result: exactly the fields of Kind are meaningful.
type AuthResult struct {
	Kind   AuthKind
	Reason RejectReason
	Stage  AuthStage

	UserID    string
	Role      string
	SessionID string

	Tokens *SessionTokens
	Travel *risk.Travel
}

// AuthenticateMetrics carries metric IDs needed by the authenticator.
type AuthenticateMetrics struct {
	Allowed  int
	Rejected int
}

// AuthenticateEvents carries audit event names used by the authenticator.
type AuthenticateEvents struct {
	Rejected string
}

// AuthenticateDeps captures the request authenticator dependencies.
type AuthenticateDeps struct {
	ParseAccess        func(string) (*jwt.AccessClaims, error)
	HashToken          func(string) string
	ValidateAndRefresh func(ctx context.Context, refreshHash, ip string) (*session.Snapshot, error)
	SessionNotFound    error
	// MigrationEnabled admits session-less legacy tokens through RunMigrate;
	// otherwise they are rejected as invalid.
	MigrationEnabled bool

	Detect  DetectDeps
	Migrate MigrateDeps

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics AuthenticateMetrics
	Events  AuthenticateEvents
}

// RunAuthenticate drives one request through
// NO_TOKEN | LEGACY → MIGRATE | VALIDATE → FINGERPRINT_CHECK → TRAVEL_CHECK → ALLOW.
// The returned error is non-nil only when a backing store failed.
func RunAuthenticate(ctx context.Context, req AuthRequest, deps AuthenticateDeps) (AuthResult, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.ParseAccess == nil || deps.HashToken == nil || deps.ValidateAndRefresh == nil {
		return AuthResult{}, errNotReady
	}

	reject := func(stage AuthStage, reason RejectReason, userID, sessionID string) (AuthResult, error) {
		deps.MetricInc(deps.Metrics.Rejected)
		deps.EmitAudit(ctx, deps.Events.Rejected, false, userID, sessionID, nil, func() map[string]string {
			return map[string]string{
				"stage": string(stage),
				"ip":    req.Meta.IP,
			}
		})
		return AuthResult{Kind: AuthRejected, Reason: reason, Stage: stage}, nil
	}

	if req.AccessToken == "" {
		return reject(StageNoToken, RejectNoToken, "", "")
	}
	claims, err := deps.ParseAccess(req.AccessToken)
	if err != nil || claims.UID == "" {
		return reject(StageNoToken, RejectTokenInvalid, "", "")
	}

	if claims.IsLegacy() {
		// Without an expiry no marker could outlive the credential.
		if !deps.MigrationEnabled || claims.ExpiresAt == nil {
			return reject(StageLegacy, RejectTokenInvalid, claims.UID, "")
		}
		res, err := RunMigrate(ctx, LegacyCredential{
			UserID:    claims.UID,
			TokenHash: deps.HashToken(req.AccessToken),
			ExpiresAt: claims.ExpiresAt.Time,
		}, req.Meta, deps.Migrate)
		if err != nil {
			return AuthResult{Stage: StageLegacy}, err
		}
		if res.Rejected {
			return reject(StageLegacy, RejectSessionInvalidOrExpired, claims.UID, "")
		}
		deps.MetricInc(deps.Metrics.Allowed)
		return AuthResult{
			Kind:      AuthMigrated,
			Stage:     StageLegacy,
			UserID:    res.User.UserID,
			Role:      res.User.Role,
			SessionID: res.Tokens.SessionID,
			Tokens:    res.Tokens,
		}, nil
	}

	if req.RefreshToken == "" {
		return reject(StageValidate, RejectSessionInvalidOrExpired, claims.UID, claims.SID)
	}
	snap, err := deps.ValidateAndRefresh(ctx, deps.HashToken(req.RefreshToken), req.Meta.IP)
	if err != nil {
		if deps.SessionNotFound != nil && errors.Is(err, deps.SessionNotFound) {
			return reject(StageValidate, RejectSessionInvalidOrExpired, claims.UID, claims.SID)
		}
		return AuthResult{Stage: StageValidate}, err
	}
	// The access token must belong to the session the refresh token opened.
	if snap.SessionID != claims.SID || snap.UserID != claims.UID {
		return reject(StageValidate, RejectSessionInvalidOrExpired, claims.UID, claims.SID)
	}

	verdict, err := RunDetect(ctx, snap, req.Meta, deps.Detect)
	if err != nil {
		return AuthResult{Stage: verdict.Stage}, err
	}
	if verdict.Verdict == DetectHijack {
		return reject(StageFingerprintCheck, RejectSessionInvalidOrExpired, snap.UserID, snap.SessionID)
	}

	deps.MetricInc(deps.Metrics.Allowed)
	return AuthResult{
		Kind:      AuthAllowed,
		Stage:     StageAllow,
		UserID:    snap.UserID,
		Role:      claims.Role,
		SessionID: snap.SessionID,
		Travel:    verdict.Travel,
	}, nil
}
