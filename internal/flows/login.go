package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/geo"
	"github.com/MrEthical07/goGuard/risk"
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	SessionTokens
	ChallengeRequired bool
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess       int
	LoginFailure       int
	SessionCapExceeded int
	ChallengeRequired  int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess      string
	LoginFailure      string
	ChallengeRequired string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	AccountUnverified  error
	SessionCapExceeded error
	UserNotFound       error
	StoreUnavailable   error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	RequireVerified   bool
	MaxActiveSessions int
	Now               func() time.Time

	GetUserByIdentity func(context.Context, string) (UserRecord, error)
	VerifyPassword    func(password, hash string) (bool, error)
	// BurnPasswordCheck spends the cost of one hash verification so unknown
	// identities take as long as wrong passwords.
	BurnPasswordCheck func(password string)
	CountActive       func(context.Context, string) (int, error)
	ResolveLocation   func(context.Context, string) geo.Location
	EvaluateRisk      func(context.Context, risk.Attempt) (risk.Assessment, error)
	StartChallenge    func(ctx context.Context, user UserRecord, meta ClientMeta) error
	IssueSession      IssueSessionFunc

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLoginWithResult verifies credentials, enforces the session cap, scores
// the attempt and either starts a step-up challenge or issues a session.
func RunLoginWithResult(ctx context.Context, identity, password string, meta ClientMeta, deps LoginDeps) (*LoginResult, error) {
	deps.Now = nowOrDefault(deps.Now)
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.BurnPasswordCheck == nil {
		deps.BurnPasswordCheck = func(string) {}
	}
	if deps.GetUserByIdentity == nil ||
		deps.VerifyPassword == nil ||
		deps.CountActive == nil ||
		deps.ResolveLocation == nil ||
		deps.EvaluateRisk == nil ||
		deps.StartChallenge == nil ||
		deps.IssueSession == nil {
		return nil, deps.Errors.EngineNotReady
	}

	fail := func(userID, reason string, err error) (*LoginResult, error) {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, userID, "", err, func() map[string]string {
			return map[string]string{
				"identity": identity,
				"reason":   reason,
				"ip":       meta.IP,
			}
		})
		return nil, err
	}

	if identity == "" || password == "" {
		deps.BurnPasswordCheck(password)
		return fail("", "empty_credentials", deps.Errors.InvalidCredentials)
	}

	user, err := deps.GetUserByIdentity(ctx, identity)
	if err != nil {
		if deps.Errors.UserNotFound != nil && errors.Is(err, deps.Errors.UserNotFound) {
			deps.BurnPasswordCheck(password)
			return fail("", "user_not_found", deps.Errors.InvalidCredentials)
		}
		return fail("", "user_lookup", err)
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	password = ""
	if err != nil || !ok {
		return fail(user.UserID, "password_mismatch", deps.Errors.InvalidCredentials)
	}

	if deps.RequireVerified && !user.Verified {
		return fail(user.UserID, "unverified", deps.Errors.AccountUnverified)
	}

	return admitSession(ctx, user, meta, deps)
}

// admitSession runs everything after the credential check: cap, risk and
// finally the challenge or the session.
func admitSession(ctx context.Context, user UserRecord, meta ClientMeta, deps LoginDeps) (*LoginResult, error) {
	if err := checkSessionCap(ctx, user, deps); err != nil {
		return nil, err
	}

	loc := deps.ResolveLocation(ctx, meta.IP)
	assessment, err := deps.EvaluateRisk(ctx, risk.Attempt{
		UserID:       user.UserID,
		IP:           meta.IP,
		Fingerprint:  meta.Fingerprint,
		StandingRisk: user.RiskScore,
		Location:     loc,
		Now:          deps.Now(),
	})
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.UserID, "", err, func() map[string]string {
			return map[string]string{"reason": "risk_unavailable"}
		})
		return nil, err
	}

	if assessment.RequiresChallenge {
		if err := deps.StartChallenge(ctx, user, meta); err != nil {
			deps.MetricInc(deps.Metrics.LoginFailure)
			deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.UserID, "", err, func() map[string]string {
				return map[string]string{"reason": "challenge_issue"}
			})
			return nil, err
		}
		deps.MetricInc(deps.Metrics.ChallengeRequired)
		deps.EmitAudit(ctx, deps.Events.ChallengeRequired, true, user.UserID, "", nil, func() map[string]string {
			return map[string]string{
				"score":   itoa(assessment.Score),
				"signals": joinSignals(assessment.Signals),
			}
		})
		return &LoginResult{ChallengeRequired: true}, nil
	}

	tokens, err := deps.IssueSession(ctx, user, meta, loc, false)
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.UserID, "", err, func() map[string]string {
			return map[string]string{"reason": "session_create"}
		})
		return nil, err
	}
	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.UserID, tokens.SessionID, nil, func() map[string]string {
		return map[string]string{
			"score":   itoa(assessment.Score),
			"signals": joinSignals(assessment.Signals),
		}
	})
	return &LoginResult{SessionTokens: *tokens}, nil
}

func checkSessionCap(ctx context.Context, user UserRecord, deps LoginDeps) error {
	if deps.MaxActiveSessions <= 0 {
		return nil
	}
	active, err := deps.CountActive(ctx, user.UserID)
	if err != nil {
		return err
	}
	if active >= deps.MaxActiveSessions {
		deps.MetricInc(deps.Metrics.SessionCapExceeded)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.UserID, "", deps.Errors.SessionCapExceeded, func() map[string]string {
			return map[string]string{
				"reason": "session_cap",
				"active": itoa(active),
			}
		})
		return deps.Errors.SessionCapExceeded
	}
	return nil
}

// ConfirmLoginDeps captures the dependencies of the challenge-confirmed login.
type ConfirmLoginDeps struct {
	Login     LoginDeps
	Challenge ChallengeDeps
}

// RunConfirmLoginChallenge verifies a login challenge and, on success, issues
// the session the challenge was gating. Risk is not re-scored; the cap is
// checked again, before the code is consumed, because time has passed since
// the first attempt.
func RunConfirmLoginChallenge(ctx context.Context, identity, code string, meta ClientMeta, deps ConfirmLoginDeps) (*LoginResult, error) {
	login := deps.Login
	login.Now = nowOrDefault(login.Now)
	if login.MetricInc == nil {
		login.MetricInc = noopMetric
	}
	if login.EmitAudit == nil {
		login.EmitAudit = noopAudit
	}
	if login.GetUserByIdentity == nil || login.CountActive == nil || login.ResolveLocation == nil || login.IssueSession == nil {
		return nil, login.Errors.EngineNotReady
	}

	// The cap is rechecked before the code is spent so a refusal leaves the
	// challenge and the standing risk as they were.
	var user UserRecord
	challenge := deps.Challenge
	challenge.BeforeConsume = func(ctx context.Context) error {
		u, err := login.GetUserByIdentity(ctx, identity)
		if err != nil {
			if login.Errors.UserNotFound != nil && errors.Is(err, login.Errors.UserNotFound) {
				return login.Errors.InvalidCredentials
			}
			return err
		}
		user = u
		return checkSessionCap(ctx, u, login)
	}
	if err := RunVerifyChallenge(ctx, identity, code, meta, challenge); err != nil {
		return nil, err
	}

	tokens, err := login.IssueSession(ctx, user, meta, login.ResolveLocation(ctx, meta.IP), false)
	if err != nil {
		return nil, err
	}
	login.MetricInc(login.Metrics.LoginSuccess)
	login.EmitAudit(ctx, login.Events.LoginSuccess, true, user.UserID, tokens.SessionID, nil, func() map[string]string {
		return map[string]string{"via": "challenge"}
	})
	return &LoginResult{SessionTokens: *tokens}, nil
}
