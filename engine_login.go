package goGuard

import (
	"context"
	"errors"
	"strings"

	internalflows "github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/risk"
)

// Login authenticates identity and password and returns a token pair for a
// new session. When the attempt is risky it sends a code and returns
// [ErrChallengeRequired]; finish with [Engine.ConfirmLoginChallenge].
func (e *Engine) Login(ctx context.Context, identity, password string, client ClientInfo) (TokenPair, error) {
	result, err := e.LoginWithResult(ctx, identity, password, client)
	if err != nil {
		return TokenPair{}, err
	}
	if result == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	if result.ChallengeRequired {
		return TokenPair{}, ErrChallengeRequired
	}
	return result.TokenPair, nil
}

// LoginWithResult is [Engine.Login] with the challenge reported in the
// result instead of as an error.
//
// Errors: [ErrInvalidCredentials], [ErrAccountUnverified],
// [ErrSessionCapExceeded], [ErrStoreUnavailable].
func (e *Engine) LoginWithResult(ctx context.Context, identity, password string, client ClientInfo) (*LoginResult, error) {
	res, err := internalflows.RunLoginWithResult(ctx, identity, password, toFlowMeta(client), e.loginFlowDeps())
	if err != nil {
		return nil, storeErr(err)
	}
	return &LoginResult{
		TokenPair:         fromFlowTokens(&res.SessionTokens),
		ChallengeRequired: res.ChallengeRequired,
	}, nil
}

// ConfirmLoginChallenge verifies the code sent by a challenged login and
// creates the session. It must come from the same network and device as
// the login.
func (e *Engine) ConfirmLoginChallenge(ctx context.Context, identity, code string, client ClientInfo) (*LoginResult, error) {
	res, err := internalflows.RunConfirmLoginChallenge(ctx, identity, code, toFlowMeta(client), internalflows.ConfirmLoginDeps{
		Login:     e.loginFlowDeps(),
		Challenge: e.challengeFlowDeps(),
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return &LoginResult{TokenPair: fromFlowTokens(&res.SessionTokens)}, nil
}

// CreateAccount registers identity with a hashed password. An empty role
// means [RoleUser].
func (e *Engine) CreateAccount(ctx context.Context, identity, password string, role Role) (UserRecord, error) {
	if e == nil || e.users == nil || e.passwordHash == nil {
		return UserRecord{}, ErrEngineNotReady
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return UserRecord{}, ErrInvalidInput
	}
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return UserRecord{}, ErrInvalidRole
	}

	hash, err := e.passwordHash.Hash(password)
	if err != nil {
		return UserRecord{}, errors.Join(ErrInvalidInput, err)
	}
	rec, err := e.users.CreateUser(ctx, UserRecord{
		Identity:     identity,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		e.emitAudit(ctx, auditEventAccountCreated, false, "", "", err, func() map[string]string {
			return map[string]string{"identity": identity}
		})
		return UserRecord{}, err
	}
	e.emitAudit(ctx, auditEventAccountCreated, true, rec.ID, "", nil, nil)
	return rec, nil
}

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := internalflows.LoginDeps{
		RequireVerified:   cfg.Login.RequireVerified,
		MaxActiveSessions: cfg.Session.MaxActiveSessions,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.LoginMetrics{
			LoginSuccess:       int(MetricLoginSuccess),
			LoginFailure:       int(MetricLoginFailure),
			SessionCapExceeded: int(MetricSessionCapExceeded),
			ChallengeRequired:  int(MetricChallengeRequired),
		},
		Events: internalflows.LoginEvents{
			LoginSuccess:      auditEventLoginSuccess,
			LoginFailure:      auditEventLoginFailure,
			ChallengeRequired: auditEventChallengeRequired,
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			AccountUnverified:  ErrAccountUnverified,
			SessionCapExceeded: ErrSessionCapExceeded,
			UserNotFound:       ErrUserNotFound,
			StoreUnavailable:   ErrStoreUnavailable,
		},
	}
	if e == nil {
		return deps
	}

	deps.Now = e.now
	if e.users != nil {
		deps.GetUserByIdentity = e.getUserByIdentity
	}
	if e.passwordHash != nil {
		deps.VerifyPassword = e.passwordHash.Verify
		deps.BurnPasswordCheck = e.passwordHash.Burn
	}
	if e.sessions != nil {
		deps.CountActive = func(ctx context.Context, userID string) (int, error) {
			n, err := e.sessions.CountActive(ctx, userID)
			return n, storeErr(err)
		}
		deps.IssueSession = e.issueSession
	}
	if e.geo != nil {
		deps.ResolveLocation = e.resolveLocation
	}
	if e.risk != nil {
		deps.EvaluateRisk = func(ctx context.Context, a risk.Attempt) (risk.Assessment, error) {
			out, err := e.risk.Evaluate(ctx, a)
			return out, storeErr(err)
		}
	}
	if e.challenges != nil {
		deps.StartChallenge = e.startLoginChallenge
	}
	return deps
}

// startLoginChallenge issues a code for a risky login and mails it to the
// account address.
func (e *Engine) startLoginChallenge(ctx context.Context, user internalflows.UserRecord, meta internalflows.ClientMeta) error {
	code, err := internalflows.RunIssueChallenge(ctx, user.Identity, meta, e.challengeFlowDeps())
	if err != nil {
		return err
	}
	msg := notify.ChallengeCode(user.Identity, code, e.config.Challenge.TTL)
	msg.UserID = user.UserID
	e.enqueue(msg)
	return nil
}
