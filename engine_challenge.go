package goGuard

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/internal"
	internalflows "github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/stores"
	"github.com/MrEthical07/goGuard/notify"
)

// IssueChallenge creates a one-time code for identity bound to the client's
// IP and device and returns it for out-of-band delivery. A newer challenge
// replaces any earlier one.
func (e *Engine) IssueChallenge(ctx context.Context, identity string, client ClientInfo) (string, error) {
	code, err := internalflows.RunIssueChallenge(ctx, identity, toFlowMeta(client), e.challengeFlowDeps())
	return code, storeErr(err)
}

// VerifyChallenge checks code against the live challenge for identity.
// Success consumes the challenge and resets the user's risk score.
//
// Errors: [ErrChallengeNotFoundOrExpired], [ErrChallengeIPMismatch],
// [ErrChallengeFingerprintMismatch], [ErrChallengeIncorrect],
// [ErrStoreUnavailable].
func (e *Engine) VerifyChallenge(ctx context.Context, identity, code string, client ClientInfo) error {
	return storeErr(internalflows.RunVerifyChallenge(ctx, identity, code, toFlowMeta(client), e.challengeFlowDeps()))
}

func (e *Engine) challengeFlowDeps() internalflows.ChallengeDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := internalflows.ChallengeDeps{
		CodeDigits:         cfg.Challenge.CodeDigits,
		TTL:                cfg.Challenge.TTL,
		MaxAttempts:        cfg.Challenge.MaxAttempts,
		NewCode:            internal.NewOTP,
		HashCode:           internal.HashCode,
		FingerprintMatches: internal.FingerprintMatches,
		MapStoreError:      mapChallengeStoreError,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.ChallengeMetrics{
			Issued:              int(MetricChallengeIssued),
			Success:             int(MetricChallengeSuccess),
			Failure:             int(MetricChallengeFailure),
			FingerprintMismatch: int(MetricChallengeIntercepted),
		},
		Events: internalflows.ChallengeEvents{
			Issued:  auditEventChallengeIssued,
			Success: auditEventChallengeSuccess,
			Failure: auditEventChallengeFailure,
		},
		Errors: internalflows.ChallengeErrors{
			EngineNotReady:      ErrEngineNotReady,
			NotFoundOrExpired:   ErrChallengeNotFoundOrExpired,
			IPMismatch:          ErrChallengeIPMismatch,
			FingerprintMismatch: ErrChallengeFingerprintMismatch,
			Incorrect:           ErrChallengeIncorrect,
		},
	}
	if e == nil {
		return deps
	}

	deps.Now = e.now
	if e.challenges != nil {
		store := e.challenges
		deps.Save = func(ctx context.Context, identity string, record internalflows.ChallengeRecord, ttl time.Duration) error {
			return store.Save(ctx, identity, &stores.Challenge{
				CodeHash:    record.CodeHash,
				IP:          record.IP,
				Fingerprint: record.Fingerprint,
				IssuedAt:    record.IssuedAt,
			}, ttl)
		}
		deps.Get = func(ctx context.Context, identity string) (*internalflows.ChallengeRecord, error) {
			c, err := store.Get(ctx, identity)
			if err != nil {
				return nil, err
			}
			return &internalflows.ChallengeRecord{
				CodeHash:    c.CodeHash,
				IP:          c.IP,
				Fingerprint: c.Fingerprint,
				IssuedAt:    c.IssuedAt,
			}, nil
		}
		deps.Delete = func(ctx context.Context, identity string) error {
			_, err := store.Delete(ctx, identity)
			return err
		}
		deps.Consume = func(ctx context.Context, identity string, issuedAt time.Time, hash [32]byte, maxAttempts int) error {
			_, err := store.Consume(ctx, identity, issuedAt, hash, maxAttempts)
			return err
		}
	}
	if e.users != nil {
		deps.ResetRiskScore = func(ctx context.Context, identity string) error {
			u, err := e.users.GetUserByIdentity(ctx, identity)
			if err != nil {
				return err
			}
			return e.users.ResetRiskScore(ctx, u.ID)
		}
	}
	deps.NotifyInterception = func(_ context.Context, identity string, meta internalflows.ClientMeta) {
		e.enqueue(notify.InterceptionAlert(identity, meta.IP, e.now()))
	}
	return deps
}

func mapChallengeStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrChallengeNotFound):
		return ErrChallengeNotFoundOrExpired
	case errors.Is(err, stores.ErrChallengeSecretMismatch),
		errors.Is(err, stores.ErrChallengeAttemptsExceeded):
		return ErrChallengeIncorrect
	default:
		return storeErr(err)
	}
}
