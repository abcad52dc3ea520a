package goGuard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goGuard/geo"
	"github.com/MrEthical07/goGuard/internal"
	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
	internalflows "github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/stores"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/risk"
	"github.com/MrEthical07/goGuard/session"
	"github.com/rs/zerolog"
)

// Engine decides whether logins and session presentations are legitimate,
// scores their risk and triggers challenges, revocations and alerts. It is
// safe for concurrent use.
type Engine struct {
	config Config
	log    zerolog.Logger
	now    func() time.Time

	sessions     *session.Repository
	users        CredentialStore
	risk         *risk.Engine
	challenges   *stores.ChallengeStore
	markers      *stores.MigrationMarkerStore
	jwtManager   *jwt.Manager
	passwordHash *password.Argon2
	geo          geo.Resolver

	notifier     *notify.Dispatcher
	ownsNotifier bool
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
}

// Close drains the audit and notification queues.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.ownsNotifier && e.notifier != nil {
		e.notifier.Close()
	}
}

// AuditDropped reports audit events lost to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) flowMetricInc(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) warn(msg string, kv ...any) {
	e.log.Warn().Fields(kv).Msg(msg)
}

// storeErr lifts package-level unavailability errors onto the root sentinel.
// Not-found and domain errors pass through.
func storeErr(err error) error {
	switch {
	case err == nil, errors.Is(err, ErrStoreUnavailable):
		return err
	case errors.Is(err, session.ErrStoreUnavailable),
		errors.Is(err, stores.ErrChallengeRedisUnavailable),
		errors.Is(err, stores.ErrMigrationRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}

func toFlowUser(u UserRecord) internalflows.UserRecord {
	return internalflows.UserRecord{
		UserID:       u.ID,
		Identity:     u.Identity,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Verified:     u.Verified,
		RiskScore:    u.RiskScore,
	}
}

func toFlowMeta(c ClientInfo) internalflows.ClientMeta {
	return internalflows.ClientMeta{
		IP:          c.IP,
		UserAgent:   c.UserAgent,
		Fingerprint: c.Fingerprint,
		DisplayName: c.DisplayName,
	}
}

func fromFlowTokens(t *internalflows.SessionTokens) TokenPair {
	if t == nil {
		return TokenPair{}
	}
	return TokenPair{
		SessionID:    t.SessionID,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
	}
}

func (e *Engine) getUserByIdentity(ctx context.Context, identity string) (internalflows.UserRecord, error) {
	u, err := e.users.GetUserByIdentity(ctx, identity)
	if err != nil {
		return internalflows.UserRecord{}, err
	}
	return toFlowUser(u), nil
}

func (e *Engine) getUserByID(ctx context.Context, userID string) (internalflows.UserRecord, error) {
	u, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return internalflows.UserRecord{}, err
	}
	return toFlowUser(u), nil
}

func (e *Engine) resolveLocation(ctx context.Context, ip string) geo.Location {
	return e.geo.Resolve(ctx, ip)
}

// issueSession is the last step of every flow that admits a user: persist
// the session, then sign its access token.
func (e *Engine) issueSession(
	ctx context.Context,
	user internalflows.UserRecord,
	meta internalflows.ClientMeta,
	loc geo.Location,
	isLegacy bool,
) (*internalflows.SessionTokens, error) {
	refresh, err := internal.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	sess, err := e.sessions.CreateSession(ctx, session.NewSession{
		UserID:          user.UserID,
		IP:              meta.IP,
		UserAgent:       meta.UserAgent,
		Fingerprint:     meta.Fingerprint,
		DisplayName:     meta.DisplayName,
		Location:        loc,
		RawRefreshToken: refresh,
		IsLegacy:        isLegacy,
	})
	if err != nil {
		return nil, storeErr(err)
	}

	access, err := e.jwtManager.CreateAccess(user.UserID, sess.ID, user.Role)
	if err != nil {
		// An unusable session must not count against the cap.
		if rerr := e.sessions.Revoke(ctx, sess.ID); rerr != nil {
			e.warn("goGuard: revoke after sign failure", "session_id", sess.ID, "error", rerr)
		}
		return nil, err
	}

	e.metricInc(MetricSessionCreated)
	return &internalflows.SessionTokens{
		SessionID:    sess.ID,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// resolveAddress is the notifier's user-id to mailbox lookup.
func (e *Engine) resolveAddress(ctx context.Context, userID string) (string, error) {
	u, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Identity, nil
}

func (e *Engine) enqueue(msg notify.Message) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Enqueue(msg); err != nil {
		e.metricInc(MetricNotificationDropped)
	}
}

func placeName(l geo.Location) string {
	if l.IsUnknown() {
		return geo.UnknownName
	}
	return l.City + ", " + l.Country
}

// sessionHistory answers the risk engine's questions from the durable
// session store.
type sessionHistory struct {
	repo *session.Repository
}

func (h sessionHistory) HasFingerprint(ctx context.Context, userID, fingerprint string) (bool, error) {
	ok, err := h.repo.HasFingerprint(ctx, userID, fingerprint)
	return ok, storeErr(err)
}

func (h sessionHistory) LastSeen(ctx context.Context, userID string) (risk.LastSeen, error) {
	s, err := h.repo.MostRecent(ctx, userID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return risk.LastSeen{}, risk.ErrNoHistory
		}
		return risk.LastSeen{}, storeErr(err)
	}
	return risk.LastSeen{
		IP:       s.IPLastSeen,
		Location: s.Location,
		At:       s.LastActiveAt,
	}, nil
}

// loginAlerter turns the risk engine's travel alert into a notification.
type loginAlerter struct {
	engine *Engine
}

func (a loginAlerter) SuspiciousLogin(_ context.Context, userID string, travel risk.Travel) {
	a.engine.enqueue(notify.TravelAlert(
		notify.KindSuspiciousLogin,
		userID,
		placeName(travel.From),
		placeName(travel.To),
		travel.DistanceKm,
		travel.SpeedKmh,
		travel.ToTime,
	))
}
