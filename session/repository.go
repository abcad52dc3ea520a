package session

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/geo"
	"github.com/MrEthical07/goGuard/internal"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config tunes the repository's lifetimes and retention policy.
type Config struct {
	RefreshTTL      time.Duration
	CacheTTL        time.Duration
	WriteThrottle   time.Duration
	RetainInactive  int
	RetentionWindow time.Duration
	PurgeGrace      time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		RefreshTTL:      30 * 24 * time.Hour,
		CacheTTL:        time.Hour,
		WriteThrottle:   15 * time.Minute,
		RetainInactive:  5,
		RetentionWindow: 90 * 24 * time.Hour,
		PurgeGrace:      24 * time.Hour,
	}
}

// Option customises a [Repository].
type Option func(*Repository)

func WithLogger(log zerolog.Logger) Option {
	return func(r *Repository) { r.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithCacheErrorHook is called for every fast store failure the repository
// recovers from.
func WithCacheErrorHook(fn func(op string, err error)) Option {
	return func(r *Repository) { r.onCacheError = fn }
}

// Repository reconciles the fast store and the durable store. It is the only
// authority on whether a session is currently valid.
type Repository struct {
	fast         FastStore
	durable      DurableStore
	geo          geo.Resolver
	cfg          Config
	now          func() time.Time
	log          zerolog.Logger
	onCacheError func(op string, err error)
}

// NewRepository builds a repository. fast may be nil, in which case every
// call goes to the durable store.
func NewRepository(fast FastStore, durable DurableStore, resolver geo.Resolver, cfg Config, opts ...Option) *Repository {
	def := DefaultConfig()
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = def.RefreshTTL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.WriteThrottle <= 0 {
		cfg.WriteThrottle = def.WriteThrottle
	}
	if cfg.RetainInactive < 0 {
		cfg.RetainInactive = 0
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = def.RetentionWindow
	}
	if cfg.PurgeGrace <= 0 {
		cfg.PurgeGrace = def.PurgeGrace
	}
	if resolver == nil {
		resolver = geo.Static(nil)
	}

	r := &Repository{
		fast:    fast,
		durable: durable,
		geo:     resolver,
		cfg:     cfg,
		now:     time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateSession applies the retention policy to the user's non-active
// sessions, persists a new ACTIVE session and writes its cache entry.
func (r *Repository) CreateSession(ctx context.Context, in NewSession) (*Session, error) {
	if in.UserID == "" || in.RawRefreshToken == "" {
		return nil, ErrInvalidInput
	}
	now := r.now().UTC()

	if err := r.applyRetention(ctx, in.UserID, now); err != nil {
		return nil, err
	}

	sess := &Session{
		ID:                 uuid.NewString(),
		UserID:             in.UserID,
		RefreshTokenHash:   internal.HashToken(in.RawRefreshToken),
		DeviceFingerprint:  in.Fingerprint,
		UserAgent:          in.UserAgent,
		DeviceDisplayName:  in.DisplayName,
		IPFirstSeen:        in.IP,
		IPLastSeen:         in.IP,
		IPLastChangedAt:    now,
		Location:           in.Location,
		Status:             StatusActive,
		CreatedAt:          now,
		LastActiveAt:       now,
		RefreshTokenExpiry: now.Add(r.cfg.RefreshTTL),
		IsLegacy:           in.IsLegacy,
	}
	if err := r.durable.Create(ctx, sess); err != nil {
		return nil, err
	}

	r.writeCache(ctx, sess.RefreshTokenHash, entryFromSession(sess), minDuration(r.cfg.CacheTTL, r.cfg.RefreshTTL))
	return sess, nil
}

// applyRetention keeps the most recent RetainInactive non-active sessions
// untouched and schedules the rest for hard deletion.
func (r *Repository) applyRetention(ctx context.Context, userID string, now time.Time) error {
	old, err := r.durable.ListNonActive(ctx, userID)
	if err != nil {
		return err
	}
	if len(old) <= r.cfg.RetainInactive {
		return nil
	}

	hashes := make([]string, 0, len(old)-r.cfg.RetainInactive)
	for _, s := range old[r.cfg.RetainInactive:] {
		if s.ExpireAt != nil {
			continue
		}
		deadline := s.LastActiveAt.Add(r.cfg.RetentionWindow)
		if now.Sub(s.LastActiveAt) > r.cfg.RetentionWindow {
			deadline = now.Add(r.cfg.PurgeGrace)
		}
		if err := r.durable.ScheduleExpiry(ctx, s.ID, deadline); err != nil {
			return err
		}
		hashes = append(hashes, s.RefreshTokenHash)
	}
	r.deleteCache(ctx, hashes...)
	return nil
}

// CountActive is advisory under concurrent logins; callers check it right
// before creating a session.
func (r *Repository) CountActive(ctx context.Context, userID string) (int, error) {
	return r.durable.CountActive(ctx, userID, r.now().UTC())
}

// ValidateAndRefresh is the per-request hot path. It returns ErrNotFound for
// absent, expired, inactive and revoked sessions without distinguishing them.
func (r *Repository) ValidateAndRefresh(ctx context.Context, refreshHash, currentIP string) (*Snapshot, error) {
	now := r.now().UTC()

	entry := r.readCache(ctx, refreshHash)
	cacheHit := entry != nil
	if entry == nil {
		sess, err := r.durable.FindActiveByRefreshHash(ctx, refreshHash)
		if err != nil {
			return nil, err
		}
		entry = entryFromSession(sess)
	}

	snap := snapshotFromEntry(entry)
	snap.CacheHit = cacheHit
	snap.IPChanged = entry.IPLastSeen != currentIP

	remaining := entry.RefreshTokenExpiry.Sub(now)
	if remaining <= 0 {
		// Expired tokens are never renewed.
		r.deleteCache(ctx, refreshHash)
		if _, err := r.durable.SetStatus(ctx, entry.SessionID, StatusInactive, StatusActive); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	next := *entry
	switch {
	case snap.IPChanged:
		loc := r.geo.Resolve(ctx, currentIP)
		ok, err := r.durable.RecordIPChange(ctx, entry.SessionID, IPChange{IP: currentIP, At: now, Location: loc})
		if err != nil {
			return nil, err
		}
		if !ok {
			r.deleteCache(ctx, refreshHash)
			return nil, ErrNotFound
		}
		next.IPLastSeen = currentIP
		next.IPLastChangedAt = now
		next.LastActiveAt = now
		next.Location = loc
		snap.CurrentLocation = loc
		snap.Persisted = true
	case now.Sub(entry.LastActiveAt) > r.cfg.WriteThrottle:
		ok, err := r.durable.TouchActivity(ctx, entry.SessionID, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			r.deleteCache(ctx, refreshHash)
			return nil, ErrNotFound
		}
		next.LastActiveAt = now
		snap.Persisted = true
	}

	// Capped so the entry can never outlive its refresh token.
	r.writeCache(ctx, refreshHash, &next, minDuration(r.cfg.CacheTTL, remaining))
	return snap, nil
}

// Revoke marks the session REVOKED and drops its cache entry. Unknown ids are
// not an error.
func (r *Repository) Revoke(ctx context.Context, sessionID string) error {
	return r.terminate(ctx, sessionID, StatusRevoked, StatusActive, StatusInactive)
}

// Deactivate marks the session INACTIVE (logout). A REVOKED session stays REVOKED.
func (r *Repository) Deactivate(ctx context.Context, sessionID string) error {
	return r.terminate(ctx, sessionID, StatusInactive, StatusActive)
}

func (r *Repository) terminate(ctx context.Context, sessionID string, to Status, from ...Status) error {
	sess, err := r.durable.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if _, err := r.durable.SetStatus(ctx, sessionID, to, from...); err != nil {
		return err
	}
	r.deleteCache(ctx, sess.RefreshTokenHash)
	return nil
}

// RevokeAllForUser revokes every ACTIVE session of the user and returns how
// many were revoked.
func (r *Repository) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	active, err := r.durable.ListActive(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(active) == 0 {
		return 0, nil
	}
	n, err := r.durable.SetStatusForUser(ctx, userID, StatusRevoked, StatusActive)
	if err != nil {
		return 0, err
	}
	hashes := make([]string, 0, len(active))
	for _, s := range active {
		hashes = append(hashes, s.RefreshTokenHash)
	}
	r.deleteCache(ctx, hashes...)
	return int(n), nil
}

// ListActive returns the user's live sessions, most recently active first.
func (r *Repository) ListActive(ctx context.Context, userID string) ([]Session, error) {
	all, err := r.durable.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	out := all[:0]
	for _, s := range all {
		if s.RefreshTokenExpiry.After(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Repository) HasFingerprint(ctx context.Context, userID, fingerprint string) (bool, error) {
	return r.durable.HasFingerprint(ctx, userID, fingerprint)
}

// MostRecent returns the user's most recently active session in any state.
func (r *Repository) MostRecent(ctx context.Context, userID string) (*Session, error) {
	return r.durable.MostRecent(ctx, userID)
}

func (r *Repository) MarkSuspicious(ctx context.Context, sessionID string) error {
	return r.durable.MarkSuspicious(ctx, sessionID)
}

// PurgeExpired hard-deletes sessions whose retention deadline has passed.
func (r *Repository) PurgeExpired(ctx context.Context) (int64, error) {
	return r.durable.PurgeExpired(ctx, r.now().UTC())
}

func (r *Repository) readCache(ctx context.Context, refreshHash string) *CacheEntry {
	if r.fast == nil {
		return nil
	}
	entry, err := r.fast.Get(ctx, refreshHash)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			r.cacheFailed("get", err)
		}
		return nil
	}
	return entry
}

func (r *Repository) writeCache(ctx context.Context, refreshHash string, entry *CacheEntry, ttl time.Duration) {
	if r.fast == nil {
		return
	}
	if err := r.fast.Set(ctx, refreshHash, entry, ttl); err != nil {
		r.cacheFailed("set", err)
	}
}

func (r *Repository) deleteCache(ctx context.Context, refreshHashes ...string) {
	if r.fast == nil || len(refreshHashes) == 0 {
		return
	}
	if err := r.fast.Delete(ctx, refreshHashes...); err != nil {
		r.cacheFailed("delete", err)
	}
}

func (r *Repository) cacheFailed(op string, err error) {
	r.log.Warn().Err(err).Str("op", op).Msg("session cache degraded, continuing on durable store")
	if r.onCacheError != nil {
		r.onCacheError(op, err)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
