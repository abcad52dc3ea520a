package goGuard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/session"
)

func TestLogoutEndsOnlyThatSession(t *testing.T) {
	f := newEngineFixture(t, engineTestConfig())
	f.createUser(t, "alice@example.com")
	laptop := f.login(t, "alice@example.com", laptopIn(ipBerlin))
	phone := f.login(t, "alice@example.com", phoneIn(ipBerlin))
	ctx := context.Background()

	if err := f.engine.Logout(ctx, laptop.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	// Idempotent.
	if err := f.engine.Logout(ctx, laptop.SessionID); err != nil {
		t.Fatalf("second logout: %v", err)
	}

	out, err := f.engine.Authenticate(ctx, laptop.AccessToken, laptop.RefreshToken, laptopIn(ipBerlin))
	mustRejected(t, out, err, ReasonSessionInvalidOrExpired)
	out, err = f.engine.Authenticate(ctx, phone.AccessToken, phone.RefreshToken, phoneIn(ipBerlin))
	mustAllowed(t, out, err)

	var row session.Session
	if err := f.db.Where("id = ?", laptop.SessionID).First(&row).Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	if row.Status != session.StatusInactive {
		t.Fatalf("expected INACTIVE, got %s", row.Status)
	}
}

func TestLogoutDoesNotDowngradeRevoked(t *testing.T) {
	f := newEngineFixture(t, engineTestConfig())
	f.createUser(t, "alice@example.com")
	pair := f.login(t, "alice@example.com", laptopIn(ipBerlin))
	ctx := context.Background()

	out, err := f.engine.Authenticate(ctx, pair.AccessToken, pair.RefreshToken, phoneIn(ipBerlin))
	mustRejected(t, out, err, ReasonSessionInvalidOrExpired)
	if err := f.engine.Logout(ctx, pair.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}

	var row session.Session
	if err := f.db.Where("id = ?", pair.SessionID).First(&row).Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	if row.Status != session.StatusRevoked {
		t.Fatalf("expected REVOKED to stick, got %s", row.Status)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	f := newEngineFixture(t, engineTestConfig())
	u := f.createUser(t, "alice@example.com")
	a := f.login(t, "alice@example.com", laptopIn(ipBerlin))
	b := f.login(t, "alice@example.com", phoneIn(ipBerlin))
	ctx := context.Background()

	n, err := f.engine.LogoutAll(ctx, u.ID)
	if err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revoked, got %d", n)
	}
	for _, pair := range []TokenPair{a, b} {
		out, err := f.engine.Authenticate(ctx, pair.AccessToken, pair.RefreshToken, laptopIn(ipBerlin))
		mustRejected(t, out, err, ReasonSessionInvalidOrExpired)
	}
	sessions, err := f.engine.ListSessions(ctx, u.ID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no live sessions, got %d", len(sessions))
	}
}

func TestSetUserRoleRevokesSessions(t *testing.T) {
	f := newEngineFixture(t, engineTestConfig())
	u := f.createUser(t, "alice@example.com")
	pair := f.login(t, "alice@example.com", laptopIn(ipBerlin))
	ctx := context.Background()

	if err := f.engine.SetUserRole(ctx, u.ID, Role("owner")); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if err := f.engine.SetUserRole(ctx, u.ID, RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}

	out, err := f.engine.Authenticate(ctx, pair.AccessToken, pair.RefreshToken, laptopIn(ipBerlin))
	mustRejected(t, out, err, ReasonSessionInvalidOrExpired)

	next := f.login(t, "alice@example.com", laptopIn(ipBerlin))
	out, err = f.engine.Authenticate(ctx, next.AccessToken, next.RefreshToken, laptopIn(ipBerlin))
	if a := mustAllowed(t, out, err); a.Role != RoleAdmin {
		t.Fatalf("expected admin role, got %q", a.Role)
	}

	if err := f.engine.SetUserRole(ctx, "missing", RoleAdmin); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestListSessionsMostRecentFirst(t *testing.T) {
	f := newEngineFixture(t, engineTestConfig())
	u := f.createUser(t, "alice@example.com")
	first := f.login(t, "alice@example.com", laptopIn(ipBerlin))
	f.clock.Advance(time.Minute)
	second := f.login(t, "alice@example.com", phoneIn(ipBerlin))

	sessions, err := f.engine.ListSessions(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != second.SessionID || sessions[1].ID != first.SessionID {
		t.Fatalf("unexpected order %s, %s", sessions[0].ID, sessions[1].ID)
	}
}

func TestPurgeExpiredSessions(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Session.RetainInactive = 0
	f := newEngineFixture(t, cfg)
	f.createUser(t, "alice@example.com")
	pair := f.login(t, "alice@example.com", laptopIn(ipBerlin))
	ctx := context.Background()

	if err := f.engine.Logout(ctx, pair.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	// The next login schedules the logged-out session for deletion.
	f.login(t, "alice@example.com", laptopIn(ipBerlin))

	n, err := f.engine.PurgeExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected nothing purged before the deadline, got %d", n)
	}

	f.clock.Advance(cfg.Session.RetentionWindow + time.Hour)
	n, err = f.engine.PurgeExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged, got %d", n)
	}

	var count int64
	if err := f.db.Model(&session.Session{}).Where("id = ?", pair.SessionID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatal("expected purged row to be gone")
	}
}

func TestSessionOperationsValidateInput(t *testing.T) {
	f := newEngineFixture(t, engineTestConfig())
	ctx := context.Background()
	if err := f.engine.Logout(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.engine.LogoutAll(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	var nilEngine *Engine
	if err := nilEngine.Logout(ctx, "sid"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}
