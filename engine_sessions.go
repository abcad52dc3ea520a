package goGuard

import (
	"context"
	"strconv"
)

// Logout ends one session. It is idempotent and never resurrects or
// downgrades a revoked session.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if sessionID == "" {
		return ErrInvalidInput
	}
	if err := e.sessions.Deactivate(ctx, sessionID); err != nil {
		return storeErr(err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, "", sessionID, nil, nil)
	return nil
}

// LogoutAll revokes every active session of userID and returns how many
// were revoked.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrInvalidInput
	}
	n, err := e.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, storeErr(err)
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(n)}
	})
	return n, nil
}

// SetUserRole changes the user's role and revokes their sessions so that no
// outstanding access token keeps the old role.
func (e *Engine) SetUserRole(ctx context.Context, userID string, role Role) error {
	if e == nil || e.users == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if !role.Valid() {
		return ErrInvalidRole
	}
	if err := e.users.UpdateRole(ctx, userID, role); err != nil {
		e.emitAudit(ctx, auditEventRoleChange, false, userID, "", err, nil)
		return err
	}
	n, err := e.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventRoleChange, false, userID, "", err, nil)
		return err
	}
	e.emitAudit(ctx, auditEventRoleChange, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"role":    string(role),
			"revoked": strconv.Itoa(n),
		}
	})
	return nil
}

// ListSessions returns the user's live sessions, most recently active first.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	rows, err := e.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]SessionInfo, 0, len(rows))
	for _, s := range rows {
		out = append(out, SessionInfo{
			ID:           s.ID,
			DisplayName:  s.DeviceDisplayName,
			UserAgent:    s.UserAgent,
			IP:           s.IPLastSeen,
			Location:     s.Location,
			CreatedAt:    s.CreatedAt,
			LastActiveAt: s.LastActiveAt,
			IsLegacy:     s.IsLegacy,
			IsSuspicious: s.IsSuspicious,
		})
	}
	return out, nil
}

// PurgeExpiredSessions hard-deletes sessions past their retention deadline.
// Run it periodically; the engine does not schedule it.
func (e *Engine) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.sessions.PurgeExpired(ctx)
	return n, storeErr(err)
}
