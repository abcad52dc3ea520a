package goGuard

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventChallengeRequired    = "challenge_required"
	auditEventChallengeIssued      = "challenge_issued"
	auditEventChallengeSuccess     = "challenge_success"
	auditEventChallengeFailure     = "challenge_failure"
	auditEventAuthRejected         = "auth_rejected"
	auditEventHijackDetected       = "hijack_detected"
	auditEventImpossibleTravel     = "impossible_travel"
	auditEventLegacyMigrated       = "legacy_migrated"
	auditEventLegacyReplayRejected = "legacy_replay_rejected"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshFailure       = "refresh_failure"
	auditEventLogoutSession        = "logout_session"
	auditEventLogoutAll            = "logout_all"
	auditEventRoleChange           = "role_change"
	auditEventAccountCreated       = "account_created"
)

// AuditErrorCode is the stable error vocabulary of audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountUnverified  AuditErrorCode = "account_unverified"
	auditErrSessionCap         AuditErrorCode = "session_limit_exceeded"
	auditErrChallenge          AuditErrorCode = "challenge_failed"
	auditErrChallengeDevice    AuditErrorCode = "challenge_device_mismatch"
	auditErrSessionInvalid     AuditErrorCode = "session_invalid"
	auditErrHijack             AuditErrorCode = "hijack"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		Success:   success,
		Metadata:  metadata,
	}
	// Flows pass the client address as metadata; it has a field of its own.
	if ip, ok := metadata["ip"]; ok {
		event.IP = ip
		delete(metadata, "ip")
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountUnverified):
		return auditErrAccountUnverified
	case errors.Is(err, ErrSessionCapExceeded):
		return auditErrSessionCap
	case errors.Is(err, ErrChallengeFingerprintMismatch):
		return auditErrChallengeDevice
	case errors.Is(err, ErrChallengeNotFoundOrExpired),
		errors.Is(err, ErrChallengeIPMismatch),
		errors.Is(err, ErrChallengeIncorrect):
		return auditErrChallenge
	case errors.Is(err, ErrHijackDetected):
		return auditErrHijack
	case errors.Is(err, ErrSessionInvalidOrExpired):
		return auditErrSessionInvalid
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrDuplicateIdentity):
		return auditErrDuplicate
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
