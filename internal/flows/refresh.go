package flows

import (
	"context"
	"errors"
)

// RefreshErrors carries host-level sentinel errors used by the refresh flow.
type RefreshErrors struct {
	EngineNotReady          error
	SessionInvalidOrExpired error
	UserNotFound            error
}

// RefreshDeps captures refresh dependencies. Validation and detection are
// shared with the request authenticator.
type RefreshDeps struct {
	Authenticate AuthenticateDeps
	GetUserByID  func(context.Context, string) (UserRecord, error)
	IssueAccess  func(userID, sessionID, role string) (string, error)
	Errors       RefreshErrors
}

// RunRefresh validates a refresh token from the presenting device and signs
// a new access token for its session. The refresh token itself is kept.
func RunRefresh(ctx context.Context, refreshToken string, meta ClientMeta, deps RefreshDeps) (*SessionTokens, error) {
	auth := deps.Authenticate
	if auth.HashToken == nil || auth.ValidateAndRefresh == nil || deps.GetUserByID == nil || deps.IssueAccess == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if refreshToken == "" {
		return nil, deps.Errors.SessionInvalidOrExpired
	}

	snap, err := auth.ValidateAndRefresh(ctx, auth.HashToken(refreshToken), meta.IP)
	if err != nil {
		if auth.SessionNotFound != nil && errors.Is(err, auth.SessionNotFound) {
			return nil, deps.Errors.SessionInvalidOrExpired
		}
		return nil, err
	}

	verdict, err := RunDetect(ctx, snap, meta, auth.Detect)
	if err != nil {
		return nil, err
	}
	if verdict.Verdict == DetectHijack {
		return nil, deps.Errors.SessionInvalidOrExpired
	}

	user, err := deps.GetUserByID(ctx, snap.UserID)
	if err != nil {
		if deps.Errors.UserNotFound != nil && errors.Is(err, deps.Errors.UserNotFound) {
			return nil, deps.Errors.SessionInvalidOrExpired
		}
		return nil, err
	}

	access, err := deps.IssueAccess(user.UserID, snap.SessionID, user.Role)
	if err != nil {
		return nil, err
	}
	return &SessionTokens{
		SessionID:    snap.SessionID,
		AccessToken:  access,
		RefreshToken: refreshToken,
	}, nil
}
