package goGuard

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown identity or a wrong
	// password. The two cases are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionCapExceeded is returned when the user already holds the
	// maximum number of active sessions.
	ErrSessionCapExceeded = errors.New("active session limit reached")
	// ErrChallengeRequired is returned by [Engine.Login] when the attempt
	// scored above the challenge threshold and a code was sent.
	ErrChallengeRequired = errors.New("challenge required")
	// ErrChallengeNotFoundOrExpired is returned when no live challenge exists
	// for the identity.
	ErrChallengeNotFoundOrExpired = errors.New("challenge not found or expired")
	// ErrChallengeIPMismatch is returned when a code is presented from a
	// different network than the one that requested it.
	ErrChallengeIPMismatch = errors.New("challenge ip mismatch")
	// ErrChallengeFingerprintMismatch is returned when a code is presented
	// from a different device. The challenge is cancelled.
	ErrChallengeFingerprintMismatch = errors.New("challenge device mismatch")
	// ErrChallengeIncorrect is returned for a wrong code.
	ErrChallengeIncorrect = errors.New("challenge code incorrect")
	// ErrSessionInvalidOrExpired is the only session failure callers see.
	ErrSessionInvalidOrExpired = errors.New("session invalid or expired")
	// ErrHijackDetected is recorded in audit events when a session is revoked
	// for a device mismatch. It is never returned to callers.
	ErrHijackDetected = errors.New("session hijack detected")
	// ErrStoreUnavailable wraps failures of the durable store, Redis, or the
	// credential store.
	ErrStoreUnavailable = errors.New("backing store unavailable")

	ErrAccountUnverified = errors.New("account unverified")
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateIdentity = errors.New("identity already registered")
	ErrTokenInvalid      = errors.New("token invalid")
	ErrEngineNotReady    = errors.New("engine not initialized")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidRole       = errors.New("invalid role")
)
