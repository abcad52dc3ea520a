package session

import "errors"

var (
	// ErrNotFound covers absent, expired, inactive and revoked sessions alike.
	ErrNotFound = errors.New("session not found")
	// ErrStoreUnavailable wraps every durable store failure.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrCacheMiss is returned by a FastStore when no entry exists.
	ErrCacheMiss = errors.New("session cache miss")
	// ErrCacheUnavailable wraps fast store transport failures.
	ErrCacheUnavailable = errors.New("session cache unavailable")
	// ErrInvalidInput is returned for structurally invalid create requests.
	ErrInvalidInput = errors.New("invalid session input")
)
