// Package session owns session creation, validation and termination across a
// fast cache and a durable store.
//
// # Dual-store protocol
//
// [Repository] reads through the [FastStore] (Redis) to the [DurableStore]
// (gorm). Cache entries are keyed by the SHA-256 of the refresh token and
// their TTL is always min(CacheTTL, remaining refresh lifetime). Durable
// activity writes are throttled to one per WriteThrottle interval, except IP
// changes which are written immediately.
//
// Fast store failures are logged and absorbed. Durable store failures abort
// the operation with [ErrStoreUnavailable].
//
// # What this package must NOT do
//
//   - Import goGuard or jwt (no upward imports).
//   - Derive IP, user agent or fingerprint from requests.
//   - Store raw refresh tokens.
package session
