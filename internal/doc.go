// Package internal contains helper utilities that are intentionally private to goGuard,
// including secure random generation and token/fingerprint hashing helpers.
//
// # Sub-packages
//
//   - audit: bounded asynchronous audit dispatcher and sinks
//   - flows: pure-function orchestrators for login, challenge, detection and request authentication
//   - rate: atomic increment-with-expiry counters backing the risk velocity signals
//   - stores: Redis-backed challenge and legacy-migration records
//
// # What this package must NOT do
//
//   - Export types that appear in the public goGuard API.
//   - Be imported by any package outside the goGuard module.
package internal
