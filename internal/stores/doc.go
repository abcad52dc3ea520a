// Package stores provides Redis-backed, short-lived records used by the
// authentication flows: step-up login challenges and legacy-migration markers.
//
// # Design
//
// Challenges are versioned, binary-encoded records stored under a single
// per-identity key with a TTL, so a new issuance replaces the previous one.
// Verification runs as one Lua script (GET, compare, count the attempt or
// DEL) and then repeats the hash comparison in constant time. Migration
// markers are plain SETNX keys.
//
// # Architecture boundaries
//
// This package owns persistence and atomicity for transient records. It does
// NOT generate codes, check IP or device binding, or make authentication
// decisions. Those belong to the flow functions in internal/flows.
//
// # What this package must NOT do
//
//   - Import goGuard or any sibling internal package.
//   - Log or expose plaintext codes or tokens.
//   - Use non-constant-time comparisons for secret matching.
package stores
