// Package goGuard is a session lifecycle and adaptive-risk authentication
// engine. It tracks every login as a device-bound session, scores login
// attempts for risk, steps risky ones up to a one-time code, and checks each
// authenticated request for device hijack and impossible travel.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// goGuard is the public surface. It exposes [Engine], [Builder], [Config],
// [CredentialStore] and value types ([TokenPair], [AuthOutcome],
// [SessionInfo], [MetricsSnapshot]). Flow orchestration, challenge and
// migration stores, token hashing and audit dispatch live under internal/.
// Session storage, risk scoring, geolocation and notification are public
// sub-packages so hosts can supply their own backends.
//
// # What this package must NOT do
//
//   - Derive IP addresses or device fingerprints; the transport layer
//     supplies them in [ClientInfo].
//   - Store raw refresh tokens or challenge codes.
//   - Block a request on notification delivery.
//   - Import any sub-package that re-imports goGuard (no import cycles).
//
// # Request path
//
// [Engine.Authenticate] costs one cache read on the common path. The
// durable store is written only when the client's IP changes or the
// activity throttle elapses.
package goGuard
