// Package middleware exposes HTTP adapters over goGuard.Engine.
//
// # Guards
//
//   - [Guard] authenticates the request and attaches a goGuard.Principal.
//   - [RequireRole] restricts a route to the given roles.
//
// Guard reads the access token from the Authorization header (or the
// access_token cookie), the refresh token from X-Refresh-Token (or the
// refresh_token cookie), and derives client metadata with
// [ClientInfoFromRequest].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; every decision comes from
// Engine.Authenticate.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis or the database (Engine handles I/O).
//   - Reveal why a request was rejected beyond the three public reasons.
package middleware
