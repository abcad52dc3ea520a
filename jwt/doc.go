// Package jwt issues and verifies short-lived access tokens. Tokens carry the
// user id, role and, for tracked sessions, the session id.
package jwt
