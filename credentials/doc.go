// Package credentials is the gorm-backed user store consumed by the engine
// through goGuard.CredentialStore. It owns uniqueness of identities and the
// atomic updates of the standing risk score; it makes no authentication
// decisions.
package credentials
