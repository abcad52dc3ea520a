package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/geo"
)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Login        LoginDeps
	Challenge    ChallengeDeps
	Detect       DetectDeps
	Migrate      MigrateDeps
	Authenticate AuthenticateDeps
	Refresh      RefreshDeps
}

// UserRecord is the flow-local user model.
type UserRecord struct {
	UserID       string
	Identity     string
	PasswordHash string
	Role         string
	Verified     bool
	RiskScore    int
}

// ClientMeta is what the transport layer derived from the request. The flows
// never compute these values themselves.
type ClientMeta struct {
	IP          string
	UserAgent   string
	Fingerprint string
	DisplayName string
}

// SessionTokens is a freshly issued token pair bound to one session.
type SessionTokens struct {
	SessionID    string
	AccessToken  string
	RefreshToken string
}

// IssueSessionFunc persists a new session and signs its token pair. It is
// always the last step of a flow.
type IssueSessionFunc func(ctx context.Context, user UserRecord, meta ClientMeta, loc geo.Location, isLegacy bool) (*SessionTokens, error)

// AuditFunc emits one audit event. metadata is evaluated lazily.
type AuditFunc func(ctx context.Context, event string, success bool, userID, sessionID string, err error, metadata func() map[string]string)

// errNotReady is returned by flows whose host did not wire a required
// dependency and that carry no host sentinel of their own.
var errNotReady = errors.New("flows: dependency not configured")

func noopAudit(context.Context, string, bool, string, string, error, func() map[string]string) {}

func noopMetric(int) {}

func nowOrDefault(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
