package goGuard

import (
	"context"
	"io"
	"time"

	"github.com/MrEthical07/goGuard/geo"
	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
	"github.com/rs/zerolog"
)

// Role is the coarse authorization level carried in access tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// UserRecord is the account record returned by a [CredentialStore].
// RiskScore only grows, except for the reset after a passed challenge.
type UserRecord struct {
	ID           string
	Identity     string
	PasswordHash string
	Role         Role
	Verified     bool
	RiskScore    int
}

// CredentialStore is the user database the engine authenticates against.
// Implementations return [ErrUserNotFound] for missing users,
// [ErrDuplicateIdentity] for a taken identity and wrap every other failure
// in [ErrStoreUnavailable].
type CredentialStore interface {
	GetUserByIdentity(ctx context.Context, identity string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, rec UserRecord) (UserRecord, error)
	UpdateRole(ctx context.Context, userID string, role Role) error
	IncrementRiskScore(ctx context.Context, userID string, delta int) error
	ResetRiskScore(ctx context.Context, userID string) error
}

// ClientInfo is what the transport layer derived from the request. The
// engine never computes a fingerprint itself.
type ClientInfo struct {
	IP          string
	UserAgent   string
	Fingerprint string
	DisplayName string
}

// TokenPair is a freshly issued credential set bound to one session.
type TokenPair struct {
	SessionID    string
	AccessToken  string
	RefreshToken string
}

// LoginResult is returned by [Engine.LoginWithResult] and
// [Engine.ConfirmLoginChallenge]. Tokens are empty when ChallengeRequired
// is set; the code has been sent to the account's address.
type LoginResult struct {
	TokenPair
	ChallengeRequired bool
}

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	UserID    string
	Role      Role
	SessionID string
}

// AuthOutcome is the result of [Engine.Authenticate]. It is one of
// [Allowed], [Migrated] or [Rejected].
type AuthOutcome interface {
	isAuthOutcome()
}

// Allowed admits the request. Suspicious is set when this request moved the
// session implausibly far; the user has been notified.
type Allowed struct {
	UserID     string
	Role       Role
	SessionID  string
	Suspicious bool
}

// Migrated admits a request that carried a legacy credential. The caller
// must hand the new pair back to the client.
type Migrated struct {
	UserID       string
	Role         Role
	SessionID    string
	AccessToken  string
	RefreshToken string
}

// RejectReason is the only detail of a rejection exposed to callers.
type RejectReason string

const (
	ReasonNoToken                 RejectReason = "no_token"
	ReasonTokenInvalid            RejectReason = "token_invalid"
	ReasonSessionInvalidOrExpired RejectReason = "session_invalid_or_expired"
)

// Rejected denies the request.
type Rejected struct {
	Reason RejectReason
}

func (Allowed) isAuthOutcome()  {}
func (Migrated) isAuthOutcome() {}
func (Rejected) isAuthOutcome() {}

func (a Allowed) Principal() Principal {
	return Principal{UserID: a.UserID, Role: a.Role, SessionID: a.SessionID}
}

func (m Migrated) Principal() Principal {
	return Principal{UserID: m.UserID, Role: m.Role, SessionID: m.SessionID}
}

// Err maps the rejection onto the public error taxonomy.
func (r Rejected) Err() error {
	if r.Reason == ReasonTokenInvalid {
		return ErrTokenInvalid
	}
	return ErrSessionInvalidOrExpired
}

// SessionInfo is one entry of the device list returned by
// [Engine.ListSessions].
type SessionInfo struct {
	ID           string
	DisplayName  string
	UserAgent    string
	IP           string
	Location     geo.Location
	CreatedAt    time.Time
	LastActiveAt time.Time
	IsLegacy     bool
	IsSuspicious bool
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per event to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// LogSink writes audit events through a zerolog logger.
type LogSink = internalaudit.LogSink

// MultiSink fans every event out to each sink in order; nil entries are
// skipped.
type MultiSink = internalaudit.MultiSink

func NewLogSink(log zerolog.Logger) *LogSink {
	return internalaudit.NewLogSink(log)
}

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
