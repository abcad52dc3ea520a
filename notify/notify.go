package notify

import (
	"context"
	"errors"
)

// Kind classifies a message for logs, metrics and the failure log.
type Kind string

const (
	KindChallengeCode    Kind = "challenge_code"
	KindHijack           Kind = "hijack"
	KindSuspiciousLogin  Kind = "suspicious_login"
	KindImpossibleTravel Kind = "impossible_travel"
	KindInterception     Kind = "code_interception"
)

// Message is one rendered notification. When To is empty the dispatcher
// resolves it from UserID.
type Message struct {
	Kind    Kind
	UserID  string
	To      string
	Subject string
	Body    string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to [Sender].
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// AddressResolver maps a user id to a delivery address.
type AddressResolver func(ctx context.Context, userID string) (string, error)

// FailureLog keeps messages that exhausted their retries.
type FailureLog interface {
	Record(ctx context.Context, msg Message, cause error) error
}

var (
	ErrNoAddress = errors.New("notify: no delivery address")
	ErrClosed    = errors.New("notify: dispatcher closed")
	ErrQueueFull = errors.New("notify: queue full")
)
