package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender records deliveries in the log instead of sending them. It is
// meant for development; bodies are never logged.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info().
		Str("kind", string(msg.Kind)).
		Str("user_id", msg.UserID).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("notification")
	return nil
}
