package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const defaultWriteTimeout = 5 * time.Second

// Config describes the target topic.
type Config struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Enabled reports whether enough is configured to publish.
func (c Config) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink publishes audit events as JSON to a Kafka topic. Messages are keyed
// by user ID so one user's events stay ordered within a partition.
//
// Emit runs on the audit dispatcher's worker; a failed write is logged and
// the event is dropped.
type Sink struct {
	writer       messageWriter
	writeTimeout time.Duration
	log          zerolog.Logger
}

var _ goGuard.AuditSink = (*Sink)(nil)

// New creates a sink writing to cfg.Topic. Call Close when shutting down.
func New(cfg Config, log zerolog.Logger) (*Sink, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafkasink: brokers and topic are required")
	}
	batch := cfg.BatchTimeout
	if batch <= 0 {
		batch = 50 * time.Millisecond
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batch,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
	}
	return newSink(writer, cfg.WriteTimeout, log), nil
}

func newSink(w messageWriter, timeout time.Duration, log zerolog.Logger) *Sink {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Sink{
		writer:       w,
		writeTimeout: timeout,
		log:          log.With().Str("component", "audit_kafka").Logger(),
	}
}

func (s *Sink) Emit(ctx context.Context, event goGuard.AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", event.EventType).Msg("encode audit event")
		return
	}

	// The dispatcher hands over a detached context; bound the write here.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := s.writer.WriteMessages(writeCtx, msg); err != nil {
		s.log.Warn().Err(err).Str("event_type", event.EventType).Msg("publish audit event")
	}
}

// Close flushes pending batches and closes the writer. Safe to call more
// than once.
func (s *Sink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	err := s.writer.Close()
	s.writer = nil
	return err
}
