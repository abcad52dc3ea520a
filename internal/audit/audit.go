package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is one audit record. Error carries a stable code, never a message.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events. Sinks are called from a single
// dispatcher goroutine but may be shared between dispatchers.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// SinkFunc adapts a plain function to [Sink].
type SinkFunc func(ctx context.Context, event Event)

func (f SinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink buffers events for a consumer. Emit waits for room until ctx
// is done.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{events: make(chan Event, max(buffer, 1))}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event { return s.events }

// JSONWriterSink writes newline-delimited JSON. The first write error is
// kept and reported by Err; later events are still attempted.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(event); err != nil && s.err == nil {
		s.err = err
	}
}

func (s *JSONWriterSink) Err() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// LogSink writes events through zerolog: successes at info, failures at
// warn.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(_ context.Context, e Event) {
	level := zerolog.InfoLevel
	if !e.Success {
		level = zerolog.WarnLevel
	}
	ev := s.log.WithLevel(level).
		Time("at", e.Timestamp).
		Str("event", e.EventType).
		Bool("success", e.Success)
	for _, f := range [...]struct{ key, val string }{
		{"user_id", e.UserID},
		{"session_id", e.SessionID},
		{"ip", e.IP},
		{"error", e.Error},
	} {
		if f.val != "" {
			ev = ev.Str(f.key, f.val)
		}
	}
	if len(e.Metadata) > 0 {
		d := zerolog.Dict()
		for k, v := range e.Metadata {
			d = d.Str(k, v)
		}
		ev = ev.Dict("metadata", d)
	}
	ev.Msg("audit")
}

// MultiSink fans every event out to each sink in order; nil entries are
// skipped.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
