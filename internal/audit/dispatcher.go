package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking; events that do not fit are counted
	// as dropped instead of stalling the login or request path.
	DropIfFull bool
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithLogger reports sink panics and the first drop after each delivery.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// Dispatcher forwards audit events to a sink from one background goroutine
// so that slow sinks (Kafka, files) never sit on the authentication path.
// A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	log        zerolog.Logger

	queue     chan Event
	stop      chan struct{}
	finished  chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once

	delivered atomic.Uint64
	dropped   atomic.Uint64
	warned    atomic.Bool
}

// NewDispatcher starts the delivery goroutine. It returns nil when audit is
// disabled.
func NewDispatcher(cfg Config, sink Sink, opts ...Option) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		log:        zerolog.Nop(),
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.finished)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			// Drain whatever was accepted before Close.
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.dropped.Add(1)
			d.log.Error().Interface("panic", r).Str("event_type", ev.EventType).Msg("audit sink panicked")
		}
	}()
	d.sink.Emit(context.Background(), ev)
	d.delivered.Add(1)
	d.warned.Store(false)
}

// Emit queues ev. In blocking mode it waits for room until ctx is done;
// an event abandoned that way counts as dropped.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.drop(ev)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.drop(ev)
	case <-d.stop:
	}
}

func (d *Dispatcher) drop(ev Event) {
	d.dropped.Add(1)
	if d.warned.CompareAndSwap(false, true) {
		d.log.Warn().Str("event_type", ev.EventType).Msg("audit queue full, dropping events")
	}
}

// Close stops intake and waits for queued events to reach the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		<-d.finished
	})
}

// Dropped is the number of events that never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered is the number of events handed to the sink.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
