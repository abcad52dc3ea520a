package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Config controls queueing and retry behavior.
type Config struct {
	Workers       int           `mapstructure:"workers"`
	QueueSize     int           `mapstructure:"queue_size"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	SendTimeout   time.Duration `mapstructure:"send_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Workers:       2,
		QueueSize:     256,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		SendTimeout:   10 * time.Second,
	}
}

type Option func(*Dispatcher)

func WithLogger(log zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

func WithResolver(r AddressResolver) Option {
	return func(d *Dispatcher) { d.resolve = r }
}

func WithFailureLog(f FailureLog) Option {
	return func(d *Dispatcher) { d.failures = f }
}

// Dispatcher is a bounded, fire-and-forget delivery queue.
type Dispatcher struct {
	cfg      Config
	sender   Sender
	resolve  AddressResolver
	failures FailureLog
	log      zerolog.Logger

	ch        chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	// mu orders sends against Close: nothing reaches ch once closed is set.
	mu     sync.RWMutex
	closed bool

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewDispatcher starts cfg.Workers goroutines draining the queue. Call Close
// to flush and stop them.
func NewDispatcher(sender Sender, cfg Config, opts ...Option) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	d := &Dispatcher{
		cfg:    cfg,
		sender: sender,
		log:    zerolog.Nop(),
		ch:     make(chan Message, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.run()
	}
	return d
}

// Enqueue hands msg to the workers without blocking. It returns
// [ErrQueueFull] or [ErrClosed] when the message was dropped.
func (d *Dispatcher) Enqueue(msg Message) error {
	if d == nil {
		return ErrClosed
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.ch <- msg:
		return nil
	default:
		d.dropped.Add(1)
		d.log.Warn().Str("kind", string(msg.Kind)).Str("user_id", msg.UserID).Msg("notification queue full, dropped")
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx := context.Background()

	if msg.To == "" && d.resolve != nil && msg.UserID != "" {
		to, err := d.resolve(ctx, msg.UserID)
		if err != nil {
			d.fail(ctx, msg, err)
			return
		}
		msg.To = to
	}
	if msg.To == "" {
		d.fail(ctx, msg, ErrNoAddress)
		return
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(d.cfg.RetryInterval), uint64(d.cfg.MaxRetries))
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
		err := d.sender.Send(sendCtx, msg)
		if err != nil {
			d.log.Debug().Err(err).Str("kind", string(msg.Kind)).Int("attempt", attempt).Msg("notification send failed")
		}
		return err
	}, policy)
	if err != nil {
		d.fail(ctx, msg, err)
		return
	}
	d.sent.Add(1)
}

func (d *Dispatcher) fail(ctx context.Context, msg Message, cause error) {
	d.failed.Add(1)
	d.log.Warn().Err(cause).Str("kind", string(msg.Kind)).Str("user_id", msg.UserID).Msg("notification dropped after retries")
	if d.failures == nil {
		return
	}
	if err := d.failures.Record(ctx, msg, cause); err != nil {
		d.log.Error().Err(err).Msg("notification failure log unavailable")
	}
}

// Close stops accepting messages, delivers what is queued and waits for the
// workers.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Sent() uint64 {
	if d == nil {
		return 0
	}
	return d.sent.Load()
}

func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Permanent marks err so the dispatcher stops retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	var p *backoff.PermanentError
	if errors.As(err, &p) {
		return err
	}
	return backoff.Permanent(err)
}
