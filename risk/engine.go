package risk

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/geo"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/rs/zerolog"
)

// Signal names a risk contribution.
type Signal string

const (
	SignalIPVelocity          Signal = "ip_velocity"
	SignalFingerprintVelocity Signal = "fingerprint_velocity"
	SignalNewDevice           Signal = "new_device"
	SignalGeoJump             Signal = "geo_jump"
	SignalImpossibleTravel    Signal = "impossible_travel"
	SignalStandingRisk        Signal = "standing_risk"
)

// ErrNoHistory is returned by [History.LastSeen] when the user has no sessions.
var ErrNoHistory = errors.New("risk: no prior session")

// LastSeen is the most recent observation of a user.
type LastSeen struct {
	IP       string
	Location geo.Location
	At       time.Time
}

// History answers questions about a user's prior sessions.
type History interface {
	HasFingerprint(ctx context.Context, userID, fingerprint string) (bool, error)
	LastSeen(ctx context.Context, userID string) (LastSeen, error)
}

// Alerter receives the impossible-travel alert. Implementations must not block.
type Alerter interface {
	SuspiciousLogin(ctx context.Context, userID string, travel Travel)
}

// Attempt is one login attempt to score. Location is resolved once by the caller.
type Attempt struct {
	UserID       string
	IP           string
	Fingerprint  string
	StandingRisk int
	Location     geo.Location
	Now          time.Time
}

// Assessment is the outcome of scoring. Signals are for audit and metrics
// only and must not be shown to the end user.
type Assessment struct {
	Score             int
	RequiresChallenge bool
	Signals           []Signal
	Travel            *Travel
}

// Has reports whether s fired.
func (a Assessment) Has(s Signal) bool {
	for _, got := range a.Signals {
		if got == s {
			return true
		}
	}
	return false
}

// Engine scores login attempts by summing independent signal weights.
type Engine struct {
	cfg     Config
	counter rate.Counter
	history History
	alerter Alerter

	log            zerolog.Logger
	onCounterError func(Signal, error)
}

// Option configures an [Engine].
type Option func(*Engine)

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithCounterErrorHook is called for every velocity counter failure. The
// affected signal is skipped and scoring continues.
func WithCounterErrorHook(fn func(Signal, error)) Option {
	return func(e *Engine) { e.onCounterError = fn }
}

// NewEngine wires the scorer. alerter may be nil.
func NewEngine(cfg Config, counter rate.Counter, history History, alerter Alerter, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if counter == nil || history == nil {
		return nil, errors.New("risk: counter and history are required")
	}
	e := &Engine{cfg: cfg, counter: counter, history: history, alerter: alerter, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// velocity bumps the counter for key and reports whether it exceeds
// threshold. Counters are cache state: a failure skips the signal.
func (e *Engine) velocity(ctx context.Context, s Signal, key string, window time.Duration, threshold int) bool {
	n, err := e.counter.Incr(ctx, key, window)
	if err != nil {
		e.log.Warn().Err(err).Str("signal", string(s)).Msg("velocity counter unavailable, signal skipped")
		if e.onCounterError != nil {
			e.onCounterError(s, err)
		}
		return false
	}
	return n > int64(threshold)
}

// Evaluate scores a. Apart from the velocity counters and the travel alert it
// has no side effects. Only history lookups, which hit the durable store,
// return errors.
func (e *Engine) Evaluate(ctx context.Context, a Attempt) (Assessment, error) {
	if a.Now.IsZero() {
		a.Now = time.Now()
	}
	var out Assessment
	add := func(s Signal, weight int) {
		out.Score += weight
		out.Signals = append(out.Signals, s)
	}

	if a.IP != "" && e.velocity(ctx, SignalIPVelocity, "ip:"+a.IP, e.cfg.IPVelocityWindow, e.cfg.IPVelocityThreshold) {
		add(SignalIPVelocity, e.cfg.Weights.IPVelocity)
	}
	if a.Fingerprint != "" && e.velocity(ctx, SignalFingerprintVelocity, "fp:"+a.Fingerprint, e.cfg.FingerprintVelocityWindow, e.cfg.FingerprintVelocityThreshold) {
		add(SignalFingerprintVelocity, e.cfg.Weights.FingerprintVelocity)
	}

	known, err := e.history.HasFingerprint(ctx, a.UserID, a.Fingerprint)
	if err != nil {
		return Assessment{}, err
	}
	if !known {
		add(SignalNewDevice, e.cfg.Weights.NewDevice)
	}

	last, err := e.history.LastSeen(ctx, a.UserID)
	switch {
	case errors.Is(err, ErrNoHistory):
	case err != nil:
		return Assessment{}, err
	case last.IP != a.IP:
		if !last.Location.IsUnknown() && !a.Location.IsUnknown() && last.Location.Country != a.Location.Country {
			add(SignalGeoJump, e.cfg.Weights.GeoJump)
		}
		travel := MeasureTravel(last.Location, last.At, a.Location, a.Now)
		if travel.Impossible(e.cfg.ImpossibleTravelKmh) {
			add(SignalImpossibleTravel, e.cfg.Weights.ImpossibleTravel)
			out.Travel = &travel
			if e.alerter != nil {
				e.alerter.SuspiciousLogin(ctx, a.UserID, travel)
			}
		}
	}

	if a.StandingRisk > e.cfg.StandingRiskCeiling {
		add(SignalStandingRisk, e.cfg.Weights.StandingRisk)
	}

	out.RequiresChallenge = out.Score > e.cfg.ChallengeThreshold
	return out, nil
}

// ImpossibleTravelKmh exposes the configured threshold for mid-session checks.
func (e *Engine) ImpossibleTravelKmh() float64 {
	return e.cfg.ImpossibleTravelKmh
}
