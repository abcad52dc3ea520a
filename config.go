package goGuard

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/risk"
)

// Config is the complete engine configuration. Build it with
// [DefaultConfig] or [LoadConfig] and adjust fields before passing it to
// [Builder.WithConfig]. The engine copies it; later edits have no effect.
type Config struct {
	JWT          JWTConfig          `mapstructure:"jwt"`
	Session      SessionConfig      `mapstructure:"session"`
	Login        LoginConfig        `mapstructure:"login"`
	Password     password.Config    `mapstructure:"password"`
	Risk         RiskConfig         `mapstructure:"risk"`
	Challenge    ChallengeConfig    `mapstructure:"challenge"`
	Detector     DetectorConfig     `mapstructure:"detector"`
	Migration    MigrationConfig    `mapstructure:"migration"`
	Notification NotificationConfig `mapstructure:"notification"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access tokens. Refresh tokens are opaque and live
// as long as their session, see [SessionConfig.RefreshTTL].
type JWTConfig struct {
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	SigningMethod string        `mapstructure:"signing_method"` // "ed25519" (default) or "hs256"
	PrivateKey    []byte        `mapstructure:"private_key"`
	PublicKey     []byte        `mapstructure:"public_key"`
	Issuer        string        `mapstructure:"issuer"`
	Audience      string        `mapstructure:"audience"`
	Leeway        time.Duration `mapstructure:"leeway"`
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	// CacheTTL caps the lifetime of a cache entry; it is further capped by
	// the remaining refresh lifetime.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// WriteThrottle is the minimum gap between durable activity writes
	// when the IP has not changed.
	WriteThrottle     time.Duration `mapstructure:"write_throttle"`
	MaxActiveSessions int           `mapstructure:"max_active_sessions"`
	RetainInactive    int           `mapstructure:"retain_inactive"`
	RetentionWindow   time.Duration `mapstructure:"retention_window"`
	PurgeGrace        time.Duration `mapstructure:"purge_grace"`
	RedisPrefix       string        `mapstructure:"redis_prefix"`
}

/*
====================================
LOGIN CONFIG
====================================
*/

type LoginConfig struct {
	RequireVerified bool `mapstructure:"require_verified"`
}

/*
====================================
RISK CONFIG
====================================
*/

// RiskConfig holds the scoring weights and thresholds plus the Redis
// layout of the velocity counters.
type RiskConfig struct {
	risk.Config   `mapstructure:",squash"`
	CounterPrefix string `mapstructure:"counter_prefix"`
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

type ChallengeConfig struct {
	CodeDigits  int           `mapstructure:"code_digits"`
	TTL         time.Duration `mapstructure:"ttl"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
}

/*
====================================
DETECTOR CONFIG
====================================
*/

// DetectorConfig tunes the per-request checks. The speed threshold is
// shared with the risk engine ([risk.Config.ImpossibleTravelKmh]).
type DetectorConfig struct {
	TravelPenalty int `mapstructure:"travel_penalty"`
}

/*
====================================
MIGRATION CONFIG
====================================
*/

// MigrationConfig controls the upgrade of access tokens minted before
// sessions were tracked.
type MigrationConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	LegacyPenalty int           `mapstructure:"legacy_penalty"`
	MarkerTTL     time.Duration `mapstructure:"marker_ttl"`
	RedisPrefix   string        `mapstructure:"redis_prefix"`
}

/*
====================================
NOTIFICATION CONFIG
====================================
*/

type NotificationConfig struct {
	notify.Config    `mapstructure:",squash"`
	FailureLogKey    string        `mapstructure:"failure_log_key"`
	FailureLogMax    int64         `mapstructure:"failure_log_max"`
	FailureRetention time.Duration `mapstructure:"failure_retention"`
}

/*
====================================
AUDIT CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

/*
====================================
METRICS CONFIG
====================================
*/

type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

// DefaultConfig returns production defaults. Signing keys are left empty
// and must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     5 * time.Minute,
			SigningMethod: string(jwt.MethodEd25519),
			Issuer:        "goguard",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RefreshTTL:        30 * 24 * time.Hour,
			CacheTTL:          time.Hour,
			WriteThrottle:     15 * time.Minute,
			MaxActiveSessions: 5,
			RetainInactive:    5,
			RetentionWindow:   90 * 24 * time.Hour,
			PurgeGrace:        24 * time.Hour,
			RedisPrefix:       "as",
		},
		Password: password.DefaultConfig(),
		Risk: RiskConfig{
			Config:        risk.DefaultConfig(),
			CounterPrefix: "arv",
		},
		Challenge: ChallengeConfig{
			CodeDigits:  6,
			TTL:         5 * time.Minute,
			MaxAttempts: 5,
			RedisPrefix: "ach",
		},
		Detector: DetectorConfig{
			TravelPenalty: 20,
		},
		Migration: MigrationConfig{
			Enabled:       true,
			LegacyPenalty: 10,
			MarkerTTL:     24 * time.Hour,
			RedisPrefix:   "alm",
		},
		Notification: NotificationConfig{
			Config:           notify.DefaultConfig(),
			FailureLogKey:    "anf:failures",
			FailureLogMax:    1000,
			FailureRetention: 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	// -------- JWT --------
	if c.JWT.AccessTTL <= 0 {
		return errors.New("jwt.access_ttl must be > 0")
	}
	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("jwt ed25519 requires private and public keys")
		}
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("jwt hs256 secret must be at least 32 bytes")
		}
	default:
		return fmt.Errorf("jwt.signing_method %q is not supported", c.JWT.SigningMethod)
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > time.Minute {
		return errors.New("jwt.leeway must be within [0, 1m]")
	}

	// -------- SESSION --------
	if c.Session.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("session.refresh_ttl must exceed jwt.access_ttl")
	}
	if c.Session.CacheTTL <= 0 || c.Session.WriteThrottle <= 0 {
		return errors.New("session.cache_ttl and session.write_throttle must be > 0")
	}
	if c.Session.MaxActiveSessions < 0 || c.Session.RetainInactive < 0 {
		return errors.New("session limits must be >= 0")
	}
	if c.Session.RetentionWindow <= 0 || c.Session.PurgeGrace <= 0 {
		return errors.New("session.retention_window and session.purge_grace must be > 0")
	}

	// -------- RISK --------
	if err := c.Risk.Validate(); err != nil {
		return err
	}

	// -------- CHALLENGE --------
	if c.Challenge.CodeDigits < 6 || c.Challenge.CodeDigits > 10 {
		return errors.New("challenge.code_digits must be within [6, 10]")
	}
	if c.Challenge.TTL <= 0 {
		return errors.New("challenge.ttl must be > 0")
	}
	if c.Challenge.MaxAttempts <= 0 || c.Challenge.MaxAttempts > 0xffff {
		return errors.New("challenge.max_attempts must be within [1, 65535]")
	}

	// -------- DETECTOR / MIGRATION --------
	if c.Detector.TravelPenalty < 0 || c.Migration.LegacyPenalty < 0 {
		return errors.New("risk penalties must be >= 0")
	}
	if c.Migration.Enabled && c.Migration.MarkerTTL < c.JWT.AccessTTL {
		return errors.New("migration.marker_ttl must cover a full access token lifetime")
	}

	// -------- NOTIFICATION --------
	if c.Notification.Workers <= 0 || c.Notification.QueueSize <= 0 {
		return errors.New("notification workers and queue size must be > 0")
	}
	if c.Notification.MaxRetries < 0 || c.Notification.RetryInterval < 0 {
		return errors.New("notification retry policy must be >= 0")
	}

	// -------- AUDIT --------
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit.buffer_size must be > 0 when audit is enabled")
	}

	return nil
}
