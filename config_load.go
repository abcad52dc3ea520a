package goGuard

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// GOGUARD_SESSION_MAX_ACTIVE_SESSIONS=3.
const EnvPrefix = "GOGUARD"

// LoadConfig reads path (YAML, TOML or JSON; optional) on top of
// [DefaultConfig], applies GOGUARD_* environment overrides and validates
// the result.
func LoadConfig(path string) (Config, error) {
	v := NewViper()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("stat config %s: %w", path, err)
		}
	}
	return ConfigFromViper(v)
}

// NewViper returns a viper instance preloaded with the engine defaults and
// the environment binding. Hosts that keep their own settings in the same
// file register them on this instance before reading.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	return v
}

// ConfigFromViper decodes the engine sections of v and validates them.
func ConfigFromViper(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		stringToKeyBytesHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var bytesType = reflect.TypeOf([]byte(nil))

// stringToKeyBytesHook decodes key material. A "base64:" prefix marks an
// encoded value; anything else is taken verbatim.
func stringToKeyBytesHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != bytesType {
		return data, nil
	}
	s := data.(string)
	if enc, ok := strings.CutPrefix(s, "base64:"); ok {
		return base64.StdEncoding.DecodeString(enc)
	}
	return []byte(s), nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from the file.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("jwt.access_ttl", d.JWT.AccessTTL)
	v.SetDefault("jwt.signing_method", d.JWT.SigningMethod)
	v.SetDefault("jwt.private_key", "")
	v.SetDefault("jwt.public_key", "")
	v.SetDefault("jwt.issuer", d.JWT.Issuer)
	v.SetDefault("jwt.audience", d.JWT.Audience)
	v.SetDefault("jwt.leeway", d.JWT.Leeway)

	v.SetDefault("session.refresh_ttl", d.Session.RefreshTTL)
	v.SetDefault("session.cache_ttl", d.Session.CacheTTL)
	v.SetDefault("session.write_throttle", d.Session.WriteThrottle)
	v.SetDefault("session.max_active_sessions", d.Session.MaxActiveSessions)
	v.SetDefault("session.retain_inactive", d.Session.RetainInactive)
	v.SetDefault("session.retention_window", d.Session.RetentionWindow)
	v.SetDefault("session.purge_grace", d.Session.PurgeGrace)
	v.SetDefault("session.redis_prefix", d.Session.RedisPrefix)

	v.SetDefault("login.require_verified", d.Login.RequireVerified)

	v.SetDefault("password.memory_kb", d.Password.Memory)
	v.SetDefault("password.time", d.Password.Time)
	v.SetDefault("password.parallelism", d.Password.Parallelism)
	v.SetDefault("password.salt_length", d.Password.SaltLength)
	v.SetDefault("password.key_length", d.Password.KeyLength)
	v.SetDefault("password.max_password_bytes", d.Password.MaxPasswordBytes)

	w := d.Risk.Weights
	v.SetDefault("risk.weights.ip_velocity", w.IPVelocity)
	v.SetDefault("risk.weights.fingerprint_velocity", w.FingerprintVelocity)
	v.SetDefault("risk.weights.new_device", w.NewDevice)
	v.SetDefault("risk.weights.geo_jump", w.GeoJump)
	v.SetDefault("risk.weights.impossible_travel", w.ImpossibleTravel)
	v.SetDefault("risk.weights.standing_risk", w.StandingRisk)
	v.SetDefault("risk.ip_velocity_threshold", d.Risk.IPVelocityThreshold)
	v.SetDefault("risk.ip_velocity_window", d.Risk.IPVelocityWindow)
	v.SetDefault("risk.fingerprint_velocity_threshold", d.Risk.FingerprintVelocityThreshold)
	v.SetDefault("risk.fingerprint_velocity_window", d.Risk.FingerprintVelocityWindow)
	v.SetDefault("risk.impossible_travel_kmh", d.Risk.ImpossibleTravelKmh)
	v.SetDefault("risk.standing_risk_ceiling", d.Risk.StandingRiskCeiling)
	v.SetDefault("risk.challenge_threshold", d.Risk.ChallengeThreshold)
	v.SetDefault("risk.counter_prefix", d.Risk.CounterPrefix)

	v.SetDefault("challenge.code_digits", d.Challenge.CodeDigits)
	v.SetDefault("challenge.ttl", d.Challenge.TTL)
	v.SetDefault("challenge.max_attempts", d.Challenge.MaxAttempts)
	v.SetDefault("challenge.redis_prefix", d.Challenge.RedisPrefix)

	v.SetDefault("detector.travel_penalty", d.Detector.TravelPenalty)

	v.SetDefault("migration.enabled", d.Migration.Enabled)
	v.SetDefault("migration.legacy_penalty", d.Migration.LegacyPenalty)
	v.SetDefault("migration.marker_ttl", d.Migration.MarkerTTL)
	v.SetDefault("migration.redis_prefix", d.Migration.RedisPrefix)

	v.SetDefault("notification.workers", d.Notification.Workers)
	v.SetDefault("notification.queue_size", d.Notification.QueueSize)
	v.SetDefault("notification.max_retries", d.Notification.MaxRetries)
	v.SetDefault("notification.retry_interval", d.Notification.RetryInterval)
	v.SetDefault("notification.send_timeout", d.Notification.SendTimeout)
	v.SetDefault("notification.failure_log_key", d.Notification.FailureLogKey)
	v.SetDefault("notification.failure_log_max", d.Notification.FailureLogMax)
	v.SetDefault("notification.failure_retention", d.Notification.FailureRetention)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", d.Audit.DropIfFull)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.enable_latency_histograms", d.Metrics.EnableLatencyHistograms)
}
