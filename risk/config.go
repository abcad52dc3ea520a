package risk

import (
	"errors"
	"time"
)

// Weights are the additive contributions of each signal.
type Weights struct {
	IPVelocity          int `mapstructure:"ip_velocity"`
	FingerprintVelocity int `mapstructure:"fingerprint_velocity"`
	NewDevice           int `mapstructure:"new_device"`
	GeoJump             int `mapstructure:"geo_jump"`
	ImpossibleTravel    int `mapstructure:"impossible_travel"`
	StandingRisk        int `mapstructure:"standing_risk"`
}

// Config holds weights and thresholds for login risk scoring.
type Config struct {
	Weights Weights `mapstructure:"weights"`

	IPVelocityThreshold          int           `mapstructure:"ip_velocity_threshold"`
	IPVelocityWindow             time.Duration `mapstructure:"ip_velocity_window"`
	FingerprintVelocityThreshold int           `mapstructure:"fingerprint_velocity_threshold"`
	FingerprintVelocityWindow    time.Duration `mapstructure:"fingerprint_velocity_window"`
	ImpossibleTravelKmh          float64       `mapstructure:"impossible_travel_kmh"`
	StandingRiskCeiling          int           `mapstructure:"standing_risk_ceiling"`
	ChallengeThreshold           int           `mapstructure:"challenge_threshold"`
}

// DefaultConfig returns the production weights. A first login from a new
// device alone stays below the challenge threshold.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			IPVelocity:          40,
			FingerprintVelocity: 25,
			NewDevice:           20,
			GeoJump:             25,
			ImpossibleTravel:    50,
			StandingRisk:        25,
		},
		IPVelocityThreshold:          5,
		IPVelocityWindow:             15 * time.Minute,
		FingerprintVelocityThreshold: 5,
		FingerprintVelocityWindow:    15 * time.Minute,
		ImpossibleTravelKmh:          800,
		StandingRiskCeiling:          50,
		ChallengeThreshold:           50,
	}
}

// Validate rejects configurations that could never score or never challenge.
func (c Config) Validate() error {
	w := c.Weights
	if w.IPVelocity < 0 || w.FingerprintVelocity < 0 || w.NewDevice < 0 ||
		w.GeoJump < 0 || w.ImpossibleTravel < 0 || w.StandingRisk < 0 {
		return errors.New("risk weights must be >= 0")
	}
	if c.IPVelocityThreshold <= 0 || c.FingerprintVelocityThreshold <= 0 {
		return errors.New("risk velocity thresholds must be > 0")
	}
	if c.IPVelocityWindow <= 0 || c.FingerprintVelocityWindow <= 0 {
		return errors.New("risk velocity windows must be > 0")
	}
	if c.ImpossibleTravelKmh <= 0 {
		return errors.New("risk impossible travel speed must be > 0")
	}
	if c.ChallengeThreshold < 0 {
		return errors.New("risk challenge threshold must be >= 0")
	}
	return nil
}
