package risk

import (
	"math"
	"time"

	"github.com/MrEthical07/goGuard/geo"
)

// Travel describes the movement between two observations of the same user.
type Travel struct {
	From       geo.Location
	To         geo.Location
	FromTime   time.Time
	ToTime     time.Time
	DistanceKm float64
	SpeedKmh   float64
}

// SpeedKmh is the implied travel speed. Zero or negative elapsed time yields
// zero rather than an infinite or NaN speed.
func SpeedKmh(distanceKm float64, elapsed time.Duration) float64 {
	if distanceKm <= 0 || elapsed <= 0 {
		return 0
	}
	speed := distanceKm / elapsed.Hours()
	if math.IsInf(speed, 0) || math.IsNaN(speed) {
		return 0
	}
	return speed
}

// MeasureTravel computes distance and speed between two timed locations.
func MeasureTravel(from geo.Location, fromTime time.Time, to geo.Location, toTime time.Time) Travel {
	d := geo.DistanceKm(from, to)
	return Travel{
		From:       from,
		To:         to,
		FromTime:   fromTime,
		ToTime:     toTime,
		DistanceKm: d,
		SpeedKmh:   SpeedKmh(d, toTime.Sub(fromTime)),
	}
}

// Comparable reports whether both ends carry real positions.
func (t Travel) Comparable() bool {
	return !t.From.IsUnknown() && !t.To.IsUnknown()
}

// Impossible reports whether the movement exceeds thresholdKmh.
func (t Travel) Impossible(thresholdKmh float64) bool {
	return t.Comparable() && t.SpeedKmh > thresholdKmh
}
