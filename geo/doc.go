// Package geo resolves client IP addresses to coarse locations.
//
// Resolution never fails from the caller's point of view: any backend error
// yields [Unknown]. Backends ([MaxMind], [Cache]) implement [Source] and are
// wrapped with [NewResolver]. [DistanceKm] computes Haversine distances for
// travel-speed checks.
package geo
