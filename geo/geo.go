package geo

import (
	"context"
	"math"
	"net"
	"strings"

	"github.com/rs/zerolog"
)

// UnknownName is the city/country value of the fallback location.
const UnknownName = "Unknown"

const earthRadiusKm = 6371.0

// Location is a resolved position for an IP address.
type Location struct {
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Unknown is returned whenever resolution fails. It is deterministic so that
// downstream arithmetic never has to handle a lookup error.
var Unknown = Location{City: UnknownName, Country: UnknownName}

// IsUnknown reports whether l carries no usable position.
func (l Location) IsUnknown() bool {
	return l.Country == "" || l.Country == UnknownName
}

// Resolver maps an IP address to a Location and never fails.
type Resolver interface {
	Resolve(ctx context.Context, ip string) Location
}

// Source is a lookup backend that may fail. Wrap it with [NewResolver].
type Source interface {
	Lookup(ctx context.Context, ip string) (Location, error)
}

// ResolverFunc adapts a function to [Resolver].
type ResolverFunc func(ctx context.Context, ip string) Location

func (f ResolverFunc) Resolve(ctx context.Context, ip string) Location {
	return f(ctx, ip)
}

type fallbackResolver struct {
	source Source
	log    zerolog.Logger
}

// NewResolver wraps src so that every failure (including unparsable or
// private addresses) resolves to [Unknown].
func NewResolver(src Source, log zerolog.Logger) Resolver {
	return &fallbackResolver{source: src, log: log}
}

func (r *fallbackResolver) Resolve(ctx context.Context, ip string) Location {
	if r == nil || r.source == nil {
		return Unknown
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return Unknown
	}
	loc, err := r.source.Lookup(ctx, parsed.String())
	if err != nil {
		r.log.Debug().Err(err).Str("ip", ip).Msg("geo lookup failed, using fallback")
		return Unknown
	}
	if loc.Country == "" {
		return Unknown
	}
	if loc.City == "" {
		loc.City = UnknownName
	}
	return loc
}

// Static resolves from a fixed table. Missing entries resolve to [Unknown].
type Static map[string]Location

func (s Static) Resolve(_ context.Context, ip string) Location {
	if loc, ok := s[ip]; ok {
		return loc
	}
	return Unknown
}

// DistanceKm is the Haversine great-circle distance between a and b.
func DistanceKm(a, b Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
