package geo

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// ErrNoRecord is returned when the database has no entry for an address.
var ErrNoRecord = errors.New("geo: no record")

// MaxMind looks addresses up in a local GeoLite2/GeoIP2 City database.
type MaxMind struct {
	reader *geoip2.Reader
}

// OpenMaxMind opens the .mmdb file at path.
func OpenMaxMind(path string) (*MaxMind, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMind{reader: reader}, nil
}

func (m *MaxMind) Lookup(_ context.Context, ip string) (Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}, fmt.Errorf("geo: invalid ip %q", ip)
	}
	record, err := m.reader.City(parsed)
	if err != nil {
		return Location{}, err
	}
	if record.Country.IsoCode == "" {
		return Location{}, ErrNoRecord
	}
	return Location{
		City:      record.City.Names["en"],
		Country:   record.Country.IsoCode,
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
	}, nil
}

func (m *MaxMind) Close() error {
	if m == nil || m.reader == nil {
		return nil
	}
	return m.reader.Close()
}
