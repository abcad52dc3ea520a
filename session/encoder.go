package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

const cacheEntryVersionCurrent = 1

var errUnsupportedEntryVersion = errors.New("unsupported cache entry version")

// EncodeEntry serialises a cache entry, stamping the current format version.
func EncodeEntry(e *CacheEntry) ([]byte, error) {
	if e == nil {
		return nil, errors.New("nil cache entry")
	}
	if e.SessionID == "" {
		return nil, errors.New("cache entry without session id")
	}
	out := *e
	out.Version = cacheEntryVersionCurrent
	return json.Marshal(&out)
}

// DecodeEntry parses a cache entry and rejects unknown format versions.
func DecodeEntry(data []byte) (*CacheEntry, error) {
	var e CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Version != cacheEntryVersionCurrent {
		return nil, fmt.Errorf("%w: %d", errUnsupportedEntryVersion, e.Version)
	}
	if e.SessionID == "" {
		return nil, errors.New("cache entry without session id")
	}
	return &e, nil
}
