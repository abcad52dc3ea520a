package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrMigrationRedisUnavailable = errors.New("migration marker redis unavailable")

// MigrationMarkerStore records which legacy credentials have already been
// upgraded. Markers are keyed by the hash of the legacy token.
type MigrationMarkerStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewMigrationMarkerStore(redisClient redis.UniversalClient, prefix string) *MigrationMarkerStore {
	if prefix == "" {
		prefix = "alm"
	}
	return &MigrationMarkerStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *MigrationMarkerStore) key(tokenHash string) string {
	return s.prefix + ":" + tokenHash
}

// Claim sets the marker if absent. Only the first caller for a given token
// hash gets true.
func (s *MigrationMarkerStore) Claim(ctx context.Context, tokenHash, userID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	ok, err := s.redis.SetNX(ctx, s.key(tokenHash), userID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMigrationRedisUnavailable, err)
	}
	return ok, nil
}

// Release removes a marker so a migration that failed after claiming can be
// retried.
func (s *MigrationMarkerStore) Release(ctx context.Context, tokenHash string) error {
	if err := s.redis.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationRedisUnavailable, err)
	}
	return nil
}
