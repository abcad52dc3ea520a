package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const minCacheTTL = time.Second

// FastStore is the ephemeral half of the session repository.
type FastStore interface {
	Get(ctx context.Context, refreshHash string) (*CacheEntry, error)
	Set(ctx context.Context, refreshHash string, entry *CacheEntry, ttl time.Duration) error
	Delete(ctx context.Context, refreshHashes ...string) error
}

// RedisStore keeps cache entries as JSON blobs under "<prefix>:<refreshHash>".
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a [FastStore] backed by the given Redis client.
func NewRedisStore(redisClient redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "as"
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisStore) key(refreshHash string) string {
	return s.prefix + ":" + refreshHash
}

func (s *RedisStore) Get(ctx context.Context, refreshHash string) (*CacheEntry, error) {
	data, err := s.redis.Get(ctx, s.key(refreshHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	entry, err := DecodeEntry(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return entry, nil
}

// Set writes the entry with the given TTL. TTLs below one second are raised
// to one second so a nearly-expired token still gets a usable entry; expiry
// itself is enforced against RefreshTokenExpiry, not the key TTL.
func (s *RedisStore) Set(ctx context.Context, refreshHash string, entry *CacheEntry, ttl time.Duration) error {
	data, err := EncodeEntry(entry)
	if err != nil {
		return err
	}
	if ttl < minCacheTTL {
		ttl = minCacheTTL
	}
	if err := s.redis.Set(ctx, s.key(refreshHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, refreshHashes ...string) error {
	if len(refreshHashes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(refreshHashes))
	for _, h := range refreshHashes {
		if h != "" {
			keys = append(keys, s.key(h))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}
