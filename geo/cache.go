package geo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Cache memoises a [Source] in Redis. Concurrent misses for the same address
// share one upstream lookup. Redis failures fall through to the source.
type Cache struct {
	redis  redis.UniversalClient
	source Source
	prefix string
	ttl    time.Duration
	group  singleflight.Group
	log    zerolog.Logger
}

// NewCache wraps src with a Redis cache whose entries live for ttl.
func NewCache(redisClient redis.UniversalClient, src Source, prefix string, ttl time.Duration, log zerolog.Logger) *Cache {
	if prefix == "" {
		prefix = "ageo"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{
		redis:  redisClient,
		source: src,
		prefix: prefix,
		ttl:    ttl,
		log:    log,
	}
}

func (c *Cache) key(ip string) string {
	return c.prefix + ":" + ip
}

func (c *Cache) Lookup(ctx context.Context, ip string) (Location, error) {
	data, err := c.redis.Get(ctx, c.key(ip)).Bytes()
	switch {
	case err == nil:
		var loc Location
		if jsonErr := json.Unmarshal(data, &loc); jsonErr == nil {
			return loc, nil
		}
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Msg("geo cache read failed")
	}

	v, err, _ := c.group.Do(ip, func() (any, error) {
		return c.source.Lookup(ctx, ip)
	})
	if err != nil {
		return Location{}, err
	}
	loc := v.(Location)

	if encoded, jsonErr := json.Marshal(loc); jsonErr == nil {
		if setErr := c.redis.Set(ctx, c.key(ip), encoded, c.ttl).Err(); setErr != nil {
			c.log.Warn().Err(setErr).Msg("geo cache write failed")
		}
	}
	return loc, nil
}
