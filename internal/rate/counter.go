package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is an atomic increment-with-expiry capability. The first increment
// inside a window starts the window; later increments never extend it.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// incrWithExpiryLua performs INCR and sets PEXPIRE only when the key was just
// created, in a single round trip so concurrent attempts cannot lose the TTL.
var incrWithExpiryLua = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisCounter backs [Counter] with Redis.
type RedisCounter struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisCounter creates a Redis-backed counter. Keys are namespaced under prefix.
func NewRedisCounter(redisClient redis.UniversalClient, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "arv"
	}
	return &RedisCounter{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	if window <= 0 {
		window = time.Second
	}
	count, err := incrWithExpiryLua.Run(ctx, c.redis, []string{c.prefix + ":" + key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

// MemoryCounter is an in-process [Counter] with an injectable clock. It is
// meant for tests and single-node development setups.
type MemoryCounter struct {
	mu      sync.Mutex
	now     func() time.Time
	buckets map[string]memoryBucket
}

type memoryBucket struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryCounter returns an empty in-memory counter. A nil clock uses time.Now.
func NewMemoryCounter(now func() time.Time) *MemoryCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounter{
		now:     now,
		buckets: make(map[string]memoryBucket),
	}
}

func (c *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	b, ok := c.buckets[key]
	if !ok || !now.Before(b.expiresAt) {
		b = memoryBucket{expiresAt: now.Add(window)}
	}
	b.count++
	c.buckets[key] = b
	return b.count, nil
}
