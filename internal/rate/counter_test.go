package rate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisCounterTest(t *testing.T) (*RedisCounter, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCounter(rdb, "rv"), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestRedisCounterSetsExpiryOnFirstHitOnly(t *testing.T) {
	c, mr, done := newRedisCounterTest(t)
	defer done()
	ctx := context.Background()

	if n, err := c.Incr(ctx, "ip:1.2.3.4", time.Minute); err != nil || n != 1 {
		t.Fatalf("first incr: n=%d err=%v", n, err)
	}
	mr.FastForward(30 * time.Second)
	if n, err := c.Incr(ctx, "ip:1.2.3.4", time.Minute); err != nil || n != 2 {
		t.Fatalf("second incr: n=%d err=%v", n, err)
	}

	ttl := mr.TTL("rv:ip:1.2.3.4")
	if ttl > 30*time.Second || ttl <= 0 {
		t.Fatalf("expected window not to be extended, ttl=%v", ttl)
	}

	mr.FastForward(31 * time.Second)
	if n, err := c.Incr(ctx, "ip:1.2.3.4", time.Minute); err != nil || n != 1 {
		t.Fatalf("expected new window, n=%d err=%v", n, err)
	}
}

func TestRedisCounterConcurrentIncrementsAreNotLost(t *testing.T) {
	c, mr, done := newRedisCounterTest(t)
	defer done()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Incr(ctx, "fp:abc", time.Minute); err != nil {
				t.Errorf("incr: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := mr.Get("rv:fp:abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "20" {
		t.Fatalf("expected 20, got %s", got)
	}
	if mr.TTL("rv:fp:abc") <= 0 {
		t.Fatal("expected ttl to be set")
	}
}

func TestRedisCounterUnavailable(t *testing.T) {
	c, mr, done := newRedisCounterTest(t)
	defer done()
	mr.Close()

	if _, err := c.Incr(context.Background(), "ip:x", time.Minute); err == nil {
		t.Fatal("expected error when redis is down")
	}
}

func TestMemoryCounterWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewMemoryCounter(func() time.Time { return now })
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, _ := c.Incr(ctx, "k", time.Minute)
		if n != i {
			t.Fatalf("expected %d, got %d", i, n)
		}
	}
	now = now.Add(time.Minute)
	if n, _ := c.Incr(ctx, "k", time.Minute); n != 1 {
		t.Fatalf("expected window reset, got %d", n)
	}
}
