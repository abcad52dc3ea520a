package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FailureRecord is one entry of the Redis failure log. Bodies are omitted.
type FailureRecord struct {
	Kind     Kind      `json:"kind"`
	UserID   string    `json:"user_id,omitempty"`
	To       string    `json:"to,omitempty"`
	Subject  string    `json:"subject"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// RedisFailureLog keeps the most recent failures in a capped list with a
// short retention.
type RedisFailureLog struct {
	redis     redis.UniversalClient
	key       string
	maxLen    int64
	retention time.Duration
	now       func() time.Time
}

func NewRedisFailureLog(redisClient redis.UniversalClient, key string, maxLen int64, retention time.Duration) *RedisFailureLog {
	if key == "" {
		key = "anf:failures"
	}
	if maxLen <= 0 {
		maxLen = 1000
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisFailureLog{
		redis:     redisClient,
		key:       key,
		maxLen:    maxLen,
		retention: retention,
		now:       time.Now,
	}
}

func (l *RedisFailureLog) Record(ctx context.Context, msg Message, cause error) error {
	rec := FailureRecord{
		Kind:     msg.Kind,
		UserID:   msg.UserID,
		To:       msg.To,
		Subject:  msg.Subject,
		FailedAt: l.now().UTC(),
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	pipe := l.redis.TxPipeline()
	pipe.LPush(ctx, l.key, data)
	pipe.LTrim(ctx, l.key, 0, l.maxLen-1)
	pipe.Expire(ctx, l.key, l.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("notify failure log: %w", err)
	}
	return nil
}

// Recent returns up to n failures, newest first.
func (l *RedisFailureLog) Recent(ctx context.Context, n int64) ([]FailureRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := l.redis.LRange(ctx, l.key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("notify failure log: %w", err)
	}
	out := make([]FailureRecord, 0, len(raw))
	for _, item := range raw {
		var rec FailureRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
