package orchestrator

import (
	"context"
	"time"

	"callbridge/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// ActiveCallLimiter enforces at most one active call per target, which is
// what keeps a conference name bound to a single live call at a time.
type ActiveCallLimiter interface {
	Acquire(ctx context.Context, targetID string) (bool, error)
	Release(ctx context.Context, targetID string) error
}

// RedisLimiter implements ActiveCallLimiter on the shared Redis concurrency
// cap. The TTL bounds leaked reservations if the process dies mid-call.
type RedisLimiter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLimiter(rdb *redis.Client, ttl time.Duration) *RedisLimiter {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisLimiter{rdb: rdb, ttl: ttl}
}

func (l *RedisLimiter) key(targetID string) string { return "calls:active:" + targetID }

func (l *RedisLimiter) Acquire(ctx context.Context, targetID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, l.key(targetID), 1, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context, targetID string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, l.key(targetID))
}
