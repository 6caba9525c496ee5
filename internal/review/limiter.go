package review

import (
	"context"
	"fmt"
	"time"

	"bank-risk-audit/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// ClaimLimiter caps how many tasks one auditor may hold IN_PROGRESS.
type ClaimLimiter interface {
	Acquire(ctx context.Context, auditorID string) (bool, error)
	Release(ctx context.Context, auditorID string) error
}

// RedisClaimLimiter keeps one counter per auditor in Redis. Slots expire
// after TTL so a crashed process cannot pin an auditor at the cap.
type RedisClaimLimiter struct {
	rdb    *redis.Client
	limit  int
	ttl    time.Duration
	prefix string
}

func NewRedisClaimLimiter(rdb *redis.Client, limit int, ttl time.Duration) (*RedisClaimLimiter, error) {
	if rdb == nil {
		return nil, fmt.Errorf("review: redis client is nil")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("review: claim limit must be > 0")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisClaimLimiter{rdb: rdb, limit: limit, ttl: ttl, prefix: "review:claims:"}, nil
}

func (l *RedisClaimLimiter) key(auditorID string) string { return l.prefix + auditorID }

func (l *RedisClaimLimiter) Acquire(ctx context.Context, auditorID string) (bool, error) {
	return utils.AcquireSlot(ctx, l.rdb, l.key(auditorID), l.limit, l.ttl)
}

func (l *RedisClaimLimiter) Release(ctx context.Context, auditorID string) error {
	return utils.ReleaseSlot(ctx, l.rdb, l.key(auditorID))
}
