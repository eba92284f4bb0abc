package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter answers whether a write to a resource class may proceed.
type Limiter interface {
	Allow(ctx context.Context, actorID, resource string) (bool, error)
}

// RedisLimiter implements a sliding-window quota over a Redis sorted set per
// (actor, resource class).
type RedisLimiter struct {
	client *redis.Client
	max    int
	window time.Duration
}

// NewRedisLimiter builds a limiter allowing max writes per window.
func NewRedisLimiter(client *redis.Client, max int, window time.Duration) *RedisLimiter {
	if max <= 0 {
		max = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{client: client, max: max, window: window}
}

// Allow records the attempt and reports whether it fits the window. Rejected
// attempts are not recorded, so a sustained burst does not extend the penalty.
func (l *RedisLimiter) Allow(ctx context.Context, actorID, resource string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", resource, actorID)
	now := time.Now()
	windowStart := now.Add(-l.window)

	if err := l.client.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10)).Err(); err != nil {
		return false, err
	}
	count, err := l.client.ZCard(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count >= int64(l.max) {
		return false, nil
	}

	member := strconv.FormatInt(now.UnixNano(), 10)
	pipe := l.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Unlimited returns a limiter that always allows; used when rate limiting is
// disabled by configuration.
func Unlimited() Limiter {
	return unlimited{}
}

type unlimited struct{}

func (unlimited) Allow(context.Context, string, string) (bool, error) {
	return true, nil
}
