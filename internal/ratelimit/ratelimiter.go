package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// window is the fixed accounting interval. Counts reset at the top of
// every minute rather than sliding, so a caller can burst up to 2x the
// limit across a window boundary; that trade is accepted for the O(1)
// Redis cost.
const window = time.Minute

// Limiter is what the request pipeline consumes.
type Limiter interface {
	// AllowWithDetails reports whether the key may proceed, how many
	// requests remain in the current window, and when the window resets.
	// remaining is -1 and resetAt is zero when the key is unlimited.
	AllowWithDetails(ctx context.Context, key string, limit int) (bool, int, time.Time, error)
}

// RateLimiter counts requests per key in Redis with a fixed window.
type RateLimiter struct {
	client *redis.Client
}

// NewRateLimiter creates a limiter over the Redis client.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

func (l *RateLimiter) redisKey(key string) string {
	windowStart := time.Now().Truncate(window)
	return fmt.Sprintf("ratelimit:%s:%d", key, windowStart.Unix())
}

// AllowWithDetails increments the key's window counter and compares it to
// the limit. A limit of 0 or below means unlimited.
func (l *RateLimiter) AllowWithDetails(ctx context.Context, key string, limit int) (bool, int, time.Time, error) {
	if limit <= 0 {
		return true, -1, time.Time{}, nil
	}

	windowStart := time.Now().Truncate(window)
	resetAt := windowStart.Add(window)
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, windowStart.Unix())

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	// First hit in the window owns setting the TTL. The extra second
	// covers clock skew between gateway instances.
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, window+time.Second).Err(); err != nil {
			return false, 0, time.Time{}, fmt.Errorf("failed to set rate limit expiry: %w", err)
		}
	}

	if count > int64(limit) {
		return false, 0, resetAt, nil
	}

	return true, limit - int(count), resetAt, nil
}

// GetCurrentUsage returns the key's count in the current window.
func (l *RateLimiter) GetCurrentUsage(ctx context.Context, key string) (int64, error) {
	count, err := l.client.Get(ctx, l.redisKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	return count, nil
}

// Reset clears the key's counter for the current window.
func (l *RateLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit counter: %w", err)
	}
	return nil
}

// NoopLimiter allows everything. Used when rate limiting is disabled.
type NoopLimiter struct{}

// NewNoopLimiter creates a limiter that never blocks.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow always reports true.
func (l *NoopLimiter) Allow(ctx context.Context, key string) bool {
	return true
}

// AllowWithDetails always reports unlimited.
func (l *NoopLimiter) AllowWithDetails(ctx context.Context, key string, limit int) (bool, int, time.Time, error) {
	return true, -1, time.Time{}, nil
}
