package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds refresh throttle tuning parameters.
type Config struct {
	Enabled     bool
	MaxAttempts int
	Window      time.Duration
}

// Limiter throttles refresh attempts per principal using fixed-window
// Redis counters. A burst of refreshes for one principal is the classic
// signature of a replayed or scripted credential.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	prefix string
}

// New creates a refresh [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string, cfg Config) *Limiter {
	if prefix == "" {
		prefix = "ac"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
		prefix: prefix,
	}
}

// AllowRefresh records a refresh attempt for the principal and reports
// whether it is within budget. Returns [ErrRateLimited] once the window
// budget is exhausted.
func (l *Limiter) AllowRefresh(ctx context.Context, principalID string) error {
	if l == nil || !l.config.Enabled {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.refreshKey(principalID), l.config.Window)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the refresh counter for the principal. Called after bulk
// revocation so a legitimate re-login is not penalized for the incident
// that preceded it.
func (l *Limiter) Reset(ctx context.Context, principalID string) error {
	if l == nil || !l.config.Enabled {
		return nil
	}
	if err := l.redis.Del(ctx, l.refreshKey(principalID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the current refresh counter for a principal. Missing
// keys return zero.
func (l *Limiter) Attempts(ctx context.Context, principalID string) (int, error) {
	if l == nil || !l.config.Enabled {
		return 0, nil
	}
	count, err := l.redis.Get(ctx, l.refreshKey(principalID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) refreshKey(principalID string) string {
	return l.prefix + ":rl:refresh:" + principalID
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
