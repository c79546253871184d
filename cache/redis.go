package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores snapshots as JSON blobs with native key TTL, so an
// eviction or expiry is immediately visible to every process sharing the
// Redis deployment.
type RedisBackend struct {
	redis  redis.UniversalClient
	prefix string
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend creates a [RedisBackend]. prefix namespaces the keys;
// it defaults to "ac".
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "ac"
	}
	return &RedisBackend{redis: client, prefix: prefix}
}

func (b *RedisBackend) key(principalID string) string {
	return b.prefix + ":snap:" + principalID
}

func (b *RedisBackend) Get(ctx context.Context, principalID string) (*Snapshot, error) {
	data, err := b.redis.Get(ctx, b.key(principalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// Unreadable entries behave like misses and are dropped.
		_ = b.redis.Del(ctx, b.key(principalID)).Err()
		return nil, ErrNotFound
	}
	return &snap, nil
}

func (b *RedisBackend) Set(ctx context.Context, principalID string, snap *Snapshot, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := b.redis.Set(ctx, b.key(principalID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, principalID string) error {
	if err := b.redis.Del(ctx, b.key(principalID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
