package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares resolved session entries and onboard pins across
// processes: a thin wrapper over plain Redis commands keyed under a fixed
// prefix, degrading to "miss" rather than panicking on transport errors.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing Redis client. A nil client is invalid;
// callers that want the no-Redis degrade path should use LocalCache instead.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func redisKey(key string) string {
	return "unitares:identity:" + key
}

func (c *RedisCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("identity: redis get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("identity: decode cached entry: %w", err)
	}
	return e, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("identity: encode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, redisKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("identity: redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("identity: redis delete: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
