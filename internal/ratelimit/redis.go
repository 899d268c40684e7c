package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript atomically evicts entries outside the window, counts
// what remains, and either admits or rejects the new request — all in one
// round trip so concurrent callers across server instances never race on
// the count.
//
// KEYS[1] = sorted set key
// ARGV[1] = window start (oldest allowed timestamp, microseconds)
// ARGV[2] = now (microseconds)
// ARGV[3] = limit
// ARGV[4] = unique member id (avoids ZADD collisions on the same microsecond)
// ARGV[5] = key TTL in seconds
//
// Returns {allowed (0 or 1), current_count, reset_after_micros}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]
local ttl = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, ttl)
    return {1, count + 1, 0}
else
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local reset_after = 0
    if #oldest >= 2 then
        reset_after = tonumber(oldest[2]) - window_start
    end
    redis.call('EXPIRE', key, ttl)
    return {0, count, reset_after}
end
`)

// RedisLimiter implements Limiter with a Redis-backed sliding window,
// shared across every server instance pointed at the same Redis.
type RedisLimiter struct {
	client     *redis.Client
	rule       Rule
	logger     *slog.Logger
	counter    atomic.Uint64
	failClosed bool // on Redis error: deny (true) or allow (false)
}

// NewRedisLimiter builds a RedisLimiter enforcing rule against client.
// When failClosed is true, a Redis error denies the request; otherwise it
// allows it (fail-open), logging either way.
func NewRedisLimiter(client *redis.Client, rule Rule, logger *slog.Logger, failClosed bool) *RedisLimiter {
	return &RedisLimiter{client: client, rule: rule, logger: logger, failClosed: failClosed}
}

// Allow checks whether key is within the sliding window for this limiter's rule.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now()
	nowMicro := now.UnixMicro()
	windowStart := now.Add(-l.rule.Window).UnixMicro()
	ttlSeconds := int(l.rule.Window.Seconds()) + 10
	seq := l.counter.Add(1)
	member := fmt.Sprintf("%d:%d", nowMicro, seq)

	redisKey := fmt.Sprintf("unitares:rl:%s:%s", l.rule.Prefix, key)

	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{redisKey},
		windowStart, nowMicro, l.rule.Limit, member, ttlSeconds,
	).Int64Slice()

	if err != nil {
		if l.failClosed {
			l.logger.Error("ratelimit: redis error, denying request (fail-closed)", "error", err, "key", redisKey)
			return Result{Allowed: false, Limit: l.rule.Limit, Remaining: 0, ResetAt: now.Add(l.rule.Window)}, nil
		}
		l.logger.Warn("ratelimit: redis error, allowing request (fail-open)", "error", err, "key", redisKey)
		return Result{Allowed: true, Limit: l.rule.Limit, Remaining: l.rule.Limit, ResetAt: now.Add(l.rule.Window)}, nil
	}

	allowed := res[0] == 1
	count := int(res[1])
	remaining := l.rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now.Add(l.rule.Window)
	if !allowed && res[2] > 0 {
		resetAt = now.Add(time.Duration(res[2]) * time.Microsecond)
	}

	return Result{Allowed: allowed, Limit: l.rule.Limit, Remaining: remaining, ResetAt: resetAt}, nil
}

// Close shuts down the underlying Redis client.
func (l *RedisLimiter) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}
