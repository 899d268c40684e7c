package ratelimit

import (
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// New picks the limiter tier for rule: a RedisLimiter when client is
// non-nil (a shared cache is configured, so limits hold across every
// server instance), otherwise a process-local MemoryLimiter.
func New(client *redis.Client, rule Rule, logger *slog.Logger, failClosed bool) Limiter {
	if client == nil {
		return NewMemoryLimiter(rule)
	}
	return NewRedisLimiter(client, rule, logger, failClosed)
}
