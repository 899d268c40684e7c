// Package ratelimit provides the two-tier rate limiting the tool dispatch
// pipeline enforces before invoking a handler: an in-process token bucket
// by default, and a Redis-backed sliding window when a shared cache is
// configured, so limits hold across multiple server instances.
package ratelimit

import (
	"context"
	"time"
)

// Rule defines one rate limit: how many requests per window for a given
// key prefix (e.g. "tool:store_knowledge", "agent:<uuid>").
type Rule struct {
	Prefix string
	Limit  int
	Window time.Duration
}

// Result holds the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time // when the window resets, for a Retry-After-style hint
}

// Limiter checks whether a request identified by key is within its rate
// limit. Implementations bind a Rule at construction time so a caller
// holding a Limiter never needs to thread Rule through every call.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
	Close() error
}
