// Package identity implements the session/identity resolver: mapping an
// opaque transport session key to a stable agent_uuid via a cache-first,
// store-fallback, create-new resolution chain.
package identity

import (
	"context"
	"time"
)

// Entry is the cached shape of a resolved session.
type Entry struct {
	AgentUUID       string `json:"agent_uuid"`
	AgentID         string `json:"agent_id"`
	ClientSessionID string `json:"client_session_id"`
}

// Cache maps session keys (and onboard pins) to resolved identity entries.
// A Redis-backed implementation shares state across processes; a local
// implementation is the degrade-to path when Redis is unavailable.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

const pinPrefix = "recent_onboard:"

// PinKey builds the cache key for a UA-hash onboard pin.
func PinKey(uaHash string) string {
	return pinPrefix + "ua:" + uaHash
}
