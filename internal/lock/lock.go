// Package lock implements the per-agent advisory lock and stale-process
// registry. Locks are rows in storage.Store rather than filesystem-based,
// but the acquisition protocol (create atomically, detect staleness, retry,
// surface LOCK_TIMEOUT) follows the same shape as a filesystem lock manager.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/CIRWEL/unitares-sub004/internal/apierr"
	"github.com/CIRWEL/unitares-sub004/internal/storage"
)

// Store is the subset of storage.Store the lock manager needs.
type Store interface {
	AcquireLock(ctx context.Context, lock storage.Lock) (storage.Lock, error)
	ReleaseLock(ctx context.Context, agentID, holderID string) error
	GetLock(ctx context.Context, agentID string) (storage.Lock, bool, error)
	ListStaleLocks(ctx context.Context, olderThan time.Time) ([]storage.Lock, error)
}

// Manager acquires and releases per-agent locks, reclaiming ones held by a
// process that is no longer alive or that have simply aged out.
type Manager struct {
	store     Store
	logger    *slog.Logger
	host      string
	maxAge    time.Duration
	maxRetries int
}

// New constructs a Manager. maxAge is the lock-age staleness threshold
// (default 300s); maxRetries bounds the acquisition retry loop.
func New(store Store, logger *slog.Logger, maxAge time.Duration, maxRetries int) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	host, _ := os.Hostname()
	return &Manager{store: store, logger: logger, host: host, maxAge: maxAge, maxRetries: maxRetries}
}

// Handle is returned by Acquire and must be passed to Release.
type Handle struct {
	AgentID  string
	HolderID string
}

// Acquire implements the create/staleness-check/retry/timeout protocol.
// holderID identifies the logical caller (e.g. a dispatch request id), kept
// distinct from the OS pid so two holders in the same process don't collide.
func (m *Manager) Acquire(ctx context.Context, agentID, holderID string, timeout time.Duration) (Handle, error) {
	deadline := time.Now().Add(timeout)
	attempt := 0
	for {
		lock, err := m.store.AcquireLock(ctx, storage.Lock{
			AgentID:    agentID,
			HolderID:   holderID,
			PID:        os.Getpid(),
			Host:       m.host,
			AcquiredAt: time.Now().UTC(),
			ExpiresAt:  time.Now().UTC().Add(m.maxAge),
		})
		if err == nil {
			return Handle{AgentID: lock.AgentID, HolderID: lock.HolderID}, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return Handle{}, fmt.Errorf("lock: acquire %s: %w", agentID, err)
		}

		if m.reclaimIfStale(ctx, agentID) {
			continue // retry immediately, no backoff, since we just freed it
		}

		attempt++
		if time.Now().After(deadline) || (m.maxRetries > 0 && attempt >= m.maxRetries) {
			m.sweepStale(ctx)
			return Handle{}, apierr.New(apierr.CategorySystem, apierr.CodeLockTimeout,
				fmt.Sprintf("lock: could not acquire lock for agent %s after %d attempts", agentID, attempt)).
				WithRecovery("retry the call; a stale-lock sweep just ran")
		}

		backoff := time.Duration(10+rand.IntN(40)) * time.Millisecond
		select {
		case <-ctx.Done():
			return Handle{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// Release frees the lock, a no-op error if it was already released or
// reassigned to a different holder.
func (m *Manager) Release(ctx context.Context, h Handle) error {
	if err := m.store.ReleaseLock(ctx, h.AgentID, h.HolderID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lock: release %s: %w", h.AgentID, err)
	}
	return nil
}

// reclaimIfStale checks the lock currently held for agentID and removes it
// if the holding process is dead or the lock has aged past maxAge.
func (m *Manager) reclaimIfStale(ctx context.Context, agentID string) bool {
	current, found, err := m.store.GetLock(ctx, agentID)
	if err != nil || !found {
		return false
	}
	if !m.isStale(current) {
		return false
	}
	if err := m.store.ReleaseLock(ctx, agentID, current.HolderID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		m.logger.Warn("lock: failed to reclaim stale lock", "agent_id", agentID, "error", err)
		return false
	}
	m.logger.Info("lock: reclaimed stale lock", "agent_id", agentID, "pid", current.PID, "host", current.Host)
	return true
}

func (m *Manager) isStale(l storage.Lock) bool {
	if time.Since(l.AcquiredAt) > m.maxAge {
		return true
	}
	if l.Host != m.host {
		// Cross-host liveness can't be checked via the local process table;
		// age is the only signal available.
		return false
	}
	alive, err := process.PidExists(int32(l.PID))
	if err != nil {
		return false
	}
	return !alive
}

// sweepStale performs an aggressive cleanup pass after a LOCK_TIMEOUT:
// reclaim every stale lock in one pass, not just the one that was contended.
func (m *Manager) sweepStale(ctx context.Context) {
	stale, err := m.store.ListStaleLocks(ctx, time.Now().Add(-m.maxAge))
	if err != nil {
		m.logger.Warn("lock: sweep: list stale locks failed", "error", err)
		return
	}
	for _, l := range stale {
		if err := m.store.ReleaseLock(ctx, l.AgentID, l.HolderID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("lock: sweep: release failed", "agent_id", l.AgentID, "error", err)
		}
	}
}
