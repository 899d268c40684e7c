// Package scheduler runs the background sweeps that keep durable state
// from going stale between check-ins: auto-failing dialectic sessions
// nobody has touched in a while, and pruning the process registry's
// dead-pid entries. Both are cron jobs rather than one-shot goroutines so
// operators can see and adjust their cadence independently of the server
// process's own lifetime.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/CIRWEL/unitares-sub004/internal/dialectic"
	"github.com/CIRWEL/unitares-sub004/internal/lock"
	"github.com/CIRWEL/unitares-sub004/internal/model"
)

const (
	// DefaultDialecticSweepSpec runs the stuck-session sweep every 5 minutes.
	DefaultDialecticSweepSpec = "@every 5m"
	// DefaultProcessPruneSpec prunes the process registry every minute.
	DefaultProcessPruneSpec = "@every 1m"
)

// Store is the subset of storage.Store the scheduler needs, kept narrow so
// tests can fake it without pulling in the full interface.
type Store interface {
	ListStuckDialecticSessions(ctx context.Context, olderThan time.Time) ([]model.DialecticSession, error)
	UpsertDialecticSession(ctx context.Context, s model.DialecticSession) (model.DialecticSession, error)
}

// Scheduler owns a cron.Cron instance and the jobs registered on it. It is
// a thin wrapper: each job is a plain method below, registered by New so a
// caller only has to call Start/Stop.
type Scheduler struct {
	cron     *cron.Cron
	store    Store
	registry *lock.ProcessRegistry
	logger   *slog.Logger

	dialecticStuckThreshold time.Duration
	dialecticSweepSpec      string
	processPruneSpec        string
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithDialecticSweepSpec overrides DefaultDialecticSweepSpec.
func WithDialecticSweepSpec(spec string) Option {
	return func(s *Scheduler) { s.dialecticSweepSpec = spec }
}

// WithProcessPruneSpec overrides DefaultProcessPruneSpec.
func WithProcessPruneSpec(spec string) Option {
	return func(s *Scheduler) { s.processPruneSpec = spec }
}

// New builds a Scheduler and registers its jobs, but does not start running
// them — call Start for that. registry may be nil to skip the process-prune
// job entirely (e.g. a deployment shape with no local process table to
// track).
func New(store Store, registry *lock.ProcessRegistry, logger *slog.Logger, dialecticStuckThreshold time.Duration, opts ...Option) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:                    cron.New(),
		store:                   store,
		registry:                registry,
		logger:                  logger,
		dialecticStuckThreshold: dialecticStuckThreshold,
		dialecticSweepSpec:      DefaultDialecticSweepSpec,
		processPruneSpec:        DefaultProcessPruneSpec,
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := s.cron.AddFunc(s.dialecticSweepSpec, s.sweepStuckDialecticSessions); err != nil {
		return nil, err
	}
	if s.registry != nil {
		if _, err := s.cron.AddFunc(s.processPruneSpec, s.pruneProcessRegistry); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start runs the registered jobs on their schedules in a background
// goroutine managed by the underlying cron.Cron.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler and waits for any in-flight job to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

// sweepStuckDialecticSessions auto-fails any active dialectic session that
// has had no activity for longer than dialecticStuckThreshold (C9).
func (s *Scheduler) sweepStuckDialecticSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	stuck, err := s.store.ListStuckDialecticSessions(ctx, now.Add(-s.dialecticStuckThreshold))
	if err != nil {
		s.logger.Warn("scheduler: list stuck dialectic sessions failed", "error", err)
		return
	}

	var swept int
	for _, session := range stuck {
		next, ok := dialectic.CheckStuck(session, s.dialecticStuckThreshold, now)
		if !ok {
			continue
		}
		if _, err := s.store.UpsertDialecticSession(ctx, next); err != nil {
			s.logger.Warn("scheduler: auto-fail stuck dialectic session failed",
				"session_id", session.SessionID, "error", err)
			continue
		}
		swept++
	}
	if swept > 0 {
		s.logger.Info("scheduler: auto-failed stuck dialectic sessions", "count", swept)
	}
}

// pruneProcessRegistry removes dead-pid entries from the process registry
// (C3's janitor pass — the lock manager itself only reclaims a stale lock
// when a new acquire contends on it, so this is the sweep that keeps the
// registry's bookkeeping bounded even with no contention).
func (s *Scheduler) pruneProcessRegistry() {
	removed := s.registry.Prune()
	if removed > 0 {
		s.logger.Info("scheduler: pruned dead process-registry entries", "removed", removed)
	}
}
