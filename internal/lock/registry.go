package lock

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessRegistry tracks live (pid, last-heartbeat) pairs across the
// processes that have touched this store, pruning entries for processes
// that no longer exist and capping the number of tracked processes.
type ProcessRegistry struct {
	mu       sync.Mutex
	entries  map[int]time.Time
	capacity int
}

// NewProcessRegistry creates a registry capped at capacity tracked PIDs.
func NewProcessRegistry(capacity int) *ProcessRegistry {
	return &ProcessRegistry{entries: make(map[int]time.Time), capacity: capacity}
}

// Heartbeat records that pid is still active as of now.
func (r *ProcessRegistry) Heartbeat(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[pid] = time.Now()
	r.evictOverCapacityLocked()
}

// Prune removes entries for processes that are no longer alive. Intended to
// be called on a cron schedule (default every minute).
func (r *ProcessRegistry) Prune() (removed int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for pid := range r.entries {
		alive, err := process.PidExists(int32(pid))
		if err != nil || !alive {
			delete(r.entries, pid)
			removed++
		}
	}
	return removed
}

// Size reports how many PIDs are currently tracked.
func (r *ProcessRegistry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// evictOverCapacityLocked drops the oldest heartbeats once the registry
// exceeds its configured cap. Callers must hold r.mu.
func (r *ProcessRegistry) evictOverCapacityLocked() {
	if r.capacity <= 0 || len(r.entries) <= r.capacity {
		return
	}
	oldestPID, oldestAt := -1, time.Now()
	for len(r.entries) > r.capacity {
		for pid, at := range r.entries {
			if oldestPID == -1 || at.Before(oldestAt) {
				oldestPID, oldestAt = pid, at
			}
		}
		delete(r.entries, oldestPID)
		oldestPID = -1
	}
}
