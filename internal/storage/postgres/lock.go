package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/CIRWEL/unitares-sub004/internal/storage"
)

const lockColumns = `agent_id, holder_id, pid, host, acquired_at, expires_at`

func scanLock(row pgx.Row) (storage.Lock, error) {
	var l storage.Lock
	err := row.Scan(&l.AgentID, &l.HolderID, &l.PID, &l.Host, &l.AcquiredAt, &l.ExpiresAt)
	return l, err
}

// AcquireLock inserts a new advisory lock row, failing with storage.ErrConflict
// if one is already held for the agent (single-writer-per-agent invariant).
func (db *DB) AcquireLock(ctx context.Context, lock storage.Lock) (storage.Lock, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO locks (`+lockColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (agent_id) DO NOTHING
		 RETURNING `+lockColumns,
		lock.AgentID, lock.HolderID, lock.PID, lock.Host, lock.AcquiredAt, lock.ExpiresAt,
	)
	out, err := scanLock(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Lock{}, fmt.Errorf("storage/postgres: lock %s: %w", lock.AgentID, storage.ErrConflict)
		}
		return storage.Lock{}, fmt.Errorf("storage/postgres: acquire lock: %w", err)
	}
	return out, nil
}

// ReleaseLock removes the lock row only if holderID still owns it, preventing
// a stale holder from releasing a lock someone else since reacquired.
func (db *DB) ReleaseLock(ctx context.Context, agentID, holderID string) error {
	tag, err := db.retryExec(ctx,
		`DELETE FROM locks WHERE agent_id = $1 AND holder_id = $2`, agentID, holderID)
	if err != nil {
		return fmt.Errorf("storage/postgres: release lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage/postgres: lock %s held by another holder or absent: %w", agentID, storage.ErrNotFound)
	}
	return nil
}

func (db *DB) GetLock(ctx context.Context, agentID string) (storage.Lock, bool, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+lockColumns+` FROM locks WHERE agent_id = $1`, agentID)
	out, err := scanLock(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Lock{}, false, nil
		}
		return storage.Lock{}, false, fmt.Errorf("storage/postgres: get lock: %w", err)
	}
	return out, true, nil
}

// ListStaleLocks returns locks whose expires_at has already passed, candidates
// for the process-liveness-checked cleanup sweep.
func (db *DB) ListStaleLocks(ctx context.Context, olderThan time.Time) ([]storage.Lock, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+lockColumns+` FROM locks WHERE expires_at < $1`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: list stale locks: %w", err)
	}
	defer rows.Close()

	var out []storage.Lock
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("storage/postgres: scan lock: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
