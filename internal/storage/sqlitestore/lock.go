package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/CIRWEL/unitares-sub004/internal/storage"
)

const lockColumns = `agent_id, holder_id, pid, host, acquired_at, expires_at`

func scanLock(row interface{ Scan(...any) error }) (storage.Lock, error) {
	var l storage.Lock
	err := row.Scan(&l.AgentID, &l.HolderID, &l.PID, &l.Host, &l.AcquiredAt, &l.ExpiresAt)
	return l, err
}

// AcquireLock inserts a new advisory lock row, failing with storage.ErrConflict
// if one is already held for the agent (single-writer-per-agent invariant).
func (db *DB) AcquireLock(ctx context.Context, lock storage.Lock) (storage.Lock, error) {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO locks (`+lockColumns+`) VALUES (?,?,?,?,?,?)
		 ON CONFLICT (agent_id) DO NOTHING`,
		lock.AgentID, lock.HolderID, lock.PID, lock.Host, lock.AcquiredAt, lock.ExpiresAt,
	)
	if err != nil {
		return storage.Lock{}, fmt.Errorf("storage/sqlitestore: acquire lock: %w", err)
	}
	out, found, err := db.GetLock(ctx, lock.AgentID)
	if err != nil {
		return storage.Lock{}, err
	}
	if !found || out.HolderID != lock.HolderID {
		return storage.Lock{}, fmt.Errorf("storage/sqlitestore: lock %s: %w", lock.AgentID, storage.ErrConflict)
	}
	return out, nil
}

// ReleaseLock removes the lock row only if holderID still owns it, preventing
// a stale holder from releasing a lock someone else since reacquired.
func (db *DB) ReleaseLock(ctx context.Context, agentID, holderID string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM locks WHERE agent_id = ? AND holder_id = ?`, agentID, holderID)
	if err != nil {
		return fmt.Errorf("storage/sqlitestore: release lock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage/sqlitestore: lock %s held by another holder or absent: %w", agentID, storage.ErrNotFound)
	}
	return nil
}

func (db *DB) GetLock(ctx context.Context, agentID string) (storage.Lock, bool, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+lockColumns+` FROM locks WHERE agent_id = ?`, agentID)
	out, err := scanLock(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Lock{}, false, nil
		}
		return storage.Lock{}, false, fmt.Errorf("storage/sqlitestore: get lock: %w", err)
	}
	return out, true, nil
}

// ListStaleLocks returns locks whose expires_at has already passed, candidates
// for the process-liveness-checked cleanup sweep.
func (db *DB) ListStaleLocks(ctx context.Context, olderThan time.Time) ([]storage.Lock, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+lockColumns+` FROM locks WHERE expires_at < ?`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("storage/sqlitestore: list stale locks: %w", err)
	}
	defer rows.Close()

	var out []storage.Lock
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("storage/sqlitestore: scan lock: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
