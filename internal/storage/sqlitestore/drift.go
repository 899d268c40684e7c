package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// GetDriftBaseline returns the stored EMA baseline for an agent, or
// (zero, false, nil) if none has been recorded yet — the drift engine treats
// this as "first observation" and seeds the baseline directly.
func (db *DB) GetDriftBaseline(ctx context.Context, agentID string) (model.EthicalDriftBaseline, bool, error) {
	var doc string
	var updateCount int
	err := db.conn.QueryRowContext(ctx,
		`SELECT baseline, update_count FROM drift_baselines WHERE agent_id = ?`, agentID,
	).Scan(&doc, &updateCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.EthicalDriftBaseline{}, false, nil
		}
		return model.EthicalDriftBaseline{}, false, fmt.Errorf("storage/sqlitestore: get drift baseline: %w", err)
	}
	var b model.EthicalDriftBaseline
	if err := unmarshalJSON(doc, &b); err != nil {
		return model.EthicalDriftBaseline{}, false, fmt.Errorf("storage/sqlitestore: unmarshal drift baseline: %w", err)
	}
	b.AgentUUID = agentID
	b.UpdateCount = updateCount
	return b, true, nil
}

func (db *DB) UpsertDriftBaseline(ctx context.Context, agentID string, baseline model.EthicalDriftBaseline) error {
	doc, err := marshalJSON(baseline)
	if err != nil {
		return fmt.Errorf("storage/sqlitestore: marshal drift baseline: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO drift_baselines (agent_id, baseline, update_count, updated_at)
		 VALUES (?,?,?,?)
		 ON CONFLICT (agent_id) DO UPDATE SET
		     baseline = excluded.baseline, update_count = excluded.update_count, updated_at = excluded.updated_at`,
		agentID, doc, baseline.UpdateCount, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage/sqlitestore: upsert drift baseline: %w", err)
	}
	return nil
}
