package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// GetDriftBaseline returns the stored EMA baseline for an agent, or
// (zero, false, nil) if none has been recorded yet — the drift engine treats
// this as "first observation" and seeds the baseline directly.
func (db *DB) GetDriftBaseline(ctx context.Context, agentID string) (model.EthicalDriftBaseline, bool, error) {
	var doc []byte
	var updateCount int
	err := db.pool.QueryRow(ctx,
		`SELECT baseline, update_count FROM drift_baselines WHERE agent_id = $1`, agentID,
	).Scan(&doc, &updateCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.EthicalDriftBaseline{}, false, nil
		}
		return model.EthicalDriftBaseline{}, false, fmt.Errorf("storage/postgres: get drift baseline: %w", err)
	}
	var b model.EthicalDriftBaseline
	if err := json.Unmarshal(doc, &b); err != nil {
		return model.EthicalDriftBaseline{}, false, fmt.Errorf("storage/postgres: unmarshal drift baseline: %w", err)
	}
	b.AgentUUID = agentID
	b.UpdateCount = updateCount
	return b, true, nil
}

func (db *DB) UpsertDriftBaseline(ctx context.Context, agentID string, baseline model.EthicalDriftBaseline) error {
	doc, err := json.Marshal(baseline)
	if err != nil {
		return fmt.Errorf("storage/postgres: marshal drift baseline: %w", err)
	}
	_, err = db.retryExec(ctx,
		`INSERT INTO drift_baselines (agent_id, baseline, update_count, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (agent_id) DO UPDATE SET
		     baseline = EXCLUDED.baseline, update_count = EXCLUDED.update_count, updated_at = EXCLUDED.updated_at`,
		agentID, doc, baseline.UpdateCount, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage/postgres: upsert drift baseline: %w", err)
	}
	return nil
}
