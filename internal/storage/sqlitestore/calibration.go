package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/CIRWEL/unitares-sub004/internal/model"
	"github.com/CIRWEL/unitares-sub004/internal/storage"
)

// UpsertCalibrationBin writes one confidence bucket's running totals.
func (db *DB) UpsertCalibrationBin(ctx context.Context, agentID string, bin model.Bin) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO calibration_bins (agent_id, bucket_min, bucket_max, count, correct, conf_sum)
		 VALUES (?,?,?,?,?,?)
		 ON CONFLICT (agent_id, bucket_min) DO UPDATE SET
		     bucket_max = excluded.bucket_max, count = excluded.count,
		     correct = excluded.correct, conf_sum = excluded.conf_sum`,
		agentID, bin.Low, bin.High, bin.Count, bin.Correct, bin.ConfidenceSum,
	)
	if err != nil {
		return fmt.Errorf("storage/sqlitestore: upsert calibration bin: %w", err)
	}
	return nil
}

func (db *DB) GetCalibrationBins(ctx context.Context, agentID string) ([]model.Bin, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT bucket_min, bucket_max, count, correct, conf_sum FROM calibration_bins
		 WHERE agent_id = ? ORDER BY bucket_min ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("storage/sqlitestore: get calibration bins: %w", err)
	}
	defer rows.Close()

	var out []model.Bin
	for rows.Next() {
		var b model.Bin
		if err := rows.Scan(&b.Low, &b.High, &b.Count, &b.Correct, &b.ConfidenceSum); err != nil {
			return nil, fmt.Errorf("storage/sqlitestore: scan calibration bin: %w", err)
		}
		b.Key = fmt.Sprintf("%.2f-%.2f", b.Low, b.High)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (db *DB) AppendPendingPrediction(ctx context.Context, agentID string, p model.PendingPrediction) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO pending_predictions (agent_id, prediction_id, confidence, context, created_at, resolved, actual)
		 VALUES (?,?,?,?,?,0,NULL)
		 ON CONFLICT (agent_id, prediction_id) DO NOTHING`,
		agentID, p.ID, p.Confidence, p.Prediction, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage/sqlitestore: append pending prediction: %w", err)
	}
	return nil
}

// ResolvePendingPrediction marks a pending prediction resolved with its
// observed outcome, returning the full record for the caller to fold into
// its calibration bin update.
func (db *DB) ResolvePendingPrediction(ctx context.Context, agentID, predictionID string, actual bool) (model.PendingPrediction, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE pending_predictions SET resolved = 1, actual = ?
		 WHERE agent_id = ? AND prediction_id = ?`,
		actual, agentID, predictionID,
	)
	if err != nil {
		return model.PendingPrediction{}, fmt.Errorf("storage/sqlitestore: resolve pending prediction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.PendingPrediction{}, fmt.Errorf("storage/sqlitestore: pending prediction %s: %w", predictionID, storage.ErrNotFound)
	}

	var p model.PendingPrediction
	p.AgentUUID = agentID
	err = db.conn.QueryRowContext(ctx,
		`SELECT prediction_id, confidence, context, created_at FROM pending_predictions
		 WHERE agent_id = ? AND prediction_id = ?`, agentID, predictionID,
	).Scan(&p.ID, &p.Confidence, &p.Prediction, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PendingPrediction{}, fmt.Errorf("storage/sqlitestore: pending prediction %s: %w", predictionID, storage.ErrNotFound)
		}
		return model.PendingPrediction{}, fmt.Errorf("storage/sqlitestore: read resolved prediction: %w", err)
	}
	return p, nil
}
