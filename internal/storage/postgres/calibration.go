package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/CIRWEL/unitares-sub004/internal/model"
	"github.com/CIRWEL/unitares-sub004/internal/storage"
)

// UpsertCalibrationBin writes one confidence bucket's running totals.
func (db *DB) UpsertCalibrationBin(ctx context.Context, agentID string, bin model.Bin) error {
	_, err := db.retryExec(ctx,
		`INSERT INTO calibration_bins (agent_id, bucket_min, bucket_max, count, correct, conf_sum)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (agent_id, bucket_min) DO UPDATE SET
		     bucket_max = EXCLUDED.bucket_max, count = EXCLUDED.count,
		     correct = EXCLUDED.correct, conf_sum = EXCLUDED.conf_sum`,
		agentID, bin.Low, bin.High, bin.Count, bin.Correct, bin.ConfidenceSum,
	)
	if err != nil {
		return fmt.Errorf("storage/postgres: upsert calibration bin: %w", err)
	}
	return nil
}

func (db *DB) GetCalibrationBins(ctx context.Context, agentID string) ([]model.Bin, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT bucket_min, bucket_max, count, correct, conf_sum FROM calibration_bins
		 WHERE agent_id = $1 ORDER BY bucket_min ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: get calibration bins: %w", err)
	}
	defer rows.Close()

	var out []model.Bin
	for rows.Next() {
		var b model.Bin
		if err := rows.Scan(&b.Low, &b.High, &b.Count, &b.Correct, &b.ConfidenceSum); err != nil {
			return nil, fmt.Errorf("storage/postgres: scan calibration bin: %w", err)
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
	_, err := db.retryExec(ctx,
		`INSERT INTO pending_predictions (agent_id, prediction_id, confidence, context, created_at, resolved, actual)
		 VALUES ($1, $2, $3, $4, $5, FALSE, NULL)
		 ON CONFLICT (agent_id, prediction_id) DO NOTHING`,
		agentID, p.ID, p.Confidence, p.Prediction, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage/postgres: append pending prediction: %w", err)
	}
	return nil
}

// ResolvePendingPrediction marks a pending prediction resolved with its
// observed outcome, returning the full record for the caller to fold into
// its calibration bin update.
func (db *DB) ResolvePendingPrediction(ctx context.Context, agentID, predictionID string, actual bool) (model.PendingPrediction, error) {
	var p model.PendingPrediction
	p.AgentUUID = agentID
	err := db.pool.QueryRow(ctx,
		`UPDATE pending_predictions SET resolved = TRUE, actual = $3
		 WHERE agent_id = $1 AND prediction_id = $2
		 RETURNING prediction_id, confidence, context, created_at`,
		agentID, predictionID, actual,
	).Scan(&p.ID, &p.Confidence, &p.Prediction, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PendingPrediction{}, fmt.Errorf("storage/postgres: pending prediction %s: %w", predictionID, storage.ErrNotFound)
		}
		return model.PendingPrediction{}, fmt.Errorf("storage/postgres: resolve pending prediction: %w", err)
	}
	return p, nil
}
