package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/CIRWEL/unitares-sub004/internal/integrity"
	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// AppendAudit inserts an audit event, deriving its content hash for
// idempotent dedup if the caller left RawHash empty. The bool return reports
// whether a new row was inserted (false means this exact event already
// existed and the insert was a no-op).
func (db *DB) AppendAudit(ctx context.Context, event model.AuditEvent) (model.AuditEvent, bool, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Details == nil {
		event.Details = map[string]any{}
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	detailsJSON, err := json.Marshal(event.Details)
	if err != nil {
		return model.AuditEvent{}, false, fmt.Errorf("storage/postgres: marshal audit details: %w", err)
	}
	if event.RawHash == "" {
		event.RawHash = integrity.ComputeAuditHash(event.AgentID, event.EventType, event.Timestamp, string(detailsJSON))
	}

	tag, err := db.retryExec(ctx,
		`INSERT INTO audit_events (timestamp, agent_id, event_type, confidence, details, metadata, raw_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (raw_hash) DO NOTHING`,
		event.Timestamp, event.AgentID, event.EventType, event.Confidence, detailsJSON, event.Metadata, event.RawHash,
	)
	if err != nil {
		return model.AuditEvent{}, false, fmt.Errorf("storage/postgres: append audit: %w", err)
	}
	return event, tag.RowsAffected() == 1, nil
}

// QueryAudit returns audit events matching the filter, newest-first by default.
func (db *DB) QueryAudit(ctx context.Context, q model.AuditQuery) ([]model.AuditEvent, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT timestamp, agent_id, event_type, confidence, details, metadata, raw_hash FROM audit_events WHERE 1=1`)
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.AgentID != "" {
		sb.WriteString(" AND agent_id = " + arg(q.AgentID))
	}
	if q.EventType != "" {
		sb.WriteString(" AND event_type = " + arg(q.EventType))
	}
	if q.Start != nil {
		sb.WriteString(" AND timestamp >= " + arg(*q.Start))
	}
	if q.End != nil {
		sb.WriteString(" AND timestamp <= " + arg(*q.End))
	}
	order := "DESC"
	if !q.Desc {
		order = "ASC"
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY timestamp %s", order))
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	sb.WriteString(" LIMIT " + arg(limit))

	rows, err := db.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: query audit: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var e model.AuditEvent
		var detailsJSON []byte
		if err := rows.Scan(&e.Timestamp, &e.AgentID, &e.EventType, &e.Confidence, &detailsJSON, &e.Metadata, &e.RawHash); err != nil {
			return nil, fmt.Errorf("storage/postgres: scan audit event: %w", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
				return nil, fmt.Errorf("storage/postgres: unmarshal audit details: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SkipRateMetrics summarizes auto_attest vs lambda1_skip volume for skip-rate
// tracking. Empty agentID aggregates across all agents.
func (db *DB) SkipRateMetrics(ctx context.Context, agentID string, since time.Time) (model.SkipRateMetrics, error) {
	var m model.SkipRateMetrics
	var err error
	if agentID == "" {
		err = db.pool.QueryRow(ctx, `
			SELECT count(*) FILTER (WHERE event_type IN ($1, $2)),
			       count(*) FILTER (WHERE event_type = $2),
			       COALESCE(avg(confidence) FILTER (WHERE confidence IS NOT NULL), 0)
			FROM audit_events WHERE timestamp >= $3`,
			model.EventAutoAttest, model.EventLambda1Skip, since,
		).Scan(&m.TotalUpdates, &m.TotalSkips, &m.AvgConfidence)
	} else {
		err = db.pool.QueryRow(ctx, `
			SELECT count(*) FILTER (WHERE event_type IN ($1, $2)),
			       count(*) FILTER (WHERE event_type = $2),
			       COALESCE(avg(confidence) FILTER (WHERE confidence IS NOT NULL), 0)
			FROM audit_events WHERE agent_id = $4 AND timestamp >= $3`,
			model.EventAutoAttest, model.EventLambda1Skip, since, agentID,
		).Scan(&m.TotalUpdates, &m.TotalSkips, &m.AvgConfidence)
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return model.SkipRateMetrics{}, fmt.Errorf("storage/postgres: skip rate metrics: %w", err)
	}
	if m.TotalUpdates > 0 {
		m.SkipRate = float64(m.TotalSkips) / float64(m.TotalUpdates)
	}
	return m, nil
}
