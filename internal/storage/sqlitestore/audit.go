package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

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
		return model.AuditEvent{}, false, fmt.Errorf("storage/sqlitestore: marshal audit details: %w", err)
	}
	if event.RawHash == "" {
		event.RawHash = integrity.ComputeAuditHash(event.AgentID, event.EventType, event.Timestamp, string(detailsJSON))
	}
	metaJSON, err := marshalJSON(event.Metadata)
	if err != nil {
		return model.AuditEvent{}, false, err
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO audit_events (timestamp, agent_id, event_type, confidence, details, metadata, raw_hash)
		 VALUES (?,?,?,?,?,?,?)
		 ON CONFLICT (raw_hash) DO NOTHING`,
		event.Timestamp, event.AgentID, event.EventType, event.Confidence, string(detailsJSON), metaJSON, event.RawHash,
	)
	if err != nil {
		return model.AuditEvent{}, false, fmt.Errorf("storage/sqlitestore: append audit: %w", err)
	}
	inserted, _ := res.RowsAffected()
	if inserted == 1 {
		if _, err := db.conn.ExecContext(ctx,
			`INSERT INTO audit_events_fts (agent_id, event_type, body) VALUES (?, ?, ?)`,
			event.AgentID, event.EventType, string(detailsJSON),
		); err != nil {
			return model.AuditEvent{}, false, fmt.Errorf("storage/sqlitestore: index audit event: %w", err)
		}
	}
	return event, inserted == 1, nil
}

// QueryAudit returns audit events matching the filter, newest-first by default.
func (db *DB) QueryAudit(ctx context.Context, q model.AuditQuery) ([]model.AuditEvent, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT timestamp, agent_id, event_type, confidence, details, metadata, raw_hash FROM audit_events WHERE 1=1`)
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "?"
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

	rows, err := db.conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("storage/sqlitestore: query audit: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var e model.AuditEvent
		var detailsJSON, metaJSON string
		if err := rows.Scan(&e.Timestamp, &e.AgentID, &e.EventType, &e.Confidence, &detailsJSON, &metaJSON, &e.RawHash); err != nil {
			return nil, fmt.Errorf("storage/sqlitestore: scan audit event: %w", err)
		}
		e.Details = map[string]any{}
		if err := unmarshalJSON(detailsJSON, &e.Details); err != nil {
			return nil, fmt.Errorf("storage/sqlitestore: unmarshal audit details: %w", err)
		}
		e.Metadata = map[string]any{}
		if err := unmarshalJSON(metaJSON, &e.Metadata); err != nil {
			return nil, fmt.Errorf("storage/sqlitestore: unmarshal audit metadata: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SkipRateMetrics summarizes auto_attest vs lambda1_skip volume for skip-rate
// tracking. Empty agentID aggregates across all agents.
func (db *DB) SkipRateMetrics(ctx context.Context, agentID string, since time.Time) (model.SkipRateMetrics, error) {
	var m model.SkipRateMetrics
	var avgConf sql.NullFloat64
	var err error
	if agentID == "" {
		err = db.conn.QueryRowContext(ctx, `
			SELECT count(*) FILTER (WHERE event_type IN (?, ?)),
			       count(*) FILTER (WHERE event_type = ?),
			       avg(confidence) FILTER (WHERE confidence IS NOT NULL)
			FROM audit_events WHERE timestamp >= ?`,
			model.EventAutoAttest, model.EventLambda1Skip, model.EventLambda1Skip, since,
		).Scan(&m.TotalUpdates, &m.TotalSkips, &avgConf)
	} else {
		err = db.conn.QueryRowContext(ctx, `
			SELECT count(*) FILTER (WHERE event_type IN (?, ?)),
			       count(*) FILTER (WHERE event_type = ?),
			       avg(confidence) FILTER (WHERE confidence IS NOT NULL)
			FROM audit_events WHERE agent_id = ? AND timestamp >= ?`,
			model.EventAutoAttest, model.EventLambda1Skip, model.EventLambda1Skip, agentID, since,
		).Scan(&m.TotalUpdates, &m.TotalSkips, &avgConf)
	}
	if err != nil {
		return model.SkipRateMetrics{}, fmt.Errorf("storage/sqlitestore: skip rate metrics: %w", err)
	}
	if avgConf.Valid {
		m.AvgConfidence = avgConf.Float64
	}
	if m.TotalUpdates > 0 {
		m.SkipRate = float64(m.TotalSkips) / float64(m.TotalUpdates)
	}
	return m, nil
}
