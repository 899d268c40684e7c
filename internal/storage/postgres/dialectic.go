package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/CIRWEL/unitares-sub004/internal/model"
	"github.com/CIRWEL/unitares-sub004/internal/storage"
)

// UpsertDialecticSession inserts or updates a session row. The partial unique
// index uq_dialectic_active_agent enforces "no two active sessions share a
// paused_agent_id" at the database layer.
func (db *DB) UpsertDialecticSession(ctx context.Context, s model.DialecticSession) (model.DialecticSession, error) {
	if s.SessionID == uuid.Nil {
		s.SessionID = uuid.New()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	var resolutionJSON []byte
	var err error
	if s.Resolution != nil {
		resolutionJSON, err = json.Marshal(s.Resolution)
		if err != nil {
			return model.DialecticSession{}, fmt.Errorf("storage/postgres: marshal resolution: %w", err)
		}
	}
	if s.ExcludedReviewers == nil {
		s.ExcludedReviewers = []uuid.UUID{}
	}

	_, err = db.retryExec(ctx,
		`INSERT INTO dialectic_sessions (
		     session_id, paused_agent_id, reviewer_agent_id, phase, status, created_at, updated_at,
		     topic, reason, discovery_id, dispute_type, session_type, synthesis_round, max_synthesis_rounds,
		     resolution, excluded_reviewers
		 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		 ON CONFLICT (session_id) DO UPDATE SET
		     reviewer_agent_id = EXCLUDED.reviewer_agent_id, phase = EXCLUDED.phase, status = EXCLUDED.status,
		     updated_at = EXCLUDED.updated_at, synthesis_round = EXCLUDED.synthesis_round,
		     resolution = EXCLUDED.resolution, excluded_reviewers = EXCLUDED.excluded_reviewers`,
		s.SessionID, s.PausedAgentID, s.ReviewerAgentID, s.Phase, s.Status, s.CreatedAt, s.UpdatedAt,
		s.Topic, s.Reason, s.DiscoveryID, s.DisputeType, s.SessionType, s.SynthesisRound, s.MaxSynthesisRounds,
		resolutionJSON, s.ExcludedReviewers,
	)
	if err != nil {
		return model.DialecticSession{}, fmt.Errorf("storage/postgres: upsert dialectic session: %w", err)
	}
	return s, nil
}

func (db *DB) GetDialecticSession(ctx context.Context, id uuid.UUID) (model.DialecticSession, error) {
	s, err := db.scanDialecticSessionRow(ctx, id)
	if err != nil {
		return model.DialecticSession{}, err
	}
	transcript, err := db.listDialecticMessages(ctx, id)
	if err != nil {
		return model.DialecticSession{}, err
	}
	s.Transcript = transcript
	return s, nil
}

func (db *DB) scanDialecticSessionRow(ctx context.Context, id uuid.UUID) (model.DialecticSession, error) {
	var s model.DialecticSession
	var resolutionJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT session_id, paused_agent_id, reviewer_agent_id, phase, status, created_at, updated_at,
		        topic, reason, discovery_id, dispute_type, session_type, synthesis_round, max_synthesis_rounds,
		        resolution, excluded_reviewers
		 FROM dialectic_sessions WHERE session_id = $1`, id,
	).Scan(&s.SessionID, &s.PausedAgentID, &s.ReviewerAgentID, &s.Phase, &s.Status, &s.CreatedAt, &s.UpdatedAt,
		&s.Topic, &s.Reason, &s.DiscoveryID, &s.DisputeType, &s.SessionType, &s.SynthesisRound, &s.MaxSynthesisRounds,
		&resolutionJSON, &s.ExcludedReviewers)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DialecticSession{}, fmt.Errorf("storage/postgres: dialectic session %s: %w", id, storage.ErrNotFound)
		}
		return model.DialecticSession{}, fmt.Errorf("storage/postgres: get dialectic session: %w", err)
	}
	if len(resolutionJSON) > 0 {
		var r model.Resolution
		if err := json.Unmarshal(resolutionJSON, &r); err != nil {
			return model.DialecticSession{}, fmt.Errorf("storage/postgres: unmarshal resolution: %w", err)
		}
		s.Resolution = &r
	}
	return s, nil
}

func (db *DB) listDialecticMessages(ctx context.Context, sessionID uuid.UUID) ([]model.DialecticMessage, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, session_id, seq, agent_id, message_type, timestamp, root_cause, proposed_conditions,
		        reasoning, agrees, observed_metrics, concerns, signature
		 FROM dialectic_messages WHERE session_id = $1 ORDER BY seq ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: list dialectic messages: %w", err)
	}
	defer rows.Close()

	var out []model.DialecticMessage
	for rows.Next() {
		var m model.DialecticMessage
		var conditionsJSON, metricsJSON []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Seq, &m.AgentID, &m.MessageType, &m.Timestamp,
			&m.RootCause, &conditionsJSON, &m.Reasoning, &m.Agrees, &metricsJSON, &m.Concerns, &m.Signature); err != nil {
			return nil, fmt.Errorf("storage/postgres: scan dialectic message: %w", err)
		}
		if len(conditionsJSON) > 0 {
			if err := json.Unmarshal(conditionsJSON, &m.ProposedConditions); err != nil {
				return nil, fmt.Errorf("storage/postgres: unmarshal proposed conditions: %w", err)
			}
		}
		if len(metricsJSON) > 0 {
			if err := json.Unmarshal(metricsJSON, &m.ObservedMetrics); err != nil {
				return nil, fmt.Errorf("storage/postgres: unmarshal observed metrics: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendDialecticMessage inserts the next transcript entry. Seq is assigned
// as max(seq)+1 within the session so ordering is total and gap-free.
func (db *DB) AppendDialecticMessage(ctx context.Context, msg model.DialecticMessage) (model.DialecticMessage, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	conditionsJSON, err := json.Marshal(msg.ProposedConditions)
	if err != nil {
		return model.DialecticMessage{}, fmt.Errorf("storage/postgres: marshal proposed conditions: %w", err)
	}
	metricsJSON, err := json.Marshal(msg.ObservedMetrics)
	if err != nil {
		return model.DialecticMessage{}, fmt.Errorf("storage/postgres: marshal observed metrics: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`INSERT INTO dialectic_messages (
		     id, session_id, seq, agent_id, message_type, timestamp, root_cause,
		     proposed_conditions, reasoning, agrees, observed_metrics, concerns, signature
		 )
		 VALUES ($1, $2, COALESCE((SELECT max(seq) + 1 FROM dialectic_messages WHERE session_id = $2), 0),
		         $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING seq`,
		msg.ID, msg.SessionID, msg.AgentID, msg.MessageType, msg.Timestamp, msg.RootCause,
		conditionsJSON, msg.Reasoning, msg.Agrees, metricsJSON, msg.Concerns, msg.Signature,
	).Scan(&msg.Seq)
	if err != nil {
		return model.DialecticMessage{}, fmt.Errorf("storage/postgres: append dialectic message: %w", err)
	}
	return msg, nil
}

func (db *DB) ListActiveDialecticSessions(ctx context.Context) ([]model.DialecticSession, error) {
	return db.listDialecticSessionsWhere(ctx, `status = 'active'`)
}

// ListStuckDialecticSessions returns active sessions last updated before
// olderThan, candidates for the auto-resolve sweep.
func (db *DB) ListStuckDialecticSessions(ctx context.Context, olderThan time.Time) ([]model.DialecticSession, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT session_id FROM dialectic_sessions WHERE status = 'active' AND updated_at < $1`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: list stuck dialectic sessions: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.DialecticSession, 0, len(ids))
	for _, id := range ids {
		s, err := db.GetDialecticSession(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (db *DB) listDialecticSessionsWhere(ctx context.Context, where string) ([]model.DialecticSession, error) {
	rows, err := db.pool.Query(ctx, `SELECT session_id FROM dialectic_sessions WHERE `+where)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: list dialectic sessions: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.DialecticSession, 0, len(ids))
	for _, id := range ids {
		s, err := db.GetDialecticSession(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
