package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

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
	if s.ExcludedReviewers == nil {
		s.ExcludedReviewers = []uuid.UUID{}
	}

	var resolutionJSON string
	var err error
	if s.Resolution != nil {
		resolutionJSON, err = marshalJSON(s.Resolution)
		if err != nil {
			return model.DialecticSession{}, fmt.Errorf("storage/sqlitestore: marshal resolution: %w", err)
		}
	}
	excludedJSON, err := marshalJSON(s.ExcludedReviewers)
	if err != nil {
		return model.DialecticSession{}, err
	}
	var reviewerAgentID, discoveryID, disputeType *string
	if s.ReviewerAgentID != nil {
		v := s.ReviewerAgentID.String()
		reviewerAgentID = &v
	}
	if s.DiscoveryID != nil {
		v := s.DiscoveryID.String()
		discoveryID = &v
	}
	if s.DisputeType != nil {
		v := string(*s.DisputeType)
		disputeType = &v
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO dialectic_sessions (
		     session_id, paused_agent_id, reviewer_agent_id, phase, status, created_at, updated_at,
		     topic, reason, discovery_id, dispute_type, session_type, synthesis_round, max_synthesis_rounds,
		     resolution, excluded_reviewers
		 ) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT (session_id) DO UPDATE SET
		     reviewer_agent_id = excluded.reviewer_agent_id, phase = excluded.phase, status = excluded.status,
		     updated_at = excluded.updated_at, synthesis_round = excluded.synthesis_round,
		     resolution = excluded.resolution, excluded_reviewers = excluded.excluded_reviewers`,
		s.SessionID.String(), s.PausedAgentID.String(), reviewerAgentID, string(s.Phase), string(s.Status),
		s.CreatedAt, s.UpdatedAt, s.Topic, s.Reason, discoveryID, disputeType, string(s.SessionType),
		s.SynthesisRound, s.MaxSynthesisRounds, resolutionJSON, excludedJSON,
	)
	if err != nil {
		return model.DialecticSession{}, fmt.Errorf("storage/sqlitestore: upsert dialectic session: %w", err)
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
	var sessionID, pausedAgentID string
	var reviewerAgentID, discoveryID, disputeType sql.NullString
	var resolutionJSON, excludedJSON string
	err := db.conn.QueryRowContext(ctx,
		`SELECT session_id, paused_agent_id, reviewer_agent_id, phase, status, created_at, updated_at,
		        topic, reason, discovery_id, dispute_type, session_type, synthesis_round, max_synthesis_rounds,
		        resolution, excluded_reviewers
		 FROM dialectic_sessions WHERE session_id = ?`, id.String(),
	).Scan(&sessionID, &pausedAgentID, &reviewerAgentID, &s.Phase, &s.Status, &s.CreatedAt, &s.UpdatedAt,
		&s.Topic, &s.Reason, &discoveryID, &disputeType, &s.SessionType, &s.SynthesisRound, &s.MaxSynthesisRounds,
		&resolutionJSON, &excludedJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.DialecticSession{}, fmt.Errorf("storage/sqlitestore: dialectic session %s: %w", id, storage.ErrNotFound)
		}
		return model.DialecticSession{}, fmt.Errorf("storage/sqlitestore: get dialectic session: %w", err)
	}
	s.SessionID, err = uuid.Parse(sessionID)
	if err != nil {
		return model.DialecticSession{}, err
	}
	s.PausedAgentID, err = uuid.Parse(pausedAgentID)
	if err != nil {
		return model.DialecticSession{}, err
	}
	if reviewerAgentID.Valid {
		rid, err := uuid.Parse(reviewerAgentID.String)
		if err != nil {
			return model.DialecticSession{}, err
		}
		s.ReviewerAgentID = &rid
	}
	if discoveryID.Valid {
		did, err := uuid.Parse(discoveryID.String)
		if err != nil {
			return model.DialecticSession{}, err
		}
		s.DiscoveryID = &did
	}
	if disputeType.Valid {
		dt := model.DisputeType(disputeType.String)
		s.DisputeType = &dt
	}
	if resolutionJSON != "" {
		var r model.Resolution
		if err := unmarshalJSON(resolutionJSON, &r); err != nil {
			return model.DialecticSession{}, fmt.Errorf("storage/sqlitestore: unmarshal resolution: %w", err)
		}
		s.Resolution = &r
	}
	if err := unmarshalJSON(excludedJSON, &s.ExcludedReviewers); err != nil {
		return model.DialecticSession{}, fmt.Errorf("storage/sqlitestore: unmarshal excluded reviewers: %w", err)
	}
	return s, nil
}

func (db *DB) listDialecticMessages(ctx context.Context, sessionID uuid.UUID) ([]model.DialecticMessage, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, session_id, seq, agent_id, message_type, timestamp, root_cause, proposed_conditions,
		        reasoning, agrees, observed_metrics, concerns, signature
		 FROM dialectic_messages WHERE session_id = ? ORDER BY seq ASC`, sessionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage/sqlitestore: list dialectic messages: %w", err)
	}
	defer rows.Close()

	var out []model.DialecticMessage
	for rows.Next() {
		var m model.DialecticMessage
		var id, sid, agentID string
		var conditionsJSON, metricsJSON, concernsJSON string
		var agrees sql.NullBool
		if err := rows.Scan(&id, &sid, &m.Seq, &agentID, &m.MessageType, &m.Timestamp,
			&m.RootCause, &conditionsJSON, &m.Reasoning, &agrees, &metricsJSON, &concernsJSON, &m.Signature); err != nil {
			return nil, fmt.Errorf("storage/sqlitestore: scan dialectic message: %w", err)
		}
		if m.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if m.SessionID, err = uuid.Parse(sid); err != nil {
			return nil, err
		}
		if m.AgentID, err = uuid.Parse(agentID); err != nil {
			return nil, err
		}
		if agrees.Valid {
			v := agrees.Bool
			m.Agrees = &v
		}
		if err := unmarshalJSON(conditionsJSON, &m.ProposedConditions); err != nil {
			return nil, fmt.Errorf("storage/sqlitestore: unmarshal proposed conditions: %w", err)
		}
		m.ObservedMetrics = map[string]any{}
		if err := unmarshalJSON(metricsJSON, &m.ObservedMetrics); err != nil {
			return nil, fmt.Errorf("storage/sqlitestore: unmarshal observed metrics: %w", err)
		}
		if err := unmarshalJSON(concernsJSON, &m.Concerns); err != nil {
			return nil, fmt.Errorf("storage/sqlitestore: unmarshal concerns: %w", err)
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
	conditionsJSON, err := marshalJSON(msg.ProposedConditions)
	if err != nil {
		return model.DialecticMessage{}, fmt.Errorf("storage/sqlitestore: marshal proposed conditions: %w", err)
	}
	metricsJSON, err := marshalJSON(msg.ObservedMetrics)
	if err != nil {
		return model.DialecticMessage{}, fmt.Errorf("storage/sqlitestore: marshal observed metrics: %w", err)
	}
	concernsJSON, err := marshalJSON(msg.Concerns)
	if err != nil {
		return model.DialecticMessage{}, fmt.Errorf("storage/sqlitestore: marshal concerns: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO dialectic_messages (
		     id, session_id, seq, agent_id, message_type, timestamp, root_cause,
		     proposed_conditions, reasoning, agrees, observed_metrics, concerns, signature
		 )
		 VALUES (?, ?, COALESCE((SELECT max(seq) + 1 FROM dialectic_messages WHERE session_id = ?), 0),
		         ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID.String(), msg.SessionID.String(), msg.SessionID.String(), msg.AgentID.String(), msg.MessageType,
		msg.Timestamp, msg.RootCause, conditionsJSON, msg.Reasoning, msg.Agrees, metricsJSON, concernsJSON, msg.Signature,
	)
	if err != nil {
		return model.DialecticMessage{}, fmt.Errorf("storage/sqlitestore: append dialectic message: %w", err)
	}
	err = db.conn.QueryRowContext(ctx,
		`SELECT seq FROM dialectic_messages WHERE id = ?`, msg.ID.String(),
	).Scan(&msg.Seq)
	if err != nil {
		return model.DialecticMessage{}, fmt.Errorf("storage/sqlitestore: read assigned seq: %w", err)
	}
	return msg, nil
}

func (db *DB) ListActiveDialecticSessions(ctx context.Context) ([]model.DialecticSession, error) {
	return db.listDialecticSessionsWhere(ctx, `status = 'active'`)
}

// ListStuckDialecticSessions returns active sessions last updated before
// olderThan, candidates for the auto-resolve sweep.
func (db *DB) ListStuckDialecticSessions(ctx context.Context, olderThan time.Time) ([]model.DialecticSession, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT session_id FROM dialectic_sessions WHERE status = 'active' AND updated_at < ?`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("storage/sqlitestore: list stuck dialectic sessions: %w", err)
	}
	return db.resolveSessionIDs(ctx, rows)
}

func (db *DB) listDialecticSessionsWhere(ctx context.Context, where string) ([]model.DialecticSession, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT session_id FROM dialectic_sessions WHERE `+where)
	if err != nil {
		return nil, fmt.Errorf("storage/sqlitestore: list dialectic sessions: %w", err)
	}
	return db.resolveSessionIDs(ctx, rows)
}

func (db *DB) resolveSessionIDs(ctx context.Context, rows *sql.Rows) ([]model.DialecticSession, error) {
	var ids []uuid.UUID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, parsed)
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
