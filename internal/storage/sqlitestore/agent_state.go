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

func (db *DB) UpsertAgentState(ctx context.Context, state model.AgentState) (model.AgentState, error) {
	doc, err := storage.EncodeAgentState(state)
	if err != nil {
		return model.AgentState{}, fmt.Errorf("storage/sqlitestore: encode agent state: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO agent_state (agent_uuid, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (agent_uuid) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		state.AgentUUID.String(), string(doc), time.Now().UTC(),
	)
	if err != nil {
		return model.AgentState{}, fmt.Errorf("storage/sqlitestore: upsert agent state: %w", err)
	}
	return db.GetAgentState(ctx, state.AgentUUID)
}

func (db *DB) GetAgentState(ctx context.Context, agentUUID uuid.UUID) (model.AgentState, error) {
	var doc string
	var updatedAt time.Time
	err := db.conn.QueryRowContext(ctx,
		`SELECT state, updated_at FROM agent_state WHERE agent_uuid = ?`, agentUUID.String(),
	).Scan(&doc, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AgentState{}, fmt.Errorf("storage/sqlitestore: agent state %s: %w", agentUUID, storage.ErrNotFound)
		}
		return model.AgentState{}, fmt.Errorf("storage/sqlitestore: get agent state: %w", err)
	}
	state, err := storage.DecodeAgentState(agentUUID.String(), []byte(doc), updatedAt)
	if err != nil {
		return model.AgentState{}, fmt.Errorf("storage/sqlitestore: decode agent state: %w", err)
	}
	return state, nil
}
