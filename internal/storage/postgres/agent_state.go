package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/CIRWEL/unitares-sub004/internal/model"
	"github.com/CIRWEL/unitares-sub004/internal/storage"
)

// UpsertAgentState persists the full EISV + derived-scalar state, including
// bounded histories, as a JSON document keyed by agent_uuid.
func (db *DB) UpsertAgentState(ctx context.Context, state model.AgentState) (model.AgentState, error) {
	state.UpdatedAt = time.Now().UTC()
	doc, err := storage.EncodeAgentState(state)
	if err != nil {
		return model.AgentState{}, err
	}

	_, err = db.retryExec(ctx,
		`INSERT INTO agent_state (agent_uuid, state, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (agent_uuid) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		state.AgentUUID, doc, state.UpdatedAt,
	)
	if err != nil {
		return model.AgentState{}, fmt.Errorf("storage/postgres: upsert agent state: %w", err)
	}
	return state, nil
}

func (db *DB) GetAgentState(ctx context.Context, agentUUID uuid.UUID) (model.AgentState, error) {
	var doc []byte
	var updatedAt time.Time
	err := db.pool.QueryRow(ctx,
		`SELECT state, updated_at FROM agent_state WHERE agent_uuid = $1`, agentUUID,
	).Scan(&doc, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AgentState{}, fmt.Errorf("storage/postgres: agent state %s: %w", agentUUID, storage.ErrNotFound)
		}
		return model.AgentState{}, fmt.Errorf("storage/postgres: get agent state: %w", err)
	}
	return storage.DecodeAgentState(agentUUID.String(), doc, updatedAt)
}
