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

const identityColumns = `agent_uuid, agent_id, display_name, label, role, status, created_at, updated_at, parent_agent_id, spawn_reason, metadata, paused_at`

func scanIdentity(row pgx.Row) (model.Identity, error) {
	var i model.Identity
	err := row.Scan(&i.AgentUUID, &i.AgentID, &i.DisplayName, &i.Label, &i.Role, &i.Status,
		&i.CreatedAt, &i.UpdatedAt, &i.ParentAgentID, &i.SpawnReason, &i.Metadata, &i.PausedAt)
	return i, err
}

// UpsertIdentity inserts a new identity or updates the mutable fields of an
// existing one, keyed by agent_id (lazy creation).
func (db *DB) UpsertIdentity(ctx context.Context, identity model.Identity) (model.Identity, error) {
	if identity.AgentUUID == uuid.Nil {
		identity.AgentUUID = uuid.New()
	}
	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	identity.UpdatedAt = now
	if identity.Metadata == nil {
		identity.Metadata = map[string]any{}
	}

	row := db.pool.QueryRow(ctx,
		`INSERT INTO identities (`+identityColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (agent_id) DO UPDATE SET
		     display_name = COALESCE(EXCLUDED.display_name, identities.display_name),
		     label = COALESCE(EXCLUDED.label, identities.label),
		     role = EXCLUDED.role,
		     status = EXCLUDED.status,
		     updated_at = EXCLUDED.updated_at,
		     metadata = EXCLUDED.metadata,
		     paused_at = EXCLUDED.paused_at
		 RETURNING `+identityColumns,
		identity.AgentUUID, identity.AgentID, identity.DisplayName, identity.Label,
		string(identity.Role), string(identity.Status), identity.CreatedAt, identity.UpdatedAt,
		identity.ParentAgentID, identity.SpawnReason, identity.Metadata, identity.PausedAt,
	)
	out, err := scanIdentity(row)
	if err != nil {
		return model.Identity{}, fmt.Errorf("storage/postgres: upsert identity: %w", err)
	}
	return out, nil
}

func (db *DB) GetIdentityByUUID(ctx context.Context, id uuid.UUID) (model.Identity, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE agent_uuid = $1`, id)
	out, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Identity{}, fmt.Errorf("storage/postgres: identity %s: %w", id, storage.ErrNotFound)
		}
		return model.Identity{}, fmt.Errorf("storage/postgres: get identity: %w", err)
	}
	return out, nil
}

func (db *DB) GetIdentityByAgentID(ctx context.Context, agentID string) (model.Identity, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE agent_id = $1`, agentID)
	out, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Identity{}, fmt.Errorf("storage/postgres: agent %s: %w", agentID, storage.ErrNotFound)
		}
		return model.Identity{}, fmt.Errorf("storage/postgres: get identity by agent_id: %w", err)
	}
	return out, nil
}

func (db *DB) ListIdentities(ctx context.Context, limit, offset int) ([]model.Identity, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+identityColumns+` FROM identities ORDER BY created_at ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: list identities: %w", err)
	}
	defer rows.Close()

	var out []model.Identity
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("storage/postgres: scan identity: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
