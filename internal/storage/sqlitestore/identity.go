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

const identityColumns = `agent_uuid, agent_id, display_name, label, role, status, created_at, updated_at, parent_agent_id, spawn_reason, metadata, paused_at`

func scanIdentity(row interface{ Scan(...any) error }) (model.Identity, error) {
	var i model.Identity
	var metaJSON string
	var parentAgentID, spawnReason, displayName, label sql.NullString
	var pausedAt sql.NullTime
	err := row.Scan(&i.AgentUUID, &i.AgentID, &displayName, &label, &i.Role, &i.Status,
		&i.CreatedAt, &i.UpdatedAt, &parentAgentID, &spawnReason, &metaJSON, &pausedAt)
	if err != nil {
		return model.Identity{}, err
	}
	if displayName.Valid {
		i.DisplayName = &displayName.String
	}
	if label.Valid {
		i.Label = &label.String
	}
	if spawnReason.Valid {
		i.SpawnReason = &spawnReason.String
	}
	if pausedAt.Valid {
		i.PausedAt = &pausedAt.Time
	}
	if parentAgentID.Valid {
		id, err := uuid.Parse(parentAgentID.String)
		if err == nil {
			i.ParentAgentID = &id
		}
	}
	i.Metadata = map[string]any{}
	if err := unmarshalJSON(metaJSON, &i.Metadata); err != nil {
		return model.Identity{}, err
	}
	return i, nil
}

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
	metaJSON, err := marshalJSON(identity.Metadata)
	if err != nil {
		return model.Identity{}, err
	}
	var parentAgentID *string
	if identity.ParentAgentID != nil {
		s := identity.ParentAgentID.String()
		parentAgentID = &s
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO identities (`+identityColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT (agent_id) DO UPDATE SET
		     display_name = COALESCE(excluded.display_name, identities.display_name),
		     label = COALESCE(excluded.label, identities.label),
		     role = excluded.role, status = excluded.status, updated_at = excluded.updated_at,
		     metadata = excluded.metadata, paused_at = excluded.paused_at`,
		identity.AgentUUID.String(), identity.AgentID, identity.DisplayName, identity.Label,
		string(identity.Role), string(identity.Status), identity.CreatedAt, identity.UpdatedAt,
		parentAgentID, identity.SpawnReason, metaJSON, identity.PausedAt,
	)
	if err != nil {
		return model.Identity{}, fmt.Errorf("storage/sqlitestore: upsert identity: %w", err)
	}
	return db.GetIdentityByAgentID(ctx, identity.AgentID)
}

func (db *DB) GetIdentityByUUID(ctx context.Context, id uuid.UUID) (model.Identity, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE agent_uuid = ?`, id.String())
	out, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Identity{}, fmt.Errorf("storage/sqlitestore: identity %s: %w", id, storage.ErrNotFound)
		}
		return model.Identity{}, fmt.Errorf("storage/sqlitestore: get identity: %w", err)
	}
	return out, nil
}

func (db *DB) GetIdentityByAgentID(ctx context.Context, agentID string) (model.Identity, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE agent_id = ?`, agentID)
	out, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Identity{}, fmt.Errorf("storage/sqlitestore: agent %s: %w", agentID, storage.ErrNotFound)
		}
		return model.Identity{}, fmt.Errorf("storage/sqlitestore: get identity by agent_id: %w", err)
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
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+identityColumns+` FROM identities ORDER BY created_at ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("storage/sqlitestore: list identities: %w", err)
	}
	defer rows.Close()

	var out []model.Identity
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("storage/sqlitestore: scan identity: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
