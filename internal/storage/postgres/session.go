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

const sessionColumns = `session_id, identity_id, created_at, last_active, expires_at, is_active, client_type, client_info, metadata`

func scanSession(row pgx.Row) (model.Session, error) {
	var s model.Session
	err := row.Scan(&s.SessionID, &s.IdentityID, &s.CreatedAt, &s.LastActive, &s.ExpiresAt,
		&s.IsActive, &s.ClientType, &s.ClientInfo, &s.Metadata)
	return s, err
}

// CreateSession binds a new session key to an identity.
func (db *DB) CreateSession(ctx context.Context, session model.Session) (model.Session, error) {
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.LastActive = now
	session.IsActive = true
	if session.ClientInfo == nil {
		session.ClientInfo = map[string]any{}
	}
	if session.Metadata == nil {
		session.Metadata = map[string]any{}
	}

	row := db.pool.QueryRow(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+sessionColumns,
		session.SessionID, session.IdentityID, session.CreatedAt, session.LastActive,
		session.ExpiresAt, session.IsActive, session.ClientType, session.ClientInfo, session.Metadata,
	)
	out, err := scanSession(row)
	if err != nil {
		return model.Session{}, fmt.Errorf("storage/postgres: create session: %w", err)
	}
	return out, nil
}

func (db *DB) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, sessionID)
	out, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, fmt.Errorf("storage/postgres: session %s: %w", sessionID, storage.ErrNotFound)
		}
		return model.Session{}, fmt.Errorf("storage/postgres: get session: %w", err)
	}
	return out, nil
}

// RefreshSession extends expiry and bumps last_active, used on every
// successful authenticated call to keep a session alive.
func (db *DB) RefreshSession(ctx context.Context, sessionID string, newExpiry time.Time) (model.Session, error) {
	row := db.pool.QueryRow(ctx,
		`UPDATE sessions SET last_active = now(), expires_at = $2
		 WHERE session_id = $1 AND is_active
		 RETURNING `+sessionColumns,
		sessionID, newExpiry,
	)
	out, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, fmt.Errorf("storage/postgres: session %s: %w", sessionID, storage.ErrNotFound)
		}
		return model.Session{}, fmt.Errorf("storage/postgres: refresh session: %w", err)
	}
	return out, nil
}

func (db *DB) ExpireSession(ctx context.Context, sessionID string) error {
	tag, err := db.retryExec(ctx, `UPDATE sessions SET is_active = FALSE WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("storage/postgres: expire session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage/postgres: session %s: %w", sessionID, storage.ErrNotFound)
	}
	return nil
}
