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

const sessionColumns = `session_id, identity_id, created_at, last_active, expires_at, is_active, client_type, client_info, metadata`

func scanSession(row interface{ Scan(...any) error }) (model.Session, error) {
	var s model.Session
	var identityID string
	var clientType sql.NullString
	var clientInfoJSON, metaJSON string
	var isActive int
	err := row.Scan(&s.SessionID, &identityID, &s.CreatedAt, &s.LastActive, &s.ExpiresAt,
		&isActive, &clientType, &clientInfoJSON, &metaJSON)
	if err != nil {
		return model.Session{}, err
	}
	id, err := uuid.Parse(identityID)
	if err != nil {
		return model.Session{}, err
	}
	s.IdentityID = id
	s.IsActive = isActive != 0
	if clientType.Valid {
		s.ClientType = clientType.String
	}
	s.ClientInfo = map[string]any{}
	if err := unmarshalJSON(clientInfoJSON, &s.ClientInfo); err != nil {
		return model.Session{}, err
	}
	s.Metadata = map[string]any{}
	if err := unmarshalJSON(metaJSON, &s.Metadata); err != nil {
		return model.Session{}, err
	}
	return s, nil
}

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
	clientInfoJSON, err := marshalJSON(session.ClientInfo)
	if err != nil {
		return model.Session{}, err
	}
	metaJSON, err := marshalJSON(session.Metadata)
	if err != nil {
		return model.Session{}, err
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		session.SessionID, session.IdentityID.String(), session.CreatedAt, session.LastActive,
		session.ExpiresAt, 1, session.ClientType, clientInfoJSON, metaJSON,
	)
	if err != nil {
		return model.Session{}, fmt.Errorf("storage/sqlitestore: create session: %w", err)
	}
	return db.GetSession(ctx, session.SessionID)
}

func (db *DB) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	out, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, fmt.Errorf("storage/sqlitestore: session %s: %w", sessionID, storage.ErrNotFound)
		}
		return model.Session{}, fmt.Errorf("storage/sqlitestore: get session: %w", err)
	}
	return out, nil
}

func (db *DB) RefreshSession(ctx context.Context, sessionID string, newExpiry time.Time) (model.Session, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE sessions SET last_active = ?, expires_at = ? WHERE session_id = ? AND is_active = 1`,
		time.Now().UTC(), newExpiry, sessionID,
	)
	if err != nil {
		return model.Session{}, fmt.Errorf("storage/sqlitestore: refresh session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Session{}, fmt.Errorf("storage/sqlitestore: session %s: %w", sessionID, storage.ErrNotFound)
	}
	return db.GetSession(ctx, sessionID)
}

func (db *DB) ExpireSession(ctx context.Context, sessionID string) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE sessions SET is_active = 0 WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("storage/sqlitestore: expire session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage/sqlitestore: session %s: %w", sessionID, storage.ErrNotFound)
	}
	return nil
}
