// Package sqlitestore is the embedded-sqlite implementation of storage.Store,
// used as the zero-dependency fallback backend when DB_BACKEND=sqlite.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/CIRWEL/unitares-sub004/internal/integrity"
	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// integrityWindowSize bounds how many of the most recent audit events
// Health recomputes on every probe; mirrors the postgres backend's window.
const integrityWindowSize = 500

// DB wraps a database/sql handle over modernc.org/sqlite and implements
// storage.Store.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// New opens (creating if necessary) the sqlite database at path.
func New(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage/sqlitestore: open: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY under concurrent writes;
	// reads still benefit from WAL mode set below.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, `PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage/sqlitestore: pragma setup: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage/sqlitestore: ping: %w", err)
	}

	return &DB{conn: conn, logger: logger}, nil
}

// Conn returns the underlying handle for use by migration/backup tooling.
func (db *DB) Conn() *sql.DB { return db.conn }

func (db *DB) Close(ctx context.Context) {
	_ = db.conn.Close()
}

// RunMigrations executes all .sql files from migrationsFS/dir in filename order.
func (db *DB) RunMigrations(ctx context.Context, migrationsFS fs.FS, dir string) error {
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("storage/sqlitestore: read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		content, err := fs.ReadFile(migrationsFS, dir+"/"+entry.Name())
		if err != nil {
			return fmt.Errorf("storage/sqlitestore: read migration %s: %w", entry.Name(), err)
		}
		db.logger.Info("storage/sqlitestore: running migration", "file", entry.Name())
		if _, err := db.conn.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("storage/sqlitestore: execute migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Health probes connectivity and reports row counts for the operability surface.
func (db *DB) Health(ctx context.Context) (model.HealthReport, error) {
	report := model.HealthReport{Backend: "sqlite", Counts: map[string]int{}, FTSEnabled: true}

	var version int
	if err := db.conn.QueryRowContext(ctx, `SELECT version FROM schema_meta WHERE name = 'unitares'`).Scan(&version); err != nil {
		return report, fmt.Errorf("storage/sqlitestore: read schema version: %w", err)
	}
	report.SchemaVersion = version

	for _, table := range []string{"identities", "sessions", "audit_events", "discoveries", "dialectic_sessions"} {
		var count int
		if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM `+table).Scan(&count); err != nil {
			return report, fmt.Errorf("storage/sqlitestore: count %s: %w", table, err)
		}
		report.Counts[table] = count
	}

	recent, err := db.QueryAudit(ctx, model.AuditQuery{Limit: integrityWindowSize, Desc: true})
	if err != nil {
		return report, fmt.Errorf("storage/sqlitestore: load audit window for integrity check: %w", err)
	}
	report.IntegrityOK, report.IntegrityRoot = integrity.VerifyEvents(recent)
	return report, nil
}
