// Package postgres is the PostgreSQL implementation of storage.Store.
//
// It manages connection pooling via pgxpool and exposes query methods for
// every table the governance engine touches. Callers should depend on
// storage.Store, not this package, except at wiring time in cmd/unitaresd.
package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/CIRWEL/unitares-sub004/internal/integrity"
	"github.com/CIRWEL/unitares-sub004/internal/model"
	"github.com/CIRWEL/unitares-sub004/internal/storage"
)

// integrityWindowSize bounds how many of the most recent audit events
// Health recomputes on every probe; large enough to catch tampering quickly,
// small enough that a health check stays cheap.
const integrityWindowSize = 500

// dbRetryMaxAttempts/dbRetryBaseDelay bound the retry loop every write in
// this package goes through; serialization failures and deadlocks under
// concurrent agent check-ins are expected, not exceptional.
const (
	dbRetryMaxAttempts = 3
	dbRetryBaseDelay   = 50 * time.Millisecond
)

// DB wraps a pgxpool.Pool and implements storage.Store.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a new DB with a connection pool against dsn.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: parse dsn: %w", err)
	}

	// Best-effort pgvector registration: semantic-search embeddings are an
	// optional capability (SPEC_FULL.md DOMAIN STACK), so a missing
	// extension at startup must not fail the whole connection pool.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if err := pgxvector.RegisterTypes(ctx, conn); err != nil {
			logger.Debug("storage/postgres: pgvector types not registered (extension may not exist yet)", "error", err)
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage/postgres: ping pool: %w", err)
	}

	return &DB{pool: pool, logger: logger}, nil
}

// Pool returns the underlying connection pool for use by other packages
// (e.g. a future LISTEN/NOTIFY consumer).
func (db *DB) Pool() *pgxpool.Pool { return db.pool }

// retryExec runs an Exec through storage.WithRetry, so every write in this
// package survives the serialization failures and deadlocks that concurrent
// agent check-ins against the same rows routinely produce.
func (db *DB) retryExec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	var tag pgconn.CommandTag
	err := storage.WithRetry(ctx, dbRetryMaxAttempts, dbRetryBaseDelay, func() error {
		var execErr error
		tag, execErr = db.pool.Exec(ctx, sql, args...)
		return execErr
	})
	return tag, err
}

// Close shuts down the connection pool.
func (db *DB) Close(ctx context.Context) {
	db.pool.Close()
}

// RunMigrations executes all .sql files from migrationsFS in filename order.
// Forward-only; intended for development and the embedded deployment mode.
func (db *DB) RunMigrations(ctx context.Context, migrationsFS fs.FS, dir string) error {
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("storage/postgres: read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		content, err := fs.ReadFile(migrationsFS, dir+"/"+entry.Name())
		if err != nil {
			return fmt.Errorf("storage/postgres: read migration %s: %w", entry.Name(), err)
		}
		db.logger.Info("storage/postgres: running migration", "file", entry.Name())
		if _, err := db.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("storage/postgres: execute migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Health probes connectivity and reports row counts for the operability surface.
func (db *DB) Health(ctx context.Context) (model.HealthReport, error) {
	report := model.HealthReport{Backend: "postgres", Counts: map[string]int{}, FTSEnabled: true}

	var version int
	if err := db.pool.QueryRow(ctx, `SELECT version FROM schema_meta WHERE name = 'unitares'`).Scan(&version); err != nil {
		return report, fmt.Errorf("storage/postgres: read schema version: %w", err)
	}
	report.SchemaVersion = version

	for _, table := range []string{"identities", "sessions", "audit_events", "discoveries", "dialectic_sessions"} {
		var count int
		if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM `+table).Scan(&count); err != nil {
			return report, fmt.Errorf("storage/postgres: count %s: %w", table, err)
		}
		report.Counts[table] = count
	}

	recent, err := db.QueryAudit(ctx, model.AuditQuery{Limit: integrityWindowSize, Desc: true})
	if err != nil {
		return report, fmt.Errorf("storage/postgres: load audit window for integrity check: %w", err)
	}
	report.IntegrityOK, report.IntegrityRoot = integrity.VerifyEvents(recent)
	return report, nil
}
