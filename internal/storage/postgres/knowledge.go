package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/CIRWEL/unitares-sub004/internal/model"
	"github.com/CIRWEL/unitares-sub004/internal/storage"
)

const discoveryColumns = `id, agent_id, type, severity, status, created_at, updated_at, resolved_at, summary, details, tags, confidence, references_files, provenance, provenance_chain, superseded_by`

func scanDiscovery(row pgx.Row) (model.Discovery, error) {
	var d model.Discovery
	err := row.Scan(&d.ID, &d.AgentID, &d.Type, &d.Severity, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		&d.ResolvedAt, &d.Summary, &d.Details, &d.Tags, &d.Confidence, &d.ReferencesFiles,
		&d.Provenance, &d.ProvenanceChain, &d.SupersededBy)
	return d, err
}

// UpsertDiscovery inserts a new discovery or updates an existing one by id
// (add_discovery / update_discovery).
func (db *DB) UpsertDiscovery(ctx context.Context, d model.Discovery) (model.Discovery, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Tags == nil {
		d.Tags = []string{}
	}
	if d.ReferencesFiles == nil {
		d.ReferencesFiles = []string{}
	}
	if d.ProvenanceChain == nil {
		d.ProvenanceChain = []string{}
	}

	row := db.pool.QueryRow(ctx,
		`INSERT INTO discoveries (`+discoveryColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		 ON CONFLICT (id) DO UPDATE SET
		     type = EXCLUDED.type, severity = EXCLUDED.severity, status = EXCLUDED.status,
		     updated_at = EXCLUDED.updated_at, resolved_at = EXCLUDED.resolved_at,
		     summary = EXCLUDED.summary, details = EXCLUDED.details, tags = EXCLUDED.tags,
		     confidence = EXCLUDED.confidence, references_files = EXCLUDED.references_files,
		     provenance = EXCLUDED.provenance, provenance_chain = EXCLUDED.provenance_chain,
		     superseded_by = EXCLUDED.superseded_by
		 RETURNING `+discoveryColumns,
		d.ID, d.AgentID, d.Type, d.Severity, d.Status, d.CreatedAt, d.UpdatedAt, d.ResolvedAt,
		d.Summary, d.Details, d.Tags, d.Confidence, d.ReferencesFiles, d.Provenance, d.ProvenanceChain, d.SupersededBy,
	)
	out, err := scanDiscovery(row)
	if err != nil {
		return model.Discovery{}, fmt.Errorf("storage/postgres: upsert discovery: %w", err)
	}
	return out, nil
}

func (db *DB) GetDiscovery(ctx context.Context, id uuid.UUID) (model.Discovery, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+discoveryColumns+` FROM discoveries WHERE id = $1`, id)
	out, err := scanDiscovery(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Discovery{}, fmt.Errorf("storage/postgres: discovery %s: %w", id, storage.ErrNotFound)
		}
		return model.Discovery{}, fmt.Errorf("storage/postgres: get discovery: %w", err)
	}
	return out, nil
}

// SearchDiscoveries applies the discovery filter set. Text queries use Postgres FTS
// over summary||details; SortRelevance orders by ts_rank when Query is set,
// falling back to created_at otherwise.
func (db *DB) SearchDiscoveries(ctx context.Context, filter model.SearchFilter) ([]model.Discovery, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + discoveryColumns)
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Query != "" {
		sb.WriteString(", ts_rank(to_tsvector('english', summary || ' ' || details), plainto_tsquery('english', " + arg(filter.Query) + ")) AS rank")
	}
	sb.WriteString(` FROM discoveries WHERE 1=1`)

	if len(filter.Tags) > 0 {
		sb.WriteString(" AND tags && " + arg(filter.Tags))
	}
	if filter.AgentID != "" {
		sb.WriteString(" AND agent_id = " + arg(filter.AgentID))
	}
	if filter.Since != nil {
		sb.WriteString(" AND created_at >= " + arg(*filter.Since))
	}
	if filter.Until != nil {
		sb.WriteString(" AND created_at <= " + arg(*filter.Until))
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		sb.WriteString(" AND type = ANY(" + arg(types) + ")")
	}
	if len(filter.Severities) > 0 {
		sevs := make([]string, len(filter.Severities))
		for i, s := range filter.Severities {
			sevs[i] = string(s)
		}
		sb.WriteString(" AND severity = ANY(" + arg(sevs) + ")")
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		sb.WriteString(" AND status = ANY(" + arg(statuses) + ")")
	}
	if filter.Query != "" {
		sb.WriteString(" AND to_tsvector('english', summary || ' ' || details) @@ plainto_tsquery('english', " + arg(filter.Query) + ")")
	}

	switch filter.SortBy {
	case model.SortRelevance:
		if filter.Query != "" {
			sb.WriteString(" ORDER BY rank DESC")
		} else {
			sb.WriteString(" ORDER BY created_at DESC")
		}
	default:
		sb.WriteString(" ORDER BY created_at DESC")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	sb.WriteString(" LIMIT " + arg(limit))

	rows, err := db.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: search discoveries: %w", err)
	}
	defer rows.Close()

	var out []model.Discovery
	for rows.Next() {
		var d model.Discovery
		var scanErr error
		if filter.Query != "" {
			var rank float64
			scanErr = rows.Scan(&d.ID, &d.AgentID, &d.Type, &d.Severity, &d.Status, &d.CreatedAt, &d.UpdatedAt,
				&d.ResolvedAt, &d.Summary, &d.Details, &d.Tags, &d.Confidence, &d.ReferencesFiles,
				&d.Provenance, &d.ProvenanceChain, &d.SupersededBy, &rank)
		} else {
			scanErr = rows.Scan(&d.ID, &d.AgentID, &d.Type, &d.Severity, &d.Status, &d.CreatedAt, &d.UpdatedAt,
				&d.ResolvedAt, &d.Summary, &d.Details, &d.Tags, &d.Confidence, &d.ReferencesFiles,
				&d.Provenance, &d.ProvenanceChain, &d.SupersededBy)
		}
		if scanErr != nil {
			return nil, fmt.Errorf("storage/postgres: scan discovery: %w", scanErr)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AddEdge inserts a typed directed edge. Edges are never deleted.
func (db *DB) AddEdge(ctx context.Context, e model.Edge) (model.Edge, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := db.retryExec(ctx,
		`INSERT INTO discovery_edges (id, type, source_id, target_id, response_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Type, e.SourceID, e.TargetID, e.ResponseType, e.CreatedAt,
	)
	if err != nil {
		return model.Edge{}, fmt.Errorf("storage/postgres: add edge: %w", err)
	}
	return e, nil
}

func (db *DB) ListEdges(ctx context.Context, nodeID string) ([]model.Edge, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, type, source_id, target_id, response_type, created_at
		 FROM discovery_edges WHERE source_id = $1 OR target_id = $1
		 ORDER BY created_at ASC`, nodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: list edges: %w", err)
	}
	defer rows.Close()

	var out []model.Edge
	for rows.Next() {
		var e model.Edge
		if err := rows.Scan(&e.ID, &e.Type, &e.SourceID, &e.TargetID, &e.ResponseType, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage/postgres: scan edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteStaleDiscoveries removes (or, if dryRun, merely reports) resolved or
// superseded discoveries older than olderThan (lifecycle_cleanup).
func (db *DB) DeleteStaleDiscoveries(ctx context.Context, olderThan time.Time, dryRun bool) ([]uuid.UUID, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id FROM discoveries
		 WHERE updated_at < $1 AND status IN ('resolved', 'superseded', 'archived')`,
		olderThan,
	)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: select stale discoveries: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("storage/postgres: scan stale discovery id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if dryRun || len(ids) == 0 {
		return ids, nil
	}

	_, err = db.retryExec(ctx, `DELETE FROM discoveries WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: delete stale discoveries: %w", err)
	}
	return ids, nil
}
