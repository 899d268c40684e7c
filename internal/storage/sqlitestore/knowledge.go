package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CIRWEL/unitares-sub004/internal/model"
	"github.com/CIRWEL/unitares-sub004/internal/storage"
)

const discoveryColumns = `id, agent_id, type, severity, status, created_at, updated_at, resolved_at, summary, details, tags, confidence, references_files, provenance, provenance_chain, superseded_by`

func scanDiscovery(row interface{ Scan(...any) error }) (model.Discovery, error) {
	var d model.Discovery
	var id, agentID string
	var resolvedAt sql.NullTime
	var confidence sql.NullFloat64
	var provenance, supersededBy sql.NullString
	var tagsJSON, refsJSON, chainJSON string
	err := row.Scan(&id, &agentID, &d.Type, &d.Severity, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		&resolvedAt, &d.Summary, &d.Details, &tagsJSON, &confidence, &refsJSON, &provenance, &chainJSON, &supersededBy)
	if err != nil {
		return model.Discovery{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return model.Discovery{}, err
	}
	d.ID = parsed
	d.AgentID = agentID
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}
	if confidence.Valid {
		d.Confidence = &confidence.Float64
	}
	if provenance.Valid {
		d.Provenance = &provenance.String
	}
	if supersededBy.Valid {
		d.SupersededBy = &supersededBy.String
	}
	if err := unmarshalJSON(tagsJSON, &d.Tags); err != nil {
		return model.Discovery{}, err
	}
	if err := unmarshalJSON(refsJSON, &d.ReferencesFiles); err != nil {
		return model.Discovery{}, err
	}
	if err := unmarshalJSON(chainJSON, &d.ProvenanceChain); err != nil {
		return model.Discovery{}, err
	}
	return d, nil
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
	tagsJSON, err := marshalJSON(d.Tags)
	if err != nil {
		return model.Discovery{}, err
	}
	refsJSON, err := marshalJSON(d.ReferencesFiles)
	if err != nil {
		return model.Discovery{}, err
	}
	chainJSON, err := marshalJSON(d.ProvenanceChain)
	if err != nil {
		return model.Discovery{}, err
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO discoveries (`+discoveryColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT (id) DO UPDATE SET
		     type = excluded.type, severity = excluded.severity, status = excluded.status,
		     updated_at = excluded.updated_at, resolved_at = excluded.resolved_at,
		     summary = excluded.summary, details = excluded.details, tags = excluded.tags,
		     confidence = excluded.confidence, references_files = excluded.references_files,
		     provenance = excluded.provenance, provenance_chain = excluded.provenance_chain,
		     superseded_by = excluded.superseded_by`,
		d.ID.String(), d.AgentID, d.Type, d.Severity, d.Status, d.CreatedAt, d.UpdatedAt, d.ResolvedAt,
		d.Summary, d.Details, tagsJSON, d.Confidence, refsJSON, d.Provenance, chainJSON, d.SupersededBy,
	)
	if err != nil {
		return model.Discovery{}, fmt.Errorf("storage/sqlitestore: upsert discovery: %w", err)
	}
	if _, err := db.conn.ExecContext(ctx,
		`INSERT INTO discoveries_fts (id, summary, details) VALUES (?, ?, ?)`,
		d.ID.String(), d.Summary, d.Details,
	); err != nil {
		return model.Discovery{}, fmt.Errorf("storage/sqlitestore: index discovery: %w", err)
	}
	return db.GetDiscovery(ctx, d.ID)
}

func (db *DB) GetDiscovery(ctx context.Context, id uuid.UUID) (model.Discovery, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+discoveryColumns+` FROM discoveries WHERE id = ?`, id.String())
	out, err := scanDiscovery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Discovery{}, fmt.Errorf("storage/sqlitestore: discovery %s: %w", id, storage.ErrNotFound)
		}
		return model.Discovery{}, fmt.Errorf("storage/sqlitestore: get discovery: %w", err)
	}
	return out, nil
}

// SearchDiscoveries applies the discovery filter set. Text queries use the FTS5
// shadow index; tag/type/severity/status filters are applied in SQL, tag
// overlap is checked post-scan since sqlite has no native array column.
func (db *DB) SearchDiscoveries(ctx context.Context, filter model.SearchFilter) ([]model.Discovery, error) {
	var sb strings.Builder
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "?"
	}

	if filter.Query != "" {
		sb.WriteString(`SELECT d.` + strings.ReplaceAll(discoveryColumns, ", ", ", d.") + `
			FROM discoveries d JOIN discoveries_fts f ON f.id = d.id
			WHERE f.discoveries_fts MATCH ` + arg(filter.Query))
	} else {
		sb.WriteString(`SELECT ` + discoveryColumns + ` FROM discoveries d WHERE 1=1`)
	}

	if filter.AgentID != "" {
		sb.WriteString(" AND d.agent_id = " + arg(filter.AgentID))
	}
	if filter.Since != nil {
		sb.WriteString(" AND d.created_at >= " + arg(*filter.Since))
	}
	if filter.Until != nil {
		sb.WriteString(" AND d.created_at <= " + arg(*filter.Until))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = arg(string(t))
		}
		sb.WriteString(" AND d.type IN (" + strings.Join(placeholders, ",") + ")")
	}
	if len(filter.Severities) > 0 {
		placeholders := make([]string, len(filter.Severities))
		for i, s := range filter.Severities {
			placeholders[i] = arg(string(s))
		}
		sb.WriteString(" AND d.severity IN (" + strings.Join(placeholders, ",") + ")")
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = arg(string(s))
		}
		sb.WriteString(" AND d.status IN (" + strings.Join(placeholders, ",") + ")")
	}

	if filter.Query == "" {
		sb.WriteString(" ORDER BY d.created_at DESC")
	} else if filter.SortBy == model.SortRelevance {
		sb.WriteString(" ORDER BY f.rank")
	} else {
		sb.WriteString(" ORDER BY d.created_at DESC")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	sb.WriteString(" LIMIT " + arg(limit))

	rows, err := db.conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("storage/sqlitestore: search discoveries: %w", err)
	}
	defer rows.Close()

	var out []model.Discovery
	for rows.Next() {
		d, err := scanDiscovery(rows)
		if err != nil {
			return nil, fmt.Errorf("storage/sqlitestore: scan discovery: %w", err)
		}
		if !tagsOverlap(filter.Tags, d.Tags) {
			continue
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func tagsOverlap(want, have []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

// AddEdge inserts a typed directed edge. Edges are never deleted.
func (db *DB) AddEdge(ctx context.Context, e model.Edge) (model.Edge, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO discovery_edges (id, type, source_id, target_id, response_type, created_at)
		 VALUES (?,?,?,?,?,?)`,
		e.ID.String(), e.Type, e.SourceID, e.TargetID, e.ResponseType, e.CreatedAt,
	)
	if err != nil {
		return model.Edge{}, fmt.Errorf("storage/sqlitestore: add edge: %w", err)
	}
	return e, nil
}

func (db *DB) ListEdges(ctx context.Context, nodeID string) ([]model.Edge, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, type, source_id, target_id, response_type, created_at
		 FROM discovery_edges WHERE source_id = ? OR target_id = ?
		 ORDER BY created_at ASC`, nodeID, nodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage/sqlitestore: list edges: %w", err)
	}
	defer rows.Close()

	var out []model.Edge
	for rows.Next() {
		var e model.Edge
		var id string
		if err := rows.Scan(&id, &e.Type, &e.SourceID, &e.TargetID, &e.ResponseType, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage/sqlitestore: scan edge: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		e.ID = parsed
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteStaleDiscoveries removes (or, if dryRun, merely reports) resolved or
// superseded discoveries older than olderThan (lifecycle_cleanup).
func (db *DB) DeleteStaleDiscoveries(ctx context.Context, olderThan time.Time, dryRun bool) ([]uuid.UUID, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id FROM discoveries
		 WHERE updated_at < ? AND status IN ('resolved', 'superseded', 'archived')`,
		olderThan,
	)
	if err != nil {
		return nil, fmt.Errorf("storage/sqlitestore: select stale discoveries: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("storage/sqlitestore: scan stale discovery id: %w", err)
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
	if dryRun || len(ids) == 0 {
		return ids, nil
	}

	for _, id := range ids {
		if _, err := db.conn.ExecContext(ctx, `DELETE FROM discoveries WHERE id = ?`, id.String()); err != nil {
			return nil, fmt.Errorf("storage/sqlitestore: delete stale discovery %s: %w", id, err)
		}
	}
	return ids, nil
}
