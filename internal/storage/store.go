// Package storage defines the persistence contract shared by the Postgres
// and embedded-sqlite backends, plus backend-agnostic helpers (retry,
// typed errors, migration running).
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// Store is the full persistence contract every backend must satisfy. It is
// deliberately wide: this is the single seam the rest of the governance
// engine crosses to read or write durable state, so every other package
// depends on this interface rather than on a concrete backend.
type Store interface {
	// Identity.
	UpsertIdentity(ctx context.Context, identity model.Identity) (model.Identity, error)
	GetIdentityByUUID(ctx context.Context, id uuid.UUID) (model.Identity, error)
	GetIdentityByAgentID(ctx context.Context, agentID string) (model.Identity, error)
	ListIdentities(ctx context.Context, limit, offset int) ([]model.Identity, error)

	CreateSession(ctx context.Context, session model.Session) (model.Session, error)
	GetSession(ctx context.Context, sessionID string) (model.Session, error)
	RefreshSession(ctx context.Context, sessionID string, newExpiry time.Time) (model.Session, error)
	ExpireSession(ctx context.Context, sessionID string) error

	// Agent state (durable governance projection).
	UpsertAgentState(ctx context.Context, state model.AgentState) (model.AgentState, error)
	GetAgentState(ctx context.Context, agentUUID uuid.UUID) (model.AgentState, error)

	// Locks.
	AcquireLock(ctx context.Context, lock Lock) (Lock, error)
	ReleaseLock(ctx context.Context, agentID, holderID string) error
	GetLock(ctx context.Context, agentID string) (Lock, bool, error)
	ListStaleLocks(ctx context.Context, olderThan time.Time) ([]Lock, error)

	// Audit.
	AppendAudit(ctx context.Context, event model.AuditEvent) (model.AuditEvent, bool, error)
	QueryAudit(ctx context.Context, q model.AuditQuery) ([]model.AuditEvent, error)
	SkipRateMetrics(ctx context.Context, agentID string, since time.Time) (model.SkipRateMetrics, error)

	// Knowledge graph.
	UpsertDiscovery(ctx context.Context, d model.Discovery) (model.Discovery, error)
	GetDiscovery(ctx context.Context, id uuid.UUID) (model.Discovery, error)
	SearchDiscoveries(ctx context.Context, filter model.SearchFilter) ([]model.Discovery, error)
	AddEdge(ctx context.Context, e model.Edge) (model.Edge, error)
	ListEdges(ctx context.Context, nodeID string) ([]model.Edge, error)
	DeleteStaleDiscoveries(ctx context.Context, olderThan time.Time, dryRun bool) ([]uuid.UUID, error)

	// Dialectic.
	UpsertDialecticSession(ctx context.Context, s model.DialecticSession) (model.DialecticSession, error)
	GetDialecticSession(ctx context.Context, id uuid.UUID) (model.DialecticSession, error)
	AppendDialecticMessage(ctx context.Context, msg model.DialecticMessage) (model.DialecticMessage, error)
	ListActiveDialecticSessions(ctx context.Context) ([]model.DialecticSession, error)
	ListStuckDialecticSessions(ctx context.Context, olderThan time.Time) ([]model.DialecticSession, error)

	// Calibration.
	UpsertCalibrationBin(ctx context.Context, agentID string, bin model.Bin) error
	GetCalibrationBins(ctx context.Context, agentID string) ([]model.Bin, error)
	AppendPendingPrediction(ctx context.Context, agentID string, p model.PendingPrediction) error
	ResolvePendingPrediction(ctx context.Context, agentID, predictionID string, actual bool) (model.PendingPrediction, error)

	// Ethical drift.
	GetDriftBaseline(ctx context.Context, agentID string) (model.EthicalDriftBaseline, bool, error)
	UpsertDriftBaseline(ctx context.Context, agentID string, baseline model.EthicalDriftBaseline) error

	// Lifecycle / operability.
	Health(ctx context.Context) (model.HealthReport, error)
	Close(ctx context.Context)
}

// Lock is the durable row backing an advisory per-agent lock.
type Lock struct {
	AgentID    string    `json:"agent_id"`
	HolderID   string    `json:"holder_id"` // process registry id
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
}
