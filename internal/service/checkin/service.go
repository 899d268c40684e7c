// Package checkin implements the primary agent check-in flow: resolve
// identity, acquire the per-agent lock, derive grounded EISV inputs from
// the dual-log comparison, update the drift baseline, step the governance
// dynamics, queue a calibration prediction, persist the next state, and
// append an audit event. Everything it calls (duallog, drift, governance,
// calibration) is a pure function; this package is the one place that
// sequences them against storage under lock.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/CIRWEL/unitares-sub004/internal/calibration"
	"github.com/CIRWEL/unitares-sub004/internal/drift"
	"github.com/CIRWEL/unitares-sub004/internal/duallog"
	"github.com/CIRWEL/unitares-sub004/internal/governance"
	"github.com/CIRWEL/unitares-sub004/internal/identity"
	"github.com/CIRWEL/unitares-sub004/internal/lock"
	"github.com/CIRWEL/unitares-sub004/internal/model"
	"github.com/CIRWEL/unitares-sub004/internal/storage"
	"github.com/CIRWEL/unitares-sub004/internal/telemetry"
)

// Metrics is the subset of telemetry.Metrics this service drives.
type Metrics interface {
	RecordDecision(decision string)
}

// Service runs one check-in at a time per agent, serialized by lock.Manager.
type Service struct {
	store       storage.Store
	locks       *lock.Manager
	logger      *slog.Logger
	thresholds  governance.Thresholds
	analyzer    *duallog.Analyzer
	metrics     Metrics
	lockTimeout time.Duration

	monitorsMu sync.Mutex
	monitors   map[uuid.UUID]*duallog.RestorativeMonitor

	stepDuration metric.Float64Histogram
}

// New builds a Service. metrics may be nil to disable decision-count
// reporting (e.g. in tests that don't stand up a Prometheus registry).
func New(store storage.Store, locks *lock.Manager, logger *slog.Logger, thresholds governance.Thresholds, metrics Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	meter := telemetry.Meter("unitares/checkin")
	stepDur, _ := meter.Float64Histogram("unitares.checkin.step.duration",
		metric.WithDescription("Time to run one process_agent_update check-in"),
		metric.WithUnit("ms"),
	)
	return &Service{
		store:        store,
		locks:        locks,
		logger:       logger,
		thresholds:   thresholds,
		analyzer:     duallog.NewAnalyzer(),
		metrics:      metrics,
		lockTimeout:  5 * time.Second,
		monitors:     make(map[uuid.UUID]*duallog.RestorativeMonitor),
		stepDuration: stepDur,
	}
}

// Input is the caller-facing argument to Process, mirroring the
// process_agent_update tool's request fields.
type Input struct {
	ResponseText          string
	Complexity            *float64
	Confidence            *float64
	TaskType              string
	LatencyMS             *int
	IsSessionContinuation bool
}

// EISVLabels buckets each state variable into a qualitative band, alongside
// the raw values a caller can already read off Result.State.
type EISVLabels struct {
	Energy    string `json:"energy"`
	Integrity string `json:"integrity"`
	Entropy   string `json:"entropy"`
	Void      string `json:"void"`
}

// Result is the full process_agent_update response payload.
type Result struct {
	Metrics             model.ContinuityMetrics
	Decision            model.Decision
	Margin              float64
	Health              model.HealthStatus
	Guidance            []string
	EISVLabels          EISVLabels
	NeedsRestoration    bool
	RestorationCooldown time.Duration
}

// Process runs the full check-in sequence for id.AgentUUID: validate
// already happened in the dispatch pipeline by the time this is called, so
// this starts from identity resolution (already done by the caller) and
// acquires the agent lock before touching any state.
func (s *Service) Process(ctx context.Context, id identity.Result, in Input) (Result, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("unitares.agent_id", id.AgentID))
	start := time.Now()

	holderID := uuid.NewString()
	handle, err := s.locks.Acquire(ctx, id.AgentID, holderID, s.lockTimeout)
	if err != nil {
		return Result{}, fmt.Errorf("checkin: acquire lock for %s: %w", id.AgentID, err)
	}
	defer func() {
		if relErr := s.locks.Release(ctx, handle); relErr != nil {
			s.logger.Warn("checkin: release lock failed", "agent_id", id.AgentID, "error", relErr)
		}
	}()

	prior, err := s.store.GetAgentState(ctx, id.AgentUUID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return Result{}, fmt.Errorf("checkin: load agent state: %w", err)
		}
		prior = model.AgentState{AgentUUID: id.AgentUUID, Coherence: 0.5, HealthStatus: model.HealthHealthy}
	}

	baseline, found, err := s.store.GetDriftBaseline(ctx, id.AgentID)
	if err != nil {
		return Result{}, fmt.Errorf("checkin: load drift baseline: %w", err)
	}
	if !found {
		baseline = drift.NewBaseline(id.AgentID)
	}

	// C5: derive the grounded EISV inputs from the operational/reflective comparison.
	features := s.analyzer.Analyze(in.ResponseText)
	var prevDerived *float64
	if prior.UpdateCount > 0 {
		pc := baseline.BaselineComplexity
		prevDerived = &pc
	}
	continuity := duallog.Derive(duallog.ContinuityInput{
		Features:              features,
		SelfComplexity:        in.Complexity,
		SelfConfidence:        in.Confidence,
		PrevDerivedComplexity: prevDerived,
		HasPriorObservation:   prior.UpdateCount > 0,
		LatencyMS:             in.LatencyMS,
		IsSessionContinuation: in.IsSessionContinuation,
	})

	now := time.Now().UTC()
	monitor := s.monitorFor(id.AgentUUID)
	monitor.Record(now, continuity.ComplexityDivergence)
	needsRestoration, cooldown := monitor.Evaluate(now)

	confidence := 0.5
	if in.Confidence != nil {
		confidence = *in.Confidence
	}

	// C6: compute the drift vector this check-in produces against the prior
	// baseline. The vector depends only on the baseline as it stood before
	// this check-in, not on the decision this check-in is about to produce,
	// so it can be computed ahead of governance.Step.
	driftInputs := drift.Inputs{
		CurrentCoherence:     prior.Coherence,
		CurrentConfidence:    confidence,
		ComplexityDivergence: continuity.ComplexityDivergence,
	}
	_, driftVec := drift.Compute(baseline, driftInputs)

	// C4: step the EISV dynamics and derive the decision.
	next, result := governance.Step(prior, governance.Inputs{
		EIn:              continuity.EInput,
		IIn:              continuity.IInput,
		SIn:              continuity.SInput,
		Confidence:       confidence,
		Complexity:       continuity.DerivedComplexity,
		EthicalDriftNorm: driftVec.Norm(),
		TaskContext:      in.TaskType,
	}, now, s.thresholds)

	// Fold this check-in's own decision into the baseline update now that it
	// is known, so next check-in's decision-consistency term sees it.
	driftInputs.Decision = &result.Decision
	nextBaseline, _ := drift.Compute(baseline, driftInputs)

	// C7: queue a calibration prediction for later resolution.
	pending := calibration.Record(confidence, string(result.Decision), now)
	if err := s.store.AppendPendingPrediction(ctx, id.AgentID, pending); err != nil {
		return Result{}, fmt.Errorf("checkin: append pending prediction: %w", err)
	}

	// C1: persist the next state and baseline.
	if _, err := s.store.UpsertAgentState(ctx, next); err != nil {
		return Result{}, fmt.Errorf("checkin: persist agent state: %w", err)
	}
	if err := s.store.UpsertDriftBaseline(ctx, id.AgentID, nextBaseline); err != nil {
		return Result{}, fmt.Errorf("checkin: persist drift baseline: %w", err)
	}

	metrics := model.ContinuityMetrics{
		Timestamp:             now,
		AgentID:               id.AgentID,
		DerivedComplexity:     continuity.DerivedComplexity,
		SelfComplexity:        in.Complexity,
		ComplexityDivergence:  continuity.ComplexityDivergence,
		OverconfidenceSignal:  continuity.Overconfidence,
		UnderconfidenceSignal: continuity.Underconfidence,
		EInput:                continuity.EInput,
		IInput:                continuity.IInput,
		SInput:                continuity.SInput,
	}

	// C12: append the audit event. A failure here is logged, not returned —
	// the check-in itself already succeeded and its state is already durable.
	if _, _, err := s.store.AppendAudit(ctx, model.AuditEvent{
		Timestamp:  now,
		AgentID:    id.AgentID,
		EventType:  model.EventCheckIn,
		Confidence: &confidence,
		Details: map[string]any{
			"decision":          result.Decision,
			"margin":            result.Margin,
			"regime":            next.Regime,
			"task_type":         in.TaskType,
			"needs_restoration": needsRestoration,
		},
	}); err != nil {
		s.logger.Warn("checkin: append audit failed", "agent_id", id.AgentID, "error", err)
	}

	if s.metrics != nil {
		s.metrics.RecordDecision(string(result.Decision))
	}
	s.stepDuration.Record(ctx, float64(time.Since(start).Milliseconds()))

	return Result{
		Metrics:             metrics,
		Decision:            result.Decision,
		Margin:              result.Margin,
		Health:              next.HealthStatus,
		Guidance:            result.Guidance,
		EISVLabels:          labelEISV(next),
		NeedsRestoration:    needsRestoration,
		RestorationCooldown: cooldown,
	}, nil
}

func (s *Service) monitorFor(agentUUID uuid.UUID) *duallog.RestorativeMonitor {
	s.monitorsMu.Lock()
	defer s.monitorsMu.Unlock()
	m, ok := s.monitors[agentUUID]
	if !ok {
		m = duallog.NewRestorativeMonitor()
		s.monitors[agentUUID] = m
	}
	return m
}

func labelEISV(s model.AgentState) EISVLabels {
	band := func(v float64) string {
		switch {
		case v < 0.3:
			return "low"
		case v < 0.7:
			return "moderate"
		default:
			return "high"
		}
	}
	return EISVLabels{
		Energy:    band(s.E),
		Integrity: band(s.I),
		Entropy:   band(s.S),
		Void:      band(s.V),
	}
}
