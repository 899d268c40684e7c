package model

import (
	"time"

	"github.com/google/uuid"
)

// Regime is the categorical label for dynamic behavior derived from the
// governance state engine.
type Regime string

const (
	RegimeExploration Regime = "EXPLORATION"
	RegimeConvergence Regime = "CONVERGENCE"
	RegimeDivergence  Regime = "DIVERGENCE"
	RegimeLocked      Regime = "LOCKED"
	RegimeTransition  Regime = "TRANSITION"
)

// Decision is the governance verdict returned for a check-in.
type Decision string

const (
	DecisionProceed Decision = "proceed"
	DecisionGuide   Decision = "guide"
	DecisionPause   Decision = "pause"
	DecisionReject  Decision = "reject"
)

// HealthStatus summarizes agent well-being derived from risk/coherence/void.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthCritical HealthStatus = "critical"
)

// RiskPoint and CoherencePoint are bounded-history samples.
type RiskPoint struct {
	At    time.Time
	Value float64
}

type CoherencePoint struct {
	At    time.Time
	Value float64
}

// DecisionRecord is a bounded-history sample of a past decision, used for
// loop detection.
type DecisionRecord struct {
	At       time.Time
	Decision Decision
}

// DialecticCondition is a structured constraint applied to an identity by a
// dialectic resolution (condition grammar output).
type DialecticCondition struct {
	Action    string  `json:"action"` // reduce, increase, set, monitor, limit, unknown
	Target    string  `json:"target"`
	Value     float64 `json:"value,omitempty"`
	Unit      string  `json:"unit,omitempty"`      // hours, minutes (for monitor)
	Direction string  `json:"direction,omitempty"` // below, above (for limit)
	Raw       string  `json:"raw"`                 // original natural-language text, always preserved
	AppliedAt time.Time `json:"applied_at"`
}

// AgentState is the per-identity governance state (EISV + derived scalars).
type AgentState struct {
	AgentUUID uuid.UUID `json:"agent_uuid"`

	E float64 `json:"energy"`
	I float64 `json:"integrity"`
	S float64 `json:"entropy"`
	V float64 `json:"void"`

	Coherence float64      `json:"coherence"`
	Regime    Regime       `json:"regime"`
	RiskScore float64      `json:"risk_score"`

	VoidActive bool `json:"void_active"`

	RiskHistory      []RiskPoint      `json:"-"`
	CoherenceHistory []CoherencePoint `json:"-"`
	UpdateCount      int              `json:"update_count"`

	RecentUpdateTimestamps []time.Time      `json:"-"`
	RecentDecisions        []DecisionRecord `json:"-"`

	LastResponseAt    time.Time `json:"last_response_at"`
	ResponseCompleted bool      `json:"response_completed"`
	HealthStatus      HealthStatus `json:"health_status"`

	LoopDetectedAt    *time.Time `json:"loop_detected_at,omitempty"`
	LoopCooldownUntil *time.Time `json:"loop_cooldown_until,omitempty"`

	DialecticConditions []DialecticCondition `json:"dialectic_conditions"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Bound caps for the risk and coherence histories kept per agent.
const (
	RiskHistoryWindow      = 5
	CoherenceHistoryWindow = 5
	RecentUpdatesWindow    = 20
	RecentDecisionsWindow  = 20
)

func appendRiskBounded(h []RiskPoint, p RiskPoint) []RiskPoint {
	h = append(h, p)
	if len(h) > RiskHistoryWindow {
		h = h[len(h)-RiskHistoryWindow:]
	}
	return h
}

func appendCoherenceBounded(h []CoherencePoint, p CoherencePoint) []CoherencePoint {
	h = append(h, p)
	if len(h) > CoherenceHistoryWindow {
		h = h[len(h)-CoherenceHistoryWindow:]
	}
	return h
}

func appendTimestampBounded(h []time.Time, t time.Time) []time.Time {
	h = append(h, t)
	if len(h) > RecentUpdatesWindow {
		h = h[len(h)-RecentUpdatesWindow:]
	}
	return h
}

func appendDecisionBounded(h []DecisionRecord, d DecisionRecord) []DecisionRecord {
	h = append(h, d)
	if len(h) > RecentDecisionsWindow {
		h = h[len(h)-RecentDecisionsWindow:]
	}
	return h
}

// RecordRisk appends a risk sample, dropping the oldest past the window.
func (s *AgentState) RecordRisk(at time.Time, v float64) {
	s.RiskHistory = appendRiskBounded(s.RiskHistory, RiskPoint{At: at, Value: v})
}

// RecordCoherence appends a coherence sample, dropping the oldest past the window.
func (s *AgentState) RecordCoherence(at time.Time, v float64) {
	s.CoherenceHistory = appendCoherenceBounded(s.CoherenceHistory, CoherencePoint{At: at, Value: v})
}

// RecordUpdate appends an update timestamp and decision to the loop-detection deques.
func (s *AgentState) RecordUpdate(at time.Time, d Decision) {
	s.RecentUpdateTimestamps = appendTimestampBounded(s.RecentUpdateTimestamps, at)
	s.RecentDecisions = appendDecisionBounded(s.RecentDecisions, DecisionRecord{At: at, Decision: d})
}

// RiskSlope returns the difference between the most recent two risk samples,
// or 0 if fewer than two are recorded.
func (s *AgentState) RiskSlope() float64 {
	n := len(s.RiskHistory)
	if n < 2 {
		return 0
	}
	return s.RiskHistory[n-1].Value - s.RiskHistory[n-2].Value
}
