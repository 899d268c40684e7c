package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// agentStateDoc mirrors model.AgentState but with every field visible to
// JSON, including the bounded-history deques that model.AgentState hides
// from the public tool-response shape (json:"-"). Persistence needs the
// full state to survive a restart; tool responses don't.
type agentStateDoc struct {
	E         float64 `json:"energy"`
	I         float64 `json:"integrity"`
	S         float64 `json:"entropy"`
	V         float64 `json:"void"`

	Coherence  float64           `json:"coherence"`
	Regime     model.Regime      `json:"regime"`
	RiskScore  float64           `json:"risk_score"`
	VoidActive bool              `json:"void_active"`

	RiskHistory      []model.RiskPoint      `json:"risk_history"`
	CoherenceHistory []model.CoherencePoint `json:"coherence_history"`
	UpdateCount      int                    `json:"update_count"`

	RecentUpdateTimestamps []time.Time             `json:"recent_update_timestamps"`
	RecentDecisions        []model.DecisionRecord  `json:"recent_decisions"`

	LastResponseAt    time.Time          `json:"last_response_at"`
	ResponseCompleted bool               `json:"response_completed"`
	HealthStatus      model.HealthStatus `json:"health_status"`

	LoopDetectedAt    *time.Time `json:"loop_detected_at,omitempty"`
	LoopCooldownUntil *time.Time `json:"loop_cooldown_until,omitempty"`

	DialecticConditions []model.DialecticCondition `json:"dialectic_conditions"`
}

// EncodeAgentState serializes the full agent state (including bounded
// histories) for durable storage.
func EncodeAgentState(s model.AgentState) ([]byte, error) {
	doc := agentStateDoc{
		E: s.E, I: s.I, S: s.S, V: s.V,
		Coherence: s.Coherence, Regime: s.Regime, RiskScore: s.RiskScore, VoidActive: s.VoidActive,
		RiskHistory: s.RiskHistory, CoherenceHistory: s.CoherenceHistory, UpdateCount: s.UpdateCount,
		RecentUpdateTimestamps: s.RecentUpdateTimestamps, RecentDecisions: s.RecentDecisions,
		LastResponseAt: s.LastResponseAt, ResponseCompleted: s.ResponseCompleted, HealthStatus: s.HealthStatus,
		LoopDetectedAt: s.LoopDetectedAt, LoopCooldownUntil: s.LoopCooldownUntil,
		DialecticConditions: s.DialecticConditions,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("storage: encode agent state: %w", err)
	}
	return data, nil
}

// DecodeAgentState reverses EncodeAgentState, attaching agentUUID and
// updatedAt (which live in dedicated columns, not the JSON blob).
func DecodeAgentState(agentUUID string, data []byte, updatedAt time.Time) (model.AgentState, error) {
	var doc agentStateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.AgentState{}, fmt.Errorf("storage: decode agent state: %w", err)
	}
	id, err := parseUUID(agentUUID)
	if err != nil {
		return model.AgentState{}, fmt.Errorf("storage: decode agent state uuid: %w", err)
	}
	return model.AgentState{
		AgentUUID: id,
		E:         doc.E, I: doc.I, S: doc.S, V: doc.V,
		Coherence: doc.Coherence, Regime: doc.Regime, RiskScore: doc.RiskScore, VoidActive: doc.VoidActive,
		RiskHistory: doc.RiskHistory, CoherenceHistory: doc.CoherenceHistory, UpdateCount: doc.UpdateCount,
		RecentUpdateTimestamps: doc.RecentUpdateTimestamps, RecentDecisions: doc.RecentDecisions,
		LastResponseAt: doc.LastResponseAt, ResponseCompleted: doc.ResponseCompleted, HealthStatus: doc.HealthStatus,
		LoopDetectedAt: doc.LoopDetectedAt, LoopCooldownUntil: doc.LoopCooldownUntil,
		DialecticConditions: doc.DialecticConditions,
		UpdatedAt:           updatedAt,
	}, nil
}
