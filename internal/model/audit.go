package model

import "time"

// AuditEvent is one append-only row in the telemetry/audit index.
type AuditEvent struct {
	Timestamp  time.Time      `json:"timestamp"`
	AgentID    string         `json:"agent_id"`
	EventType  string         `json:"event_type"`
	Confidence *float64       `json:"confidence,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	RawHash    string         `json:"raw_hash,omitempty"`
}

// Known event-type vocabulary.
const (
	EventAutoAttest           = "auto_attest"
	EventLambda1Skip          = "lambda1_skip"
	EventComplexityDerivation = "complexity_derivation"
	EventCalibrationCheck     = "calibration_check"
	EventAutoResume           = "auto_resume"
	EventDialecticNudge       = "dialectic_nudge"
	EventCrossDeviceCall      = "cross_device_call"
	EventOrchestrationRequest = "orchestration_request"
	EventOrchestrationComplete = "orchestration_complete"
	EventDeviceHealthCheck    = "device_health_check"
	EventRecovery             = "recovery"
	EventCheckIn              = "check_in"
)

// AuditQuery describes a filtered/ordered read over the audit index.
type AuditQuery struct {
	AgentID   string
	EventType string
	Start     *time.Time
	End       *time.Time
	Limit     int
	Desc      bool
}

// SkipRateMetrics summarizes auto_attest vs lambda1_skip activity for an agent
// (or all agents when AgentID is empty).
type SkipRateMetrics struct {
	TotalUpdates  int     `json:"total_updates"`
	TotalSkips    int     `json:"total_skips"`
	SkipRate      float64 `json:"skip_rate"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// HealthReport is the persistence-layer health probe payload.
type HealthReport struct {
	Backend       string         `json:"backend"`
	SchemaVersion int            `json:"schema_version"`
	IntegrityOK   bool           `json:"integrity_ok"`
	IntegrityRoot string         `json:"integrity_root,omitempty"`
	Counts        map[string]int `json:"counts"`
	FTSEnabled    bool           `json:"fts_enabled"`
}
