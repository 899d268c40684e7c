package model

import (
	"time"

	"github.com/google/uuid"
)

// DialecticPhase enumerates the state-machine phases of a dialectic session.
type DialecticPhase string

const (
	PhaseAwaitingThesis DialecticPhase = "awaiting_thesis"
	PhaseThesis         DialecticPhase = "thesis"
	PhaseAntithesis     DialecticPhase = "antithesis"
	PhaseSynthesis      DialecticPhase = "synthesis"
	PhaseResolved       DialecticPhase = "resolved"
	PhaseFailed         DialecticPhase = "failed"
	PhaseCanceled       DialecticPhase = "canceled"
)

// DialecticStatus enumerates the coarse status of a dialectic session.
type DialecticStatus string

const (
	DialecticActive    DialecticStatus = "active"
	DialecticConverged DialecticStatus = "converged"
	DialecticFailed    DialecticStatus = "failed"
	DialecticCanceled  DialecticStatus = "canceled"
)

// DisputeType classifies why a dialectic review was requested.
type DisputeType string

const (
	DisputeDispute       DisputeType = "dispute"
	DisputeCorrection    DisputeType = "correction"
	DisputeVerification  DisputeType = "verification"
)

// SessionType distinguishes a recovery dialectic from a general dialogue.
type SessionType string

const (
	SessionRecovery SessionType = "recovery"
	SessionDialogue SessionType = "dialogue"
)

// MessageType enumerates dialectic transcript message kinds.
type MessageType string

const (
	MsgThesis     MessageType = "thesis"
	MsgAntithesis MessageType = "antithesis"
	MsgSynthesis  MessageType = "synthesis"
	MsgFailed     MessageType = "failed"
	MsgSystem     MessageType = "system"
)

// DialecticMessage is one append-only transcript entry. Ordering is total,
// established by (SessionID, Seq).
type DialecticMessage struct {
	ID                 uuid.UUID           `json:"id"`
	SessionID          uuid.UUID           `json:"session_id"`
	Seq                int                 `json:"seq"`
	AgentID            uuid.UUID           `json:"agent_id"`
	MessageType        MessageType         `json:"message_type"`
	Timestamp          time.Time           `json:"timestamp"`
	RootCause          string              `json:"root_cause,omitempty"`
	ProposedConditions []DialecticCondition `json:"proposed_conditions,omitempty"`
	Reasoning          string              `json:"reasoning,omitempty"`
	Agrees             *bool               `json:"agrees,omitempty"`
	ObservedMetrics    map[string]any      `json:"observed_metrics,omitempty"`
	Concerns           []string            `json:"concerns,omitempty"`
	Signature          string              `json:"signature,omitempty"`
}

// ResolutionAction enumerates the outcome of a dialectic resolution.
type ResolutionAction string

const (
	ActionResume ResolutionAction = "resume"
	ActionBlock  ResolutionAction = "block"
)

// Resolution is the terminal outcome of a converged dialectic session.
type Resolution struct {
	Action     ResolutionAction     `json:"action"`
	Conditions []DialecticCondition `json:"conditions"`
	RootCause  string               `json:"root_cause"`
	Hash       string               `json:"hash"`
}

// DialecticSession is the state-machine record for one paused-agent review.
type DialecticSession struct {
	SessionID         uuid.UUID        `json:"session_id"`
	PausedAgentID     uuid.UUID        `json:"paused_agent_id"`
	ReviewerAgentID   *uuid.UUID       `json:"reviewer_agent_id,omitempty"`
	Phase             DialecticPhase   `json:"phase"`
	Status            DialecticStatus  `json:"status"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	Topic             string           `json:"topic,omitempty"`
	Reason            string           `json:"reason,omitempty"`
	DiscoveryID       *uuid.UUID       `json:"discovery_id,omitempty"`
	DisputeType       *DisputeType     `json:"dispute_type,omitempty"`
	SessionType       SessionType      `json:"session_type"`
	SynthesisRound    int              `json:"synthesis_round"`
	MaxSynthesisRounds int             `json:"max_synthesis_rounds"`
	Transcript        []DialecticMessage `json:"transcript"`
	Resolution        *Resolution      `json:"resolution,omitempty"`
	ExcludedReviewers []uuid.UUID      `json:"excluded_reviewers,omitempty"`
}

// IsActive reports whether the session still counts against the "no two
// active dialectic sessions reference the same paused_agent_id" invariant.
func (d DialecticSession) IsActive() bool {
	return d.Status == DialecticActive
}
