// Package dialectic implements the two-agent thesis/antithesis/synthesis
// review protocol: a small state machine over a paused agent and a
// reviewer, reviewer selection, convergence to a resolution or failure, and
// the stuck-session sweep that forces abandoned sessions to fail. Every
// function here is pure, in the same style governance.Step uses: given a
// prior session and an explicit input, return the next session (and any
// message/resolution produced); the caller persists the result.
package dialectic

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// DefaultMaxSynthesisRounds bounds how many synthesis round-trips a session
// gets before it's declared failed rather than converged.
const DefaultMaxSynthesisRounds = 3

// DefaultStuckThreshold is how long a session can go without an update
// before the auto-resolve sweep fails it. Chosen to comfortably exceed the
// time a reviewer might reasonably take to read and respond to an
// antithesis, while still being short enough that a truly abandoned
// session doesn't block the paused agent indefinitely.
const DefaultStuckThreshold = 2 * time.Hour

// NewSession builds a session in awaiting_thesis/active for pausedAgentID,
// optionally pre-attached to a discovery and dispute type. Reviewer
// selection is a separate step (SelectReviewer) so creation can proceed
// even when no reviewer is immediately available.
func NewSession(pausedAgentID uuid.UUID, topic, reason string, discoveryID *uuid.UUID, disputeType *model.DisputeType, sessionType model.SessionType, now time.Time) model.DialecticSession {
	maxRounds := DefaultMaxSynthesisRounds
	return model.DialecticSession{
		SessionID:          uuid.New(),
		PausedAgentID:      pausedAgentID,
		Phase:              model.PhaseAwaitingThesis,
		Status:             model.DialecticActive,
		CreatedAt:          now,
		UpdatedAt:          now,
		Topic:              topic,
		Reason:             reason,
		DiscoveryID:        discoveryID,
		DisputeType:        disputeType,
		SessionType:        sessionType,
		MaxSynthesisRounds: maxRounds,
	}
}

// appendMessage assigns the next stable (session_id, seq) pair and appends
// msg to the transcript, enforcing that timestamps stay monotone within the
// session by clamping to the prior message's timestamp when now would
// otherwise move backwards.
func appendMessage(session model.DialecticSession, msg model.DialecticMessage, now time.Time) (model.DialecticSession, model.DialecticMessage) {
	msg.ID = uuid.New()
	msg.SessionID = session.SessionID
	msg.Seq = len(session.Transcript) + 1
	msg.Timestamp = now
	if len(session.Transcript) > 0 {
		prior := session.Transcript[len(session.Transcript)-1].Timestamp
		if msg.Timestamp.Before(prior) {
			msg.Timestamp = prior
		}
	}
	session.Transcript = append(session.Transcript, msg)
	session.UpdatedAt = msg.Timestamp
	return session, msg
}

// SubmitThesis records the paused agent's root-cause/conditions and
// advances the session to antithesis.
func SubmitThesis(session model.DialecticSession, agentID uuid.UUID, rootCause string, proposedConditions []model.DialecticCondition, reasoning string, now time.Time) (model.DialecticSession, error) {
	if err := requireActivePhase(session, model.PhaseAwaitingThesis); err != nil {
		return session, err
	}
	if agentID != session.PausedAgentID {
		return session, fmt.Errorf("dialectic: only the paused agent may submit a thesis")
	}

	session, _ = appendMessage(session, model.DialecticMessage{
		AgentID:            agentID,
		MessageType:        model.MsgThesis,
		RootCause:          rootCause,
		ProposedConditions: proposedConditions,
		Reasoning:          reasoning,
	}, now)
	session.Phase = model.PhaseAntithesis
	return session, nil
}

// SubmitAntithesis records the reviewer's observed metrics and concerns and
// advances the session to synthesis.
func SubmitAntithesis(session model.DialecticSession, agentID uuid.UUID, observedMetrics map[string]any, concerns []string, reasoning string, now time.Time) (model.DialecticSession, error) {
	if err := requireActivePhase(session, model.PhaseAntithesis); err != nil {
		return session, err
	}
	if session.ReviewerAgentID == nil || agentID != *session.ReviewerAgentID {
		return session, fmt.Errorf("dialectic: only the assigned reviewer may submit an antithesis")
	}

	session, _ = appendMessage(session, model.DialecticMessage{
		AgentID:         agentID,
		MessageType:     model.MsgAntithesis,
		ObservedMetrics: observedMetrics,
		Concerns:        concerns,
		Reasoning:       reasoning,
	}, now)
	session.Phase = model.PhaseSynthesis
	return session, nil
}

func requireActivePhase(session model.DialecticSession, want model.DialecticPhase) error {
	if session.Status != model.DialecticActive {
		return fmt.Errorf("dialectic: session %s is not active (status %s)", session.SessionID, session.Status)
	}
	if session.Phase != want {
		return fmt.Errorf("dialectic: session %s is in phase %s, expected %s", session.SessionID, session.Phase, want)
	}
	return nil
}

// CheckStuck reports whether session has gone without an update longer than
// threshold as of now, and if so returns the session transitioned to failed
// with a synthetic system message recording why.
func CheckStuck(session model.DialecticSession, threshold time.Duration, now time.Time) (model.DialecticSession, bool) {
	if session.Status != model.DialecticActive {
		return session, false
	}
	last := session.UpdatedAt
	if last.IsZero() {
		last = session.CreatedAt
	}
	if now.Sub(last) < threshold {
		return session, false
	}

	session, _ = appendMessage(session, model.DialecticMessage{
		AgentID:     uuid.Nil, // synthetic "system" message, not attributable to either party
		MessageType: model.MsgSystem,
		Reasoning:   fmt.Sprintf("session stuck: no update for %s (threshold %s), auto-failed", now.Sub(last).Round(time.Second), threshold),
	}, now)
	session.Phase = model.PhaseFailed
	session.Status = model.DialecticFailed
	return session, true
}
