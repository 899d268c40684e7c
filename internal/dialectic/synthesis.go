package dialectic

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// SubmitSynthesis records a synthesis message from either party and checks
// for convergence once both parties have spoken for the current round.
//
// pair is the counterpart's synthesis message for this same round, if
// already submitted — nil when thisMsg is the first of the pair. The
// caller (which holds the full transcript) is responsible for identifying
// the pair; keeping that lookup out of this package mirrors
// governance.Step's explicit-input, no-hidden-state-scan style.
//
// When both messages are present and both agree, the session converges and
// a Resolution is returned. When both are present but don't agree, the
// round increments (or the session fails if max_synthesis_rounds is
// reached). When only thisMsg is present, the session stays in synthesis
// awaiting the counterpart.
func SubmitSynthesis(session model.DialecticSession, agentID uuid.UUID, proposedConditions []model.DialecticCondition, reasoning string, agrees *bool, pair *model.DialecticMessage, now time.Time) (model.DialecticSession, *model.Resolution, error) {
	if err := requireActivePhase(session, model.PhaseSynthesis); err != nil {
		return session, nil, err
	}
	if agentID != session.PausedAgentID && (session.ReviewerAgentID == nil || agentID != *session.ReviewerAgentID) {
		return session, nil, fmt.Errorf("dialectic: agent %s is not a party to session %s", agentID, session.SessionID)
	}

	session, thisMsg := appendMessage(session, model.DialecticMessage{
		AgentID:            agentID,
		MessageType:        model.MsgSynthesis,
		ProposedConditions: proposedConditions,
		Reasoning:          reasoning,
		Agrees:             agrees,
	}, now)

	if pair == nil {
		return session, nil, nil
	}

	bothAgree := boolValue(thisMsg.Agrees) && boolValue(pair.Agrees)
	if bothAgree {
		resolution := buildResolution(session, thisMsg)
		session.Phase = model.PhaseResolved
		session.Status = model.DialecticConverged
		session.Resolution = &resolution
		return session, &resolution, nil
	}

	if session.SynthesisRound < session.MaxSynthesisRounds {
		session.SynthesisRound++
		return session, nil, nil
	}

	session, _ = appendMessage(session, model.DialecticMessage{
		AgentID:     uuid.Nil,
		MessageType: model.MsgFailed,
		Reasoning:   "synthesis did not converge within max_synthesis_rounds",
	}, now)
	session.Phase = model.PhaseFailed
	session.Status = model.DialecticFailed
	return session, nil, nil
}

func boolValue(b *bool) bool { return b != nil && *b }
