package dialectic

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

func TestNewSession_StartsInAwaitingThesisActive(t *testing.T) {
	now := time.Unix(1000, 0)
	pausedAgent := uuid.New()
	session := NewSession(pausedAgent, "topic", "reason", nil, nil, model.SessionRecovery, now)

	assert.Equal(t, model.PhaseAwaitingThesis, session.Phase)
	assert.Equal(t, model.DialecticActive, session.Status)
	assert.Equal(t, pausedAgent, session.PausedAgentID)
	assert.Equal(t, DefaultMaxSynthesisRounds, session.MaxSynthesisRounds)
	assert.Empty(t, session.Transcript)
}

func TestSubmitThesis_OnlyPausedAgentMaySubmit(t *testing.T) {
	now := time.Unix(1000, 0)
	pausedAgent := uuid.New()
	session := NewSession(pausedAgent, "t", "r", nil, nil, model.SessionRecovery, now)

	_, err := SubmitThesis(session, uuid.New(), "root cause", nil, "reasoning", now)
	assert.Error(t, err)
}

func TestSubmitThesis_AdvancesToAntithesisAndAppendsMessage(t *testing.T) {
	now := time.Unix(1000, 0)
	pausedAgent := uuid.New()
	session := NewSession(pausedAgent, "t", "r", nil, nil, model.SessionRecovery, now)

	session, err := SubmitThesis(session, pausedAgent, "root cause", nil, "reasoning", now)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseAntithesis, session.Phase)
	require.Len(t, session.Transcript, 1)
	assert.Equal(t, model.MsgThesis, session.Transcript[0].MessageType)
	assert.Equal(t, 1, session.Transcript[0].Seq)
	assert.Equal(t, "root cause", session.Transcript[0].RootCause)
}

func TestSubmitThesis_WrongPhaseRejected(t *testing.T) {
	now := time.Unix(1000, 0)
	pausedAgent := uuid.New()
	session := NewSession(pausedAgent, "t", "r", nil, nil, model.SessionRecovery, now)
	session, err := SubmitThesis(session, pausedAgent, "rc", nil, "reasoning", now)
	require.NoError(t, err)

	_, err = SubmitThesis(session, pausedAgent, "rc2", nil, "reasoning", now)
	assert.Error(t, err)
}

func TestSubmitAntithesis_OnlyAssignedReviewerMaySubmit(t *testing.T) {
	now := time.Unix(1000, 0)
	pausedAgent := uuid.New()
	reviewer := uuid.New()
	session := NewSession(pausedAgent, "t", "r", nil, nil, model.SessionRecovery, now)
	session, _ = SubmitThesis(session, pausedAgent, "rc", nil, "reasoning", now)
	session = AssignReviewer(session, reviewer, now)

	_, err := SubmitAntithesis(session, uuid.New(), nil, nil, "reasoning", now)
	assert.Error(t, err)

	session2, err := SubmitAntithesis(session, reviewer, map[string]any{"risk": 0.4}, []string{"concern"}, "reasoning", now)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseSynthesis, session2.Phase)
	require.Len(t, session2.Transcript, 2)
	assert.Equal(t, model.MsgAntithesis, session2.Transcript[1].MessageType)
}

func TestAppendMessage_ClampsTimestampForward(t *testing.T) {
	start := time.Unix(1000, 0)
	pausedAgent := uuid.New()
	session := NewSession(pausedAgent, "t", "r", nil, nil, model.SessionRecovery, start)
	session, _ = SubmitThesis(session, pausedAgent, "rc", nil, "reasoning", start)

	earlier := start.Add(-time.Hour)
	reviewer := uuid.New()
	session = AssignReviewer(session, reviewer, start)
	session, err := SubmitAntithesis(session, reviewer, nil, nil, "reasoning", earlier)
	require.NoError(t, err)
	assert.False(t, session.Transcript[1].Timestamp.Before(session.Transcript[0].Timestamp))
}

func TestCheckStuck_NotStuckBeforeThreshold(t *testing.T) {
	start := time.Unix(1000, 0)
	pausedAgent := uuid.New()
	session := NewSession(pausedAgent, "t", "r", nil, nil, model.SessionRecovery, start)

	later := start.Add(time.Hour)
	got, stuck := CheckStuck(session, DefaultStuckThreshold, later)
	assert.False(t, stuck)
	assert.Equal(t, session, got)
}

func TestCheckStuck_FailsSessionPastThreshold(t *testing.T) {
	start := time.Unix(1000, 0)
	pausedAgent := uuid.New()
	session := NewSession(pausedAgent, "t", "r", nil, nil, model.SessionRecovery, start)

	later := start.Add(3 * time.Hour)
	got, stuck := CheckStuck(session, DefaultStuckThreshold, later)
	require.True(t, stuck)
	assert.Equal(t, model.PhaseFailed, got.Phase)
	assert.Equal(t, model.DialecticFailed, got.Status)
	require.Len(t, got.Transcript, 1)
	assert.Equal(t, model.MsgSystem, got.Transcript[0].MessageType)
	assert.Equal(t, uuid.Nil, got.Transcript[0].AgentID)
}

func TestCheckStuck_AlreadyTerminalSessionUnaffected(t *testing.T) {
	start := time.Unix(1000, 0)
	pausedAgent := uuid.New()
	session := NewSession(pausedAgent, "t", "r", nil, nil, model.SessionRecovery, start)
	session.Status = model.DialecticConverged

	later := start.Add(10 * time.Hour)
	got, stuck := CheckStuck(session, DefaultStuckThreshold, later)
	assert.False(t, stuck)
	assert.Equal(t, session, got)
}
