package dialectic

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

func convergedResumeSession(t *testing.T, discoveryID *uuid.UUID, dispute *model.DisputeType) model.DialecticSession {
	t.Helper()
	now := time.Unix(1000, 0)
	pausedAgent := uuid.New()
	reviewer := uuid.New()
	session := NewSession(pausedAgent, "t", "r", discoveryID, dispute, model.SessionRecovery, now)
	session, err := SubmitThesis(session, pausedAgent, "root cause text", nil, "reasoning", now)
	require.NoError(t, err)
	session = AssignReviewer(session, reviewer, now)
	session, err = SubmitAntithesis(session, reviewer, nil, nil, "reasoning", now)
	require.NoError(t, err)

	conditions := []model.DialecticCondition{{Action: "set", Target: "risk_score", Value: 0.2, Raw: "Set risk_score to 0.2"}}
	session, _, err = SubmitSynthesis(session, pausedAgent, conditions, "reasoning", trueVal(), nil, now)
	require.NoError(t, err)
	pairMsg := session.Transcript[len(session.Transcript)-1]
	session, resolution, err := SubmitSynthesis(session, reviewer, conditions, "reasoning", trueVal(), &pairMsg, now)
	require.NoError(t, err)
	require.NotNil(t, resolution)
	return session
}

func TestExecuteResolution_ResumeRequiresPausedIdentity(t *testing.T) {
	session := convergedResumeSession(t, nil, nil)
	_, err := ExecuteResolution(session, model.StatusActive, time.Unix(2000, 0))
	assert.Error(t, err)
}

func TestExecuteResolution_ResumeSetsActiveAndClearsPausedAt(t *testing.T) {
	session := convergedResumeSession(t, nil, nil)
	now := time.Unix(2000, 0)
	effect, err := ExecuteResolution(session, model.StatusPaused, now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, effect.SetIdentityStatus)
	assert.True(t, effect.ClearPausedAt)
	require.Len(t, effect.ApplyConditions, 1)
	assert.Equal(t, now, effect.ApplyConditions[0].AppliedAt)
	assert.Nil(t, effect.DiscoveryID)
}

func TestExecuteResolution_ResumeWithDisputeAnnotatesDiscoveryResolved(t *testing.T) {
	discoveryID := uuid.New()
	dispute := model.DisputeCorrection
	session := convergedResumeSession(t, &discoveryID, &dispute)
	effect, err := ExecuteResolution(session, model.StatusPaused, time.Unix(2000, 0))
	require.NoError(t, err)
	require.NotNil(t, effect.DiscoveryID)
	assert.Equal(t, discoveryID, *effect.DiscoveryID)
	assert.True(t, effect.ResolveDiscovery)
	assert.Contains(t, effect.Annotation, "root cause text")
}

func TestExecuteResolution_BlockLeavesIdentityStatusUntouched(t *testing.T) {
	now := time.Unix(1000, 0)
	pausedAgent := uuid.New()
	reviewer := uuid.New()
	discoveryID := uuid.New()
	dispute := model.DisputeDispute
	session := NewSession(pausedAgent, "t", "r", &discoveryID, &dispute, model.SessionRecovery, now)
	session, _ = SubmitThesis(session, pausedAgent, "rc", nil, "reasoning", now)
	session = AssignReviewer(session, reviewer, now)
	session, _ = SubmitAntithesis(session, reviewer, nil, nil, "reasoning", now)
	session, _, _ = SubmitSynthesis(session, pausedAgent, nil, "reasoning", trueVal(), nil, now)
	pairMsg := session.Transcript[len(session.Transcript)-1]
	session, resolution, err := SubmitSynthesis(session, reviewer, nil, "reasoning", trueVal(), &pairMsg, now)
	require.NoError(t, err)
	require.Equal(t, model.ActionBlock, resolution.Action)

	effect, err := ExecuteResolution(session, model.StatusPaused, time.Unix(2000, 0))
	require.NoError(t, err)
	assert.Empty(t, effect.SetIdentityStatus)
	assert.False(t, effect.ClearPausedAt)
	require.NotNil(t, effect.DiscoveryID)
	assert.False(t, effect.ResolveDiscovery)
}

func TestExecuteResolution_RejectsNonConvergedSession(t *testing.T) {
	now := time.Unix(1000, 0)
	session := NewSession(uuid.New(), "t", "r", nil, nil, model.SessionRecovery, now)
	_, err := ExecuteResolution(session, model.StatusPaused, now)
	assert.Error(t, err)
}

func TestCancelSession_TransitionsFromActivePhases(t *testing.T) {
	now := time.Unix(1000, 0)
	session := NewSession(uuid.New(), "t", "r", nil, nil, model.SessionRecovery, now)
	got, err := CancelSession(session, "operator aborted review", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.PhaseCanceled, got.Phase)
	assert.Equal(t, model.DialecticCanceled, got.Status)
	require.Len(t, got.Transcript, 1)
	assert.Contains(t, got.Transcript[0].Reasoning, "operator aborted review")
}

func TestCancelSession_RejectsAlreadyTerminalSession(t *testing.T) {
	now := time.Unix(1000, 0)
	session := NewSession(uuid.New(), "t", "r", nil, nil, model.SessionRecovery, now)
	session.Status = model.DialecticFailed
	_, err := CancelSession(session, "reason", now)
	assert.Error(t, err)
}

func TestHashResolution_DeterministicForSameInputs(t *testing.T) {
	sid := uuid.New()
	r := model.Resolution{Action: model.ActionResume, RootCause: "rc", Conditions: []model.DialecticCondition{{Raw: "Set risk_score to 0.2"}}}
	h1 := hashResolution(sid, r)
	h2 := hashResolution(sid, r)
	assert.Equal(t, h1, h2)

	r2 := r
	r2.RootCause = "different"
	assert.NotEqual(t, h1, hashResolution(sid, r2))
}
