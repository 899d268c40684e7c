package dialectic

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectReviewer_SkipsPausedAgentItself(t *testing.T) {
	paused := uuid.New()
	candidates := []ReviewerCandidate{{AgentUUID: paused}}
	got := SelectReviewer(paused, candidates, nil, 0, time.Unix(1000, 0))
	assert.Nil(t, got)
}

func TestSelectReviewer_SkipsCandidatesInActiveSession(t *testing.T) {
	paused := uuid.New()
	busy := uuid.New()
	free := uuid.New()
	candidates := []ReviewerCandidate{
		{AgentUUID: busy, InActiveSession: true},
		{AgentUUID: free},
	}
	got := SelectReviewer(paused, candidates, nil, 0, time.Unix(1000, 0))
	require.NotNil(t, got)
	assert.Equal(t, free, *got)
}

func TestSelectReviewer_SkipsExplicitlyExcluded(t *testing.T) {
	paused := uuid.New()
	excluded := uuid.New()
	free := uuid.New()
	candidates := []ReviewerCandidate{{AgentUUID: excluded}, {AgentUUID: free}}
	got := SelectReviewer(paused, candidates, []uuid.UUID{excluded}, 0, time.Unix(1000, 0))
	require.NotNil(t, got)
	assert.Equal(t, free, *got)
}

func TestSelectReviewer_SkipsWithinRecencyWindow(t *testing.T) {
	paused := uuid.New()
	recent := uuid.New()
	stale := uuid.New()
	now := time.Unix(10000, 0)
	recentReview := now.Add(-time.Hour)
	staleReview := now.Add(-48 * time.Hour)

	candidates := []ReviewerCandidate{
		{AgentUUID: recent, LastReviewedThis: &recentReview},
		{AgentUUID: stale, LastReviewedThis: &staleReview},
	}
	got := SelectReviewer(paused, candidates, nil, 24*time.Hour, now)
	require.NotNil(t, got)
	assert.Equal(t, stale, *got)
}

func TestSelectReviewer_NoEligibleCandidateReturnsNil(t *testing.T) {
	paused := uuid.New()
	busy := uuid.New()
	candidates := []ReviewerCandidate{{AgentUUID: busy, InActiveSession: true}}
	got := SelectReviewer(paused, candidates, nil, 0, time.Unix(1000, 0))
	assert.Nil(t, got)
}

func TestAssignReviewer_SetsFieldAndUpdatedAt(t *testing.T) {
	session := NewSession(uuid.New(), "t", "r", nil, nil, "recovery", time.Unix(1000, 0))
	reviewer := uuid.New()
	now := time.Unix(2000, 0)
	session = AssignReviewer(session, reviewer, now)
	require.NotNil(t, session.ReviewerAgentID)
	assert.Equal(t, reviewer, *session.ReviewerAgentID)
	assert.Equal(t, now, session.UpdatedAt)
}
