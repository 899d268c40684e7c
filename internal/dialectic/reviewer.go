package dialectic

import (
	"time"

	"github.com/google/uuid"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// DefaultReviewRecencyWindow is how long a reviewer is excluded from
// reviewing the same paused agent again after a prior review.
const DefaultReviewRecencyWindow = 24 * time.Hour

// ReviewerCandidate is the subset of identity/history state SelectReviewer
// needs to judge eligibility, kept separate from model.Identity so this
// package doesn't need to know how "already in an active session" or
// "reviewed this agent recently" are computed by the caller.
type ReviewerCandidate struct {
	AgentUUID        uuid.UUID
	InActiveSession  bool
	LastReviewedThis *time.Time // last time this candidate reviewed the same paused agent, nil if never
}

// SelectReviewer picks the first eligible candidate: not the paused agent
// itself, not already in an active session, not excluded by id, and not
// inside the recency window for having reviewed this same paused agent
// before. Candidates are tried in the order given, so callers control tie
// -breaking (e.g. least-recently-active first) by how they order the slice.
// Returns nil when no eligible candidate exists — the session proceeds
// without a reviewer and becomes eligible for auto-resolution once stuck.
func SelectReviewer(pausedAgentID uuid.UUID, candidates []ReviewerCandidate, excluded []uuid.UUID, recencyWindow time.Duration, now time.Time) *uuid.UUID {
	if recencyWindow <= 0 {
		recencyWindow = DefaultReviewRecencyWindow
	}
	excludedSet := make(map[uuid.UUID]bool, len(excluded))
	for _, id := range excluded {
		excludedSet[id] = true
	}

	for _, c := range candidates {
		if c.AgentUUID == pausedAgentID {
			continue
		}
		if c.InActiveSession {
			continue
		}
		if excludedSet[c.AgentUUID] {
			continue
		}
		if c.LastReviewedThis != nil && now.Sub(*c.LastReviewedThis) < recencyWindow {
			continue
		}
		id := c.AgentUUID
		return &id
	}
	return nil
}

// AssignReviewer attaches reviewerID to session. Safe to call even when a
// reviewer was deferred at creation time.
func AssignReviewer(session model.DialecticSession, reviewerID uuid.UUID, now time.Time) model.DialecticSession {
	session.ReviewerAgentID = &reviewerID
	session.UpdatedAt = now
	return session
}
