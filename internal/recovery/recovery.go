// Package recovery implements the single-agent alternative to the
// dialectic protocol: quick resume for agents whose metrics never left a
// safe band, and a reflection-gated self-recovery review for agents that
// need to account for why they paused. Every function is pure, in the
// same style governance.Step and dialectic use: given prior state and an
// explicit input, return the outcome; the caller persists any resulting
// identity/state change.
package recovery

import (
	"time"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// Thresholds configures the safety bands both recovery tiers check
// against. A zero-value Thresholds puts every band at 0, so any positive
// risk blocks quick resume and escalates a review; callers should always
// build this from config.Config rather than the zero value.
type Thresholds struct {
	QuickResumeMinCoherence float64
	QuickResumeMaxRisk      float64

	EscalateMaxRisk      float64
	EscalateMinCoherence float64

	WarnMaxRisk      float64
	WarnMinCoherence float64
}

// MinReflectionLength is the minimum character length required of a
// self-recovery review's reflection text.
const MinReflectionLength = 20

// DefaultThresholds returns the recovery safety bands: quick resume
// requires coherence >= 0.60 and risk <= 0.40; self-recovery review
// escalates above risk 0.70 or below coherence 0.30, with a softer warning
// band at risk 0.55/coherence 0.45 to surface concern before escalation.
func DefaultThresholds() Thresholds {
	return Thresholds{
		QuickResumeMinCoherence: 0.60,
		QuickResumeMaxRisk:      0.40,
		EscalateMaxRisk:         0.70,
		EscalateMinCoherence:    0.30,
		WarnMaxRisk:             0.55,
		WarnMinCoherence:        0.45,
	}
}

// eligibleQuickResumeStatuses are the identity statuses quick resume may be
// attempted from. Active is included because an agent that self-corrected
// before its next check-in landed may call quick_resume defensively; it's
// simply a no-op confirmation in that case.
var eligibleQuickResumeStatuses = map[model.IdentityStatus]bool{
	model.StatusPaused:       true,
	model.StatusWaitingInput: true,
	model.StatusModerate:     true,
	model.StatusActive:       true,
}

// Outcome is the shared result shape for both recovery tiers.
type Outcome struct {
	Success   bool
	Recovered bool
	Escalate  bool
	Warnings  []string
	Reason    string
}

// QuickResumeEligible reports whether state/status qualify for quick
// resume without requiring a reflection. All three metric conditions and
// the status check must hold simultaneously.
func QuickResumeEligible(status model.IdentityStatus, state model.AgentState, th Thresholds) bool {
	if !eligibleQuickResumeStatuses[status] {
		return false
	}
	if state.VoidActive {
		return false
	}
	if state.Coherence < th.QuickResumeMinCoherence {
		return false
	}
	if state.RiskScore > th.QuickResumeMaxRisk {
		return false
	}
	return true
}

// QuickResume attempts the no-reflection recovery path. On success it
// returns an Outcome with Recovered true and a RecoveryEffect the caller
// should apply; on ineligibility it returns Success false with a Reason
// and applies nothing.
func QuickResume(status model.IdentityStatus, state model.AgentState, th Thresholds, now time.Time) (Outcome, RecoveryEffect) {
	if !QuickResumeEligible(status, state, th) {
		return Outcome{
			Success: false,
			Reason:  "quick resume requires coherence, risk, and void all within the safe band",
		}, RecoveryEffect{}
	}

	return Outcome{Success: true, Recovered: true, Reason: "quick resume: metrics within safe band"},
		RecoveryEffect{
			SetIdentityStatus: model.StatusActive,
			ClearPausedAt:     true,
			AppendedAt:        now,
			DiscoveryKind:     "quick_resume",
		}
}

// RecoveryEffect describes the identity/discovery mutations a caller
// should apply after a successful recovery. Kept storage-agnostic for the
// same reason dialectic.ResolutionEffect is: this package never touches
// storage.Store or internal/identity directly.
type RecoveryEffect struct {
	SetIdentityStatus model.IdentityStatus
	ClearPausedAt     bool
	AppliedConditions []model.DialecticCondition
	AppendedAt        time.Time
	DiscoveryKind     string // "quick_resume" or "self_recovery_review"
}
