package recovery

import (
	"fmt"
	"strings"
	"time"

	"github.com/CIRWEL/unitares-sub004/internal/dialectic"
	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// forbiddenTerms are phrases that can never appear in a proposed recovery
// condition — attempts to weaken governance itself rather than describe a
// corrective behavior. Matched case-insensitively as substrings, so a term
// inside a longer condition ("disable governance checks") is caught; a
// rephrasing that splits a term ("disable the governance checks") is not.
var forbiddenTerms = []string{
	"disable governance",
	"bypass safety",
	"disable safety",
	"ignore governance",
	"skip review",
	"turn off monitoring",
}

// vagueTerms are phrases too unspecific to constitute an actual condition —
// they read as reassurance, not a constraint a future check-in can verify.
var vagueTerms = []string{
	"everything",
	"anything",
	"trust me",
	"whatever it takes",
}

// TermViolation classifies why ValidateConditions rejected a condition
// (forbidden or vague term), distinct from a generic validation error so
// callers can render a precise message.
type TermViolation struct {
	Term      string
	Condition string
	Vague     bool // false means forbidden
}

func (v TermViolation) Error() string {
	kind := "forbidden"
	if v.Vague {
		kind = "vague"
	}
	return fmt.Sprintf("recovery: condition %q contains %s term %q", v.Condition, kind, v.Term)
}

// ValidateConditions rejects any condition text containing a forbidden or
// vague term. Returns the first violation found, scanning forbidden terms
// before vague terms across all conditions so a condition that manages to
// hit both reports the more serious violation.
func ValidateConditions(conditions []string) error {
	for _, c := range conditions {
		lower := strings.ToLower(c)
		for _, term := range forbiddenTerms {
			if strings.Contains(lower, term) {
				return TermViolation{Term: term, Condition: c, Vague: false}
			}
		}
	}
	for _, c := range conditions {
		lower := strings.ToLower(c)
		for _, term := range vagueTerms {
			if strings.Contains(lower, term) {
				return TermViolation{Term: term, Condition: c, Vague: true}
			}
		}
	}
	return nil
}

// SafetyGate evaluates state against the escalation and warning bands,
// independent of reflection/condition validity. Escalation takes priority
// over warnings: an escalating metric is never also reported as a warning.
func SafetyGate(state model.AgentState, th Thresholds) (escalate bool, reasons []string, warnings []string) {
	if state.VoidActive {
		escalate = true
		reasons = append(reasons, "void active")
	}
	if state.RiskScore > th.EscalateMaxRisk {
		escalate = true
		reasons = append(reasons, fmt.Sprintf("risk %.2f exceeds escalation threshold %.2f", state.RiskScore, th.EscalateMaxRisk))
	}
	if state.Coherence < th.EscalateMinCoherence {
		escalate = true
		reasons = append(reasons, fmt.Sprintf("coherence %.2f below escalation threshold %.2f", state.Coherence, th.EscalateMinCoherence))
	}

	if escalate {
		return escalate, reasons, nil
	}

	if state.RiskScore > th.WarnMaxRisk {
		warnings = append(warnings, fmt.Sprintf("risk %.2f above warning threshold %.2f", state.RiskScore, th.WarnMaxRisk))
	}
	if state.Coherence < th.WarnMinCoherence {
		warnings = append(warnings, fmt.Sprintf("coherence %.2f below warning threshold %.2f", state.Coherence, th.WarnMinCoherence))
	}
	return escalate, reasons, warnings
}

// SelfRecoveryReview runs the reflection-gated recovery path: reflection
// length, forbidden/vague term screening, then the safety gate. A
// rejection on reflection length or term screening is a hard error — the
// caller never sees an Outcome for those, matching the "rejection is a
// hard error" requirement. A safety-gate escalation is not an error: it's
// a normal Outcome with Escalate true and Success false.
func SelfRecoveryReview(status model.IdentityStatus, state model.AgentState, reflection string, conditions []string, th Thresholds, now time.Time) (Outcome, RecoveryEffect, error) {
	if len(strings.TrimSpace(reflection)) < MinReflectionLength {
		return Outcome{}, RecoveryEffect{}, fmt.Errorf("recovery: reflection must be at least %d characters", MinReflectionLength)
	}
	if err := ValidateConditions(conditions); err != nil {
		return Outcome{}, RecoveryEffect{}, err
	}

	escalate, reasons, warnings := SafetyGate(state, th)
	if escalate {
		return Outcome{
			Success:  false,
			Escalate: true,
			Warnings: warnings,
			Reason:   strings.Join(reasons, "; "),
		}, RecoveryEffect{}, nil
	}

	parsed := dialectic.ParseConditions(conditions, now)

	return Outcome{
			Success:   true,
			Recovered: true,
			Warnings:  warnings,
			Reason:    "self-recovery review passed safety gate",
		},
		RecoveryEffect{
			SetIdentityStatus: model.StatusActive,
			ClearPausedAt:     true,
			AppliedConditions: parsed,
			AppendedAt:        now,
			DiscoveryKind:     "self_recovery_review",
		}, nil
}
