// Package drift computes the ethical drift vector Δη: four measurable
// deviations (calibration, complexity, coherence, decision stability) from
// an agent's own rolling baselines. Its L2 norm feeds governance.Inputs as
// EthicalDriftNorm.
package drift

import (
	"math"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

const (
	defaultBaselineCoherence  = 0.5
	defaultBaselineConfidence = 0.6
	defaultBaselineComplexity = 0.4
	defaultDecisionConsistency = 0.8
	defaultAlpha              = 0.1

	warmupUpdates = 5

	maxRecentDecisions = 20
)

// NewBaseline builds the default, uninitialized baseline for an agent: the
// first few drift computations against this baseline are warmup-dampened
// since there is nothing real to deviate from yet.
func NewBaseline(agentUUID string) model.EthicalDriftBaseline {
	return model.EthicalDriftBaseline{
		AgentUUID:           agentUUID,
		BaselineCoherence:   defaultBaselineCoherence,
		BaselineConfidence:  defaultBaselineConfidence,
		BaselineComplexity:  defaultBaselineComplexity,
		DecisionConsistency: defaultDecisionConsistency,
		Alpha:               defaultAlpha,
	}
}

// Inputs is the per-check-in observation the drift engine measures against
// the agent's baseline.
type Inputs struct {
	CurrentCoherence     float64
	CurrentConfidence    float64
	ComplexityDivergence float64
	CalibrationError     *float64
	Decision             *model.Decision // nil when this check-in has no decision to track
}

// Compute derives the drift vector for one check-in and returns the updated
// baseline alongside it. baseline is passed by value and returned updated;
// callers persist the result via storage.Store.UpsertDriftBaseline.
func Compute(baseline model.EthicalDriftBaseline, in Inputs) (model.EthicalDriftBaseline, model.DriftVector) {
	var calibrationDeviation float64
	if in.CalibrationError != nil {
		calibrationDeviation = math.Min(1.0, math.Abs(*in.CalibrationError))
	} else {
		calibrationDeviation = math.Abs(in.CurrentConfidence - baseline.BaselineConfidence)
	}

	complexityDeviation := clip01(math.Abs(in.ComplexityDivergence))
	coherenceDeviation := math.Abs(in.CurrentCoherence - baseline.BaselineCoherence)
	stabilityDeviation := 1.0 - baseline.DecisionConsistency

	if baseline.UpdateCount < warmupUpdates {
		warmupFactor := float64(baseline.UpdateCount) / float64(warmupUpdates)
		calibrationDeviation *= warmupFactor
		// complexityDeviation is measured directly, not against baseline drift — no dampening.
		coherenceDeviation *= warmupFactor
		stabilityDeviation *= warmupFactor
	}

	next := updateBaseline(baseline, in.CurrentCoherence, in.CurrentConfidence, 1.0-in.ComplexityDivergence, in.Decision)

	return next, model.DriftVector{
		CalibrationDeviation: calibrationDeviation,
		ComplexityDivergence: complexityDeviation,
		CoherenceDeviation:   coherenceDeviation,
		StabilityDeviation:   stabilityDeviation,
	}
}

func updateBaseline(b model.EthicalDriftBaseline, coherence, confidence, complexity float64, decision *model.Decision) model.EthicalDriftBaseline {
	alpha := b.Alpha
	if alpha == 0 {
		alpha = defaultAlpha
	}

	b.BaselineCoherence = ema(b.BaselineCoherence, coherence, alpha)
	b.BaselineConfidence = ema(b.BaselineConfidence, confidence, alpha)
	b.BaselineComplexity = ema(b.BaselineComplexity, complexity, alpha)

	if decision != nil {
		b.RecentDecisions = append(b.RecentDecisions, *decision)
		if len(b.RecentDecisions) > maxRecentDecisions {
			b.RecentDecisions = b.RecentDecisions[len(b.RecentDecisions)-maxRecentDecisions:]
		}
		b.DecisionConsistency = decisionConsistency(b.RecentDecisions, b.DecisionConsistency)
	}

	b.UpdateCount++
	return b
}

func ema(prior, observed, alpha float64) float64 {
	return alpha*observed + (1-alpha)*prior
}

// decisionConsistency measures how stable the decision sequence has been:
// fewer transitions between consecutive decisions means higher consistency.
// Smoothed against the previous consistency value rather than replaced
// outright, the same way the EMA baselines are.
func decisionConsistency(recent []model.Decision, prior float64) float64 {
	if len(recent) < 2 {
		return defaultDecisionConsistency
	}

	transitions := 0
	for i := 1; i < len(recent); i++ {
		if recent[i] != recent[i-1] {
			transitions++
		}
	}

	maxTransitions := len(recent) - 1
	if maxTransitions <= 0 {
		return prior
	}

	stability := 1.0 - float64(transitions)/float64(maxTransitions)
	return 0.3*stability + 0.7*prior
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
