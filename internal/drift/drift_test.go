package drift

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

func TestCompute_WarmupDampensDeviationsOnFirstObservation(t *testing.T) {
	baseline := NewBaseline("agent-1")

	next, vector := Compute(baseline, Inputs{
		CurrentCoherence:     0.9,
		CurrentConfidence:    0.9,
		ComplexityDivergence: 0.5,
	})

	assert.Equal(t, 0.0, vector.CalibrationDeviation, "first observation against a default baseline is fully dampened")
	assert.InDelta(t, 0.5, vector.ComplexityDivergence, 1e-9, "complexity divergence is measured directly, never dampened")
	assert.Equal(t, 0.0, vector.CoherenceDeviation)
	assert.Equal(t, 0.0, vector.StabilityDeviation)

	assert.Equal(t, 1, next.UpdateCount)
	assert.InDelta(t, 0.54, next.BaselineCoherence, 1e-9)
	assert.InDelta(t, 0.63, next.BaselineConfidence, 1e-9)
	assert.InDelta(t, 0.41, next.BaselineComplexity, 1e-9)
}

func TestCompute_NoWarmupAfterFiveUpdates(t *testing.T) {
	baseline := NewBaseline("agent-1")
	baseline.UpdateCount = warmupUpdates

	_, vector := Compute(baseline, Inputs{
		CurrentCoherence:     0.9,
		CurrentConfidence:    0.9,
		ComplexityDivergence: 0.5,
	})

	assert.InDelta(t, 0.3, vector.CalibrationDeviation, 1e-9)
	assert.InDelta(t, 0.4, vector.CoherenceDeviation, 1e-9)
	assert.InDelta(t, 0.2, vector.StabilityDeviation, 1e-9)
}

func TestCompute_CalibrationErrorOverridesConfidenceGap(t *testing.T) {
	baseline := NewBaseline("agent-1")
	baseline.UpdateCount = 10

	calErr := 0.7
	_, vector := Compute(baseline, Inputs{
		CurrentCoherence:     0.5,
		CurrentConfidence:    0.99, // would otherwise produce a tiny confidence-gap deviation
		ComplexityDivergence: 0.0,
		CalibrationError:     &calErr,
	})

	assert.InDelta(t, 0.7, vector.CalibrationDeviation, 1e-9)
}

func TestCompute_ComplexityDeviationClippedToOne(t *testing.T) {
	baseline := NewBaseline("agent-1")
	baseline.UpdateCount = 10

	_, vector := Compute(baseline, Inputs{
		CurrentCoherence:     0.5,
		CurrentConfidence:    0.6,
		ComplexityDivergence: 1.5,
	})

	assert.Equal(t, 1.0, vector.ComplexityDivergence)
}

func TestDriftVector_NormIsEuclidean(t *testing.T) {
	v := model.DriftVector{
		CalibrationDeviation: 0.3,
		ComplexityDivergence: 0.4,
		CoherenceDeviation:   0,
		StabilityDeviation:   0,
	}
	assert.InDelta(t, 0.5, v.Norm(), 1e-9) // 3-4-5 triangle
}

func TestDecisionConsistency_RepeatedDecisionIncreasesConsistency(t *testing.T) {
	baseline := NewBaseline("agent-1")
	proceed := model.DecisionProceed

	baseline, _ = Compute(baseline, Inputs{CurrentCoherence: 0.5, CurrentConfidence: 0.5, Decision: &proceed})
	require.InDelta(t, 0.8, baseline.DecisionConsistency, 1e-9, "single decision is too short a history to move consistency")

	baseline, _ = Compute(baseline, Inputs{CurrentCoherence: 0.5, CurrentConfidence: 0.5, Decision: &proceed})
	assert.InDelta(t, 0.86, baseline.DecisionConsistency, 1e-9)

	baseline, _ = Compute(baseline, Inputs{CurrentCoherence: 0.5, CurrentConfidence: 0.5, Decision: &proceed})
	assert.InDelta(t, 0.902, baseline.DecisionConsistency, 1e-9)
}

func TestDecisionConsistency_OscillatingSequenceDecreasesConsistency(t *testing.T) {
	baseline := NewBaseline("agent-1")
	proceed := model.DecisionProceed
	guide := model.DecisionGuide

	decisions := []*model.Decision{&proceed, &guide, &proceed, &guide}
	var prev float64
	for i, d := range decisions {
		baseline, _ = Compute(baseline, Inputs{CurrentCoherence: 0.5, CurrentConfidence: 0.5, Decision: d})
		if i > 0 {
			assert.Less(t, baseline.DecisionConsistency, prev, "alternating decisions should keep lowering consistency")
		}
		prev = baseline.DecisionConsistency
	}
	assert.Less(t, baseline.DecisionConsistency, 0.8)
}

func TestCompute_RecentDecisionsCappedAtTwenty(t *testing.T) {
	baseline := NewBaseline("agent-1")
	proceed := model.DecisionProceed

	for i := 0; i < 25; i++ {
		baseline, _ = Compute(baseline, Inputs{CurrentCoherence: 0.5, CurrentConfidence: 0.5, Decision: &proceed})
	}

	assert.Len(t, baseline.RecentDecisions, maxRecentDecisions)
	assert.Equal(t, 25, baseline.UpdateCount)
}
