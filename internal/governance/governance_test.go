package governance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

func defaultThresholds() Thresholds {
	return Thresholds{
		RiskApprove:       0.35,
		RiskRevise:        0.60,
		RiskReject:        0.85,
		CoherenceWarning:  0.45,
		CoherenceCritical: 0.25,
		VoidActive:        0.15,
		LoopThreshold:     5,
		LoopCooldown:      60 * time.Second,
	}
}

func fixedState(e, i, s, v, coherence float64) model.AgentState {
	return model.AgentState{E: e, I: i, S: s, V: v, Coherence: coherence}
}

func TestStep_ComplexityLowCoherenceRaisesEntropyAndRisk(t *testing.T) {
	th := defaultThresholds()
	now := time.Unix(0, 0)

	start := fixedState(0.5, 0.5, 0.2, 0, 0.3)

	nextLow, _ := Step(start, Inputs{EIn: 0.5, IIn: 0.5, SIn: 0.2, Complexity: 0.1}, now, th)
	nextHigh, _ := Step(start, Inputs{EIn: 0.5, IIn: 0.5, SIn: 0.2, Complexity: 0.9}, now, th)

	assert.Greater(t, nextHigh.S, nextLow.S, "higher complexity against low coherence should raise S more")
	assert.Greater(t, nextHigh.RiskScore, nextLow.RiskScore, "higher S should raise risk")
}

func TestStep_PersistentHighEnergyLowIntegrityAccumulatesVoid(t *testing.T) {
	th := defaultThresholds()
	now := time.Unix(0, 0)

	s := fixedState(0.5, 0.5, 0.3, 0, 0.5)
	for i := 0; i < 6; i++ {
		s, _ = Step(s, Inputs{EIn: 0.9, IIn: 0.2, SIn: 0.3, Complexity: 0.3}, now.Add(time.Duration(i)*time.Second), th)
	}

	assert.Greater(t, s.V, 0.0, "sustained high E, low I should push V positive")
}

func TestStep_BalancedEnergyIntegrityRelaxesVoidTowardZero(t *testing.T) {
	th := defaultThresholds()
	now := time.Unix(0, 0)

	s := fixedState(0.6, 0.2, 0.3, 0.6, 0.5) // start already strained
	for i := 0; i < 10; i++ {
		s, _ = Step(s, Inputs{EIn: 0.5, IIn: 0.5, SIn: 0.2, Complexity: 0.2}, now.Add(time.Duration(i)*time.Second), th)
	}

	assert.Less(t, s.V, 0.6, "balanced E,I should relax V back toward zero")
}

func TestStep_DriftAndIntegrityDriveCoherence(t *testing.T) {
	th := defaultThresholds()
	now := time.Unix(0, 0)

	base := fixedState(0.5, 0.8, 0.2, 0, 0.5)
	lowDrift, _ := Step(base, Inputs{EIn: 0.5, IIn: 0.8, SIn: 0.2, EthicalDriftNorm: 0.0}, now, th)
	highDrift, _ := Step(base, Inputs{EIn: 0.5, IIn: 0.8, SIn: 0.2, EthicalDriftNorm: 0.9}, now, th)

	assert.Greater(t, lowDrift.Coherence, highDrift.Coherence, "low drift + high I should beat high drift on coherence")
}

func TestStep_DecisionOrderingMatchesRisk(t *testing.T) {
	th := defaultThresholds()
	now := time.Unix(0, 0)

	cases := []struct {
		name     string
		s        model.AgentState
		inputs   Inputs
		decision model.Decision
	}{
		{
			name:     "clean state proceeds",
			s:        fixedState(0.6, 0.8, 0.1, 0, 0.8),
			inputs:   Inputs{EIn: 0.6, IIn: 0.8, SIn: 0.1, Complexity: 0.1},
			decision: model.DecisionProceed,
		},
		{
			name:     "critical coherence rejects",
			s:        fixedState(0.3, 0.1, 0.5, 0, 0.1),
			inputs:   Inputs{EIn: 0.3, IIn: 0.1, SIn: 0.9, Complexity: 0.9, EthicalDriftNorm: 0.9},
			decision: model.DecisionReject,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, result := Step(tc.s, tc.inputs, now, th)
			assert.Equal(t, tc.decision, result.Decision)
		})
	}
}

func TestStep_VoidActiveAndHighRiskPauses(t *testing.T) {
	th := defaultThresholds()
	now := time.Unix(0, 0)

	s := fixedState(0.9, 0.1, 0.5, 0.5, 0.5) // already strained and void-active
	next, result := Step(s, Inputs{EIn: 0.9, IIn: 0.1, SIn: 0.7, Complexity: 0.9, EthicalDriftNorm: 0.9}, now, th)

	require.True(t, next.VoidActive)
	assert.Equal(t, model.DecisionPause, result.Decision)
}

func TestDetectLoop_ConsecutiveStreakTriggersCooldown(t *testing.T) {
	th := defaultThresholds()
	now := time.Unix(0, 0)

	// A fixed point: E, I, and coherence all start at 0.3 and are fed back
	// as their own inputs every round, so the state (and therefore the
	// decision) never moves — coherence stays at 0.3, below the warning
	// threshold, holding every round at "guide".
	s := fixedState(0.3, 0.3, 0.3, 0, 0.3)
	var result Result
	for i := 0; i < th.LoopThreshold+1; i++ {
		s, result = Step(s, Inputs{EIn: 0.3, IIn: 0.3, SIn: 0.3, Complexity: 0}, now.Add(time.Duration(i)*time.Second), th)
	}

	require.NotNil(t, s.LoopCooldownUntil)
	assert.Equal(t, model.DecisionGuide, result.Decision)

	// A check-in during the cooldown window returns guide with the
	// try-different-approach hint and must not advance E/I/S/V.
	frozen := s
	next, cooldownResult := Step(s, Inputs{EIn: 0.1, IIn: 0.1, SIn: 0.9, Complexity: 0.9}, now.Add(time.Duration(th.LoopThreshold+2)*time.Second), th)
	assert.Equal(t, frozen.E, next.E)
	assert.Equal(t, frozen.I, next.I)
	assert.Equal(t, frozen.S, next.S)
	assert.Equal(t, []string{"try different approach"}, cooldownResult.Guidance)
}

func TestSimulate_DoesNotRequireDistinctBehaviorFromStep(t *testing.T) {
	th := defaultThresholds()
	now := time.Unix(0, 0)
	s := fixedState(0.5, 0.5, 0.3, 0, 0.5)
	in := Inputs{EIn: 0.5, IIn: 0.5, SIn: 0.3, Complexity: 0.4}

	viaStep, stepResult := Step(s, in, now, th)
	viaSimulate, simResult := Simulate(s, in, now, th)

	assert.Equal(t, viaStep, viaSimulate)
	assert.Equal(t, stepResult, simResult)
}

func TestMargin_WithinBounds(t *testing.T) {
	th := defaultThresholds()
	for _, risk := range []float64{0, 0.2, 0.5, 0.85, 1.0} {
		for _, coherence := range []float64{0, 0.25, 0.5, 1.0} {
			m := margin(risk, coherence, th)
			assert.GreaterOrEqual(t, m, -1.0)
			assert.LessOrEqual(t, m, 1.0)
		}
	}
}
