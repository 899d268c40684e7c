package duallog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestDerive_DivergenceFromSelfReport(t *testing.T) {
	out := Derive(ContinuityInput{
		Features:              Features{},
		SelfComplexity:        floatPtr(0.3),
		IsSessionContinuation: true,
	})

	assert.InDelta(t, 0.3, out.ComplexityDivergence, 1e-9)
	assert.InDelta(t, 0.7, out.IInput, 1e-9)
	assert.InDelta(t, 0.25, out.SInput, 1e-9)
	assert.InDelta(t, 0.3, out.EInput, 1e-9) // no tokens, no latency: floors to 0.3
}

func TestDerive_NoSelfReportUsesDefaultDivergenceAndRaisesS(t *testing.T) {
	out := Derive(ContinuityInput{
		Features:              Features{},
		HasPriorObservation:   false,
		IsSessionContinuation: false,
	})

	assert.InDelta(t, defaultFirstObservationDivergence, out.ComplexityDivergence, 1e-9)
	assert.InDelta(t, 0.4, out.SInput, 1e-9) // 0.1 + 0.5*0.2 + 0.1(new session) + 0.1(no self-report)
}

func TestDerive_PriorDerivedUsedWhenNoSelfReportButHasHistory(t *testing.T) {
	out := Derive(ContinuityInput{
		Features:              Features{}, // derived complexity 0
		HasPriorObservation:   true,
		PrevDerivedComplexity: floatPtr(0.5),
		IsSessionContinuation: true,
	})

	assert.InDelta(t, 0.5, out.ComplexityDivergence, 1e-9)
}

func TestDerive_Overconfidence(t *testing.T) {
	highComplexityFeatures := Features{
		Tokens:         100000,
		HasCode:        true,
		CodeBlockCount: 10,
		ListItemCount:  20,
		ParagraphCount: 20,
		QuestionCount:  10,
		MentionedTools: []string{"a", "b", "c", "d", "e", "f", "g", "h"},
	}
	out := Derive(ContinuityInput{
		Features:              highComplexityFeatures,
		SelfConfidence:        floatPtr(0.9),
		SelfComplexity:        floatPtr(0.6275),
		IsSessionContinuation: true,
	})

	assert.True(t, out.Overconfidence)
	assert.False(t, out.Underconfidence)
}

func TestDerive_Underconfidence(t *testing.T) {
	out := Derive(ContinuityInput{
		Features:              Features{},
		SelfConfidence:        floatPtr(0.2),
		SelfComplexity:        floatPtr(0),
		IsSessionContinuation: true,
	})

	assert.True(t, out.Underconfidence)
	assert.False(t, out.Overconfidence)
}

func TestDerive_NeitherConfidenceSignalWithoutSelfConfidence(t *testing.T) {
	out := Derive(ContinuityInput{Features: Features{}, IsSessionContinuation: true})

	assert.False(t, out.Overconfidence)
	assert.False(t, out.Underconfidence)
}

func TestActivityRate_UsesLatencyWhenAvailable(t *testing.T) {
	// 500 tokens in 10s = 50 tok/s, exactly the "fully active" reference rate.
	got := activityRate(Features{Tokens: 500}, intPtr(10000))
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestActivityRate_FloorsAtPoint3(t *testing.T) {
	got := activityRate(Features{Tokens: 0}, nil)
	assert.InDelta(t, 0.3, got, 1e-9)
}

func TestActivityRate_CeilsAtOne(t *testing.T) {
	got := activityRate(Features{Tokens: 100000}, nil)
	assert.InDelta(t, 1.0, got, 1e-9)
}
