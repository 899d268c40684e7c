package duallog

import "math"

// ContinuityInput is what Derive needs per check-in to compute the grounded
// EISV contributions: the analyzed response, an optional self-reported
// complexity/confidence pair, activity-rate signals, and session framing.
type ContinuityInput struct {
	Features             Features
	SelfComplexity       *float64
	SelfConfidence       *float64
	PrevDerivedComplexity *float64 // used only when SelfComplexity is nil
	HasPriorObservation  bool
	LatencyMS            *int
	IsSessionContinuation bool
}

// ContinuityOutput is the grounded contribution derived from one check-in.
type ContinuityOutput struct {
	DerivedComplexity    float64
	ComplexityDivergence float64
	EInput               float64
	IInput               float64
	SInput               float64
	Overconfidence       bool
	Underconfidence      bool
}

const defaultFirstObservationDivergence = 0.2

// Derive computes the continuity metrics for one check-in: the derived
// complexity, its divergence from the agent's own report (or from the
// previous derivation, absent a report), and the grounded E/I/S inputs fed
// into the governance step.
func Derive(in ContinuityInput) ContinuityOutput {
	derived := DeriveComplexity(in.Features)

	divergence := defaultFirstObservationDivergence
	switch {
	case in.SelfComplexity != nil:
		divergence = math.Abs(derived - *in.SelfComplexity)
	case in.HasPriorObservation && in.PrevDerivedComplexity != nil:
		divergence = math.Abs(derived - *in.PrevDerivedComplexity)
	}
	divergence = clip01(divergence)

	eInput := activityRate(in.Features, in.LatencyMS)
	iInput := clip01(1 - divergence)

	sInput := 0.1 + 0.5*divergence
	if !in.IsSessionContinuation {
		sInput += 0.1
	}
	if in.SelfComplexity == nil && in.SelfConfidence == nil {
		sInput += 0.1
	}
	sInput = clip01(sInput)

	var overconfident, underconfident bool
	if in.SelfConfidence != nil {
		overconfident = *in.SelfConfidence > 0.8 && derived > 0.6
		underconfident = *in.SelfConfidence < 0.3 && derived < 0.3
	}

	return ContinuityOutput{
		DerivedComplexity:    derived,
		ComplexityDivergence: divergence,
		EInput:               eInput,
		IInput:               iInput,
		SInput:               sInput,
		Overconfidence:       overconfident,
		Underconfidence:      underconfident,
	}
}

// activityRate maps tokens/latency (when latency is available) or a plain
// token-count scale into the [0.3, 1.0] band E_input is clipped to — a
// response takes engaged effort to produce, so the floor never drops to 0.
func activityRate(f Features, latencyMS *int) float64 {
	var raw float64
	if latencyMS != nil && *latencyMS > 0 {
		raw = float64(f.Tokens) / (float64(*latencyMS) / 1000.0) / 50.0 // ~50 tok/s treated as "fully active"
	} else {
		raw = float64(f.Tokens) / 500.0
	}
	return clip(raw, 0.3, 1.0)
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
