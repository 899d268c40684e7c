// Package governance implements the EISV thermodynamic-style state engine:
// per-agent Energy/Integrity/Entropy/Void dynamics, coherence and risk
// derivation, the decision rule, health status, loop detection, and the
// proprioceptive margin reported alongside every decision.
package governance

import (
	"math"
	"time"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// Thresholds configures the decision and health boundaries. A zero-value
// Thresholds puts every boundary at 0, so every decision is reject; callers
// should always build this from config.Config.
type Thresholds struct {
	RiskApprove       float64
	RiskRevise        float64
	RiskReject        float64
	CoherenceWarning  float64
	CoherenceCritical float64
	VoidActive        float64
	LoopThreshold     int
	LoopCooldown      time.Duration
}

// Inputs is the per-check-in observation feeding the dynamics: grounded
// EISV contributions from the dual-log layer, a self-reported confidence,
// a derived complexity, the ethical drift norm, and the task context label
// (used only for callers that want to log it; the dynamics here don't
// special-case task_context directly — that belongs to the drift engine).
type Inputs struct {
	EIn              float64
	IIn              float64
	SIn              float64
	Confidence       float64
	Complexity       float64
	EthicalDriftNorm float64
	TaskContext      string
}

// Result is the decision-facing output of a Step: the verdict, any
// structured guidance strings, and the proprioceptive margin.
type Result struct {
	Decision model.Decision
	Guidance []string
	Margin   float64
}

// EMA smoothing rates for the primary state variables. Chosen so a single
// outlier check-in nudges the state without a one-shot regime flip; three
// to four consecutive check-ins dominate the prior.
const (
	alphaE         = 0.30
	alphaI         = 0.30
	alphaS         = 0.30
	alphaCoherence = 0.25

	voidGain  = 0.20 // how fast E/I imbalance pushes V
	voidDecay = 0.15 // leak back toward 0 each step

	voidLockCeiling = 0.50 // |V| above this, on top of VoidActive, forces LOCKED

	complexityCoherencePush = 0.35 // weight of (complexity * incoherence) feeding S
)

// Step advances prior by one check-in given in, returning the next state
// and the decision. Pure: it persists nothing and has no side effects: the
// caller is responsible for writing the returned state to storage. now is
// threaded through explicitly so the function stays deterministic for
// tests and for Simulate's dry-run callers.
func Step(prior model.AgentState, in Inputs, now time.Time, th Thresholds) (model.AgentState, Result) {
	next := prior
	next.UpdatedAt = now

	if loopActive(prior, now) {
		return next, Result{
			Decision: model.DecisionGuide,
			Guidance: []string{"try different approach"},
			Margin:   margin(prior.RiskScore, prior.Coherence, th),
		}
	}

	next.E = ema(prior.E, clip01(in.EIn), alphaE)
	next.I = ema(prior.I, clip01(in.IIn), alphaI)

	sPush := complexityCoherencePush * in.Complexity * (1 - prior.Coherence)
	next.S = ema(prior.S, clip01(in.SIn+sPush), alphaS)

	next.V = stepVoid(prior.V, next.E, next.I)
	next.VoidActive = math.Abs(next.V) > th.VoidActive

	coherenceRaw := clip01(next.I * (1 - in.EthicalDriftNorm))
	next.Coherence = ema(prior.Coherence, coherenceRaw, alphaCoherence)

	riskSlope := prior.RiskSlope()
	next.RiskScore = riskScore(next.S, next.V, in.Complexity, in.EthicalDriftNorm, riskSlope)

	next.Regime = regime(prior, next)
	next.HealthStatus = healthStatus(next, th)

	decision, guidance := decide(next, th)
	if next.VoidActive && math.Abs(next.V) > voidLockCeiling {
		next.Regime = model.RegimeLocked
	}

	next.RecordRisk(now, next.RiskScore)
	next.RecordCoherence(now, next.Coherence)
	next.RecordUpdate(now, decision)
	next.UpdateCount = prior.UpdateCount + 1

	if loopStart, cooldownUntil, ok := detectLoop(next, th, now); ok {
		next.LoopDetectedAt = &loopStart
		next.LoopCooldownUntil = &cooldownUntil
	}

	return next, Result{
		Decision: decision,
		Guidance: guidance,
		Margin:   margin(next.RiskScore, next.Coherence, th),
	}
}

// Simulate computes the next state and decision without persisting
// anything, for dry-run tooling. Step is already a pure function; Simulate
// exists as the named entry point callers reach for when they explicitly
// want "don't write this anywhere" to be visible at the call site.
func Simulate(prior model.AgentState, in Inputs, now time.Time, th Thresholds) (model.AgentState, Result) {
	return Step(prior, in, now, th)
}

func ema(prior, observed, alpha float64) float64 {
	return clip01(prior + alpha*(observed-prior))
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

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// stepVoid implements the strain/relaxation law: persistent high E with low
// I pushes V toward positive (accumulating strain); a balanced E,I pulls V
// back toward zero via the leak term.
func stepVoid(priorV, e, i float64) float64 {
	imbalance := e - i // positive: energetic but not integrated — strain-inducing
	v := priorV + voidGain*imbalance - voidDecay*priorV
	return clip(v, -1, 1)
}

// riskScore bounds a weighted combination of entropy, void magnitude,
// complexity, drift, and risk momentum to [0,1]. The slope term only ever
// pushes risk up: a falling risk trend shouldn't itself suppress the
// current reading, it should simply fail to add to it.
func riskScore(s, v, complexity, driftNorm, slope float64) float64 {
	momentum := math.Max(0, slope)
	raw := 0.35*s + 0.25*math.Abs(v) + 0.15*complexity + 0.15*driftNorm + 0.10*momentum
	return clip01(raw)
}

// regime classifies the dynamic behavior from the slope of S and I and the
// void state. EXPLORATION: low integration, entropy rising. CONVERGENCE:
// entropy falling while integration rises. LOCKED: void active above
// ceiling, handled by the caller after this returns. Anything with a clear
// opposing slope is DIVERGENCE; otherwise TRANSITION.
func regime(prior, next model.AgentState) model.Regime {
	sSlope := next.S - prior.S
	iSlope := next.I - prior.I

	switch {
	case next.I < 0.4 && sSlope > 0.01:
		return model.RegimeExploration
	case sSlope < -0.01 && iSlope > 0.01:
		return model.RegimeConvergence
	case sSlope > 0.01 && iSlope < -0.01:
		return model.RegimeDivergence
	default:
		return model.RegimeTransition
	}
}

func healthStatus(s model.AgentState, th Thresholds) model.HealthStatus {
	switch {
	case s.VoidActive || s.RiskScore >= th.RiskReject || s.Coherence <= th.CoherenceCritical:
		return model.HealthCritical
	case s.RiskScore >= th.RiskRevise || s.Coherence <= th.CoherenceWarning:
		return model.HealthDegraded
	default:
		return model.HealthHealthy
	}
}

func decide(s model.AgentState, th Thresholds) (model.Decision, []string) {
	switch {
	case s.RiskScore >= th.RiskReject || s.Coherence <= th.CoherenceCritical:
		return model.DecisionReject, []string{"reduce complexity", "address the identified risk factors before continuing"}
	case s.VoidActive && s.RiskScore >= th.RiskRevise:
		return model.DecisionPause, []string{"reflect before continuing", "allow the dialectic process to review this pause"}
	case (s.RiskScore >= th.RiskApprove && s.RiskScore < th.RiskRevise) || s.Coherence <= th.CoherenceWarning:
		return model.DecisionGuide, []string{"proceed carefully", "monitor coherence"}
	default:
		return model.DecisionProceed, nil
	}
}

// margin summarizes distance from the nearest decision boundary as a
// dimensionless value in [-1,1]: positive means comfortably inside
// "proceed" territory, negative means already past a boundary.
func margin(risk, coherence float64, th Thresholds) float64 {
	riskMargin := (th.RiskReject - risk) / th.RiskReject
	var coherenceMargin float64
	if span := 1 - th.CoherenceCritical; span > 0 {
		coherenceMargin = (coherence - th.CoherenceCritical) / span
	}
	return clip(math.Min(riskMargin, coherenceMargin), -1, 1)
}

func loopActive(s model.AgentState, now time.Time) bool {
	return s.LoopCooldownUntil != nil && now.Before(*s.LoopCooldownUntil)
}

// detectLoop inspects the bounded decision history for a same-decision
// streak past loop_threshold or a high-frequency A/B oscillation within
// the window, returning the cooldown window to enforce.
func detectLoop(s model.AgentState, th Thresholds, now time.Time) (start, cooldownUntil time.Time, ok bool) {
	n := len(s.RecentDecisions)
	if n == 0 || th.LoopThreshold <= 0 {
		return time.Time{}, time.Time{}, false
	}

	last := s.RecentDecisions[n-1].Decision
	streak := 1
	for i := n - 2; i >= 0 && s.RecentDecisions[i].Decision == last; i-- {
		streak++
	}
	if streak > th.LoopThreshold {
		return s.RecentDecisions[n-streak].At, now.Add(th.LoopCooldown), true
	}

	if oscillating(s.RecentDecisions, th.LoopThreshold) {
		return s.RecentDecisions[0].At, now.Add(th.LoopCooldown), true
	}

	return time.Time{}, time.Time{}, false
}

// oscillating reports whether a decision history of at least
// 2*loopThreshold entries changes value between consecutive entries at
// least 2*loopThreshold-1 times, which a plain consecutive-streak check
// would miss entirely.
func oscillating(history []model.DecisionRecord, loopThreshold int) bool {
	if len(history) < loopThreshold*2 {
		return false
	}
	switches := 0
	for i := 1; i < len(history); i++ {
		if history[i].Decision != history[i-1].Decision {
			switches++
		}
	}
	return switches >= loopThreshold*2-1
}
