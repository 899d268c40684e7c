package dispatch

import (
	"context"
	"time"

	"github.com/CIRWEL/unitares-sub004/internal/apierr"
	"github.com/CIRWEL/unitares-sub004/internal/governance"
	"github.com/CIRWEL/unitares-sub004/internal/identity"
	"github.com/CIRWEL/unitares-sub004/internal/model"
	"github.com/CIRWEL/unitares-sub004/internal/recovery"
	"github.com/CIRWEL/unitares-sub004/internal/service/checkin"
)

// defaultGovernanceThresholds mirrors the values the governance package's
// own tests exercise; a real deployment wires these from config instead.
func defaultGovernanceThresholds() governance.Thresholds {
	return governance.Thresholds{
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

// SimulateUpdateArgs is the schema for the simulate_update tool: a dry run
// through the EISV dynamics with no persistence.
type SimulateUpdateArgs struct {
	EIn        float64 `json:"e_in"`
	IIn        float64 `json:"i_in"`
	SIn        float64 `json:"s_in"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Complexity float64 `json:"complexity" validate:"gte=0,lte=1"`
}

// SimulateUpdateTool registers simulate_update against governance.Simulate:
// a pure dry run that never touches storage.
func SimulateUpdateTool() ToolSpec {
	return ToolSpec{
		Name:        "simulate_update",
		Description: "Dry-run the EISV dynamics for a hypothetical input without touching stored agent state. Use it to preview what a decision would be before committing to process_agent_update.",
		ReadOnly:    true,
		NewArgs:  func() any { return &SimulateUpdateArgs{} },
		Handle: func(_ context.Context, id identity.Result, args any) (any, error) {
			a := args.(*SimulateUpdateArgs)
			prior := model.AgentState{AgentUUID: id.AgentUUID, Coherence: 1, HealthStatus: model.HealthHealthy}
			next, result := governance.Simulate(prior, governance.Inputs{
				EIn:        a.EIn,
				IIn:        a.IIn,
				SIn:        a.SIn,
				Confidence: a.Confidence,
				Complexity: a.Complexity,
			}, time.Now().UTC(), defaultGovernanceThresholds())
			return map[string]any{
				"decision":  result.Decision,
				"guidance":  result.Guidance,
				"margin":    result.Margin,
				"coherence": next.Coherence,
				"risk":      next.RiskScore,
				"regime":    next.Regime,
			}, nil
		},
	}
}

// QuickResumeArgs is the schema for the quick_resume tool.
type QuickResumeArgs struct {
	Status     string  `json:"status" validate:"required"`
	Coherence  float64 `json:"coherence" validate:"gte=0,lte=1"`
	RiskScore  float64 `json:"risk_score" validate:"gte=0,lte=1"`
	VoidActive bool    `json:"void_active"`
}

// QuickResumeTool registers quick_resume against recovery.QuickResume,
// the single-agent fast path that never requires a dialectic session.
func QuickResumeTool() ToolSpec {
	return ToolSpec{
		Name:        "quick_resume",
		Description: "Resume a paused agent along the fast path, skipping a full dialectic review when the agent's current state is safe enough to do so.",
		NewArgs: func() any { return &QuickResumeArgs{} },
		Handle: func(_ context.Context, id identity.Result, args any) (any, error) {
			a := args.(*QuickResumeArgs)
			status := model.IdentityStatus(a.Status)
			state := model.AgentState{
				AgentUUID:  id.AgentUUID,
				Coherence:  a.Coherence,
				RiskScore:  a.RiskScore,
				VoidActive: a.VoidActive,
			}
			outcome, effect := recovery.QuickResume(status, state, recovery.DefaultThresholds(), time.Now().UTC())
			if !outcome.Success {
				return nil, apierr.New(apierr.CategoryState, apierr.CodeNotSafeForQuickResume, outcome.Reason).
					WithRecovery("request a dialectic review or a self-recovery review instead",
						"request_dialectic_review", "self_recovery_review")
			}
			return map[string]any{
				"recovered":   outcome.Recovered,
				"new_status":  effect.SetIdentityStatus,
				"appended_at": effect.AppendedAt,
			}, nil
		},
	}
}

// HealthCheckArgs is the schema for the health_check tool — no arguments
// beyond the envelope, but still goes through the same pipeline.
type HealthCheckArgs struct{}

// HealthCheckTool registers health_check, a trivial read-only tool used in
// tests to exercise the no-op path through validate/coerce.
func HealthCheckTool() ToolSpec {
	return ToolSpec{
		Name:        "health_check",
		Description: "Report whether the governance service is reachable and responding.",
		ReadOnly:    true,
		Aliases:     []string{"ping"},
		NewArgs:  func() any { return &HealthCheckArgs{} },
		Handle: func(_ context.Context, _ identity.Result, _ any) (any, error) {
			return map[string]any{"status": "ok"}, nil
		},
	}
}

// ProcessAgentUpdateArgs is the schema for the process_agent_update tool:
// the primary check-in, run once per agent turn.
type ProcessAgentUpdateArgs struct {
	ResponseText          string   `json:"response_text"`
	Complexity            *float64 `json:"complexity,omitempty" validate:"omitempty,gte=0,lte=1"`
	Confidence            *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	TaskType              string   `json:"task_type,omitempty"`
	LatencyMS             *int     `json:"latency_ms,omitempty"`
	IsSessionContinuation bool     `json:"is_session_continuation"`
}

// ProcessAgentUpdateTool registers process_agent_update against a
// checkin.Service: identity resolution and RBAC already happened in the
// pipeline by the time Handle runs, so this only wires the tool's argument
// shape to the service's Input/Result shape.
func ProcessAgentUpdateTool(svc *checkin.Service) ToolSpec {
	return ToolSpec{
		Name:        "process_agent_update",
		Description: "Report on the work just done this turn (response text, self-assessed complexity/confidence, task type). Runs the primary check-in: derives grounded inputs from the response, steps the EISV dynamics, and returns a decision plus guidance. Call this once per agent turn.",
		NewArgs: func() any { return &ProcessAgentUpdateArgs{} },
		Handle: func(ctx context.Context, id identity.Result, args any) (any, error) {
			a := args.(*ProcessAgentUpdateArgs)
			result, err := svc.Process(ctx, id, checkin.Input{
				ResponseText:          a.ResponseText,
				Complexity:            a.Complexity,
				Confidence:            a.Confidence,
				TaskType:              a.TaskType,
				LatencyMS:             a.LatencyMS,
				IsSessionContinuation: a.IsSessionContinuation,
			})
			if err != nil {
				return nil, apierr.Wrap(apierr.CategorySystem, apierr.CodeOperationFailed, err)
			}
			return map[string]any{
				"metrics":  result.Metrics,
				"decision": result.Decision,
				"margin":   result.Margin,
				"health":   result.Health,
				"guidance": result.Guidance,
				"eisv_labels": result.EISVLabels,
				"needs_restoration":    result.NeedsRestoration,
				"restoration_cooldown_seconds": result.RestorationCooldown.Seconds(),
			}, nil
		},
	}
}
