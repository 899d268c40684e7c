package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/CIRWEL/unitares-sub004/internal/apierr"
	"github.com/CIRWEL/unitares-sub004/internal/authz"
	"github.com/CIRWEL/unitares-sub004/internal/ctxutil"
	"github.com/CIRWEL/unitares-sub004/internal/identity"
	"github.com/CIRWEL/unitares-sub004/internal/ratelimit"
)

// Pipeline runs the seven-step tool-call pipeline described in §4.11 over a
// Registry: unwrap, alias-resolve, validate-and-coerce, rate-limit,
// session-pin injection, dispatch, shape. It holds no transport-specific
// state, so the same Pipeline backs the MCP frontend and any test harness.
type Pipeline struct {
	registry *Registry
	resolver *identity.Resolver
	limiter  ratelimit.Limiter
	guard    *loopGuard
	now      func() time.Time
	toolMode string
}

// Option configures a Pipeline at construction.
type Option func(*Pipeline)

// WithLoopGuard overrides the default loop-short-circuit threshold/window.
func WithLoopGuard(threshold int, window time.Duration) Option {
	return func(p *Pipeline) { p.guard = newLoopGuard(threshold, window) }
}

// WithClock overrides time.Now, for deterministic tests of the loop guard
// and rate limiter.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithToolMode sets the GOVERNANCE_TOOL_MODE value (see internal/config and
// internal/authz) that gates whether a bearer-token operator may invoke
// mutating tools.
func WithToolMode(mode string) Option {
	return func(p *Pipeline) { p.toolMode = mode }
}

// NewPipeline builds a Pipeline. limiter may be nil, in which case rate
// limiting is skipped entirely (useful for trusted internal callers); the
// loop short-circuit still applies regardless.
func NewPipeline(registry *Registry, resolver *identity.Resolver, limiter ratelimit.Limiter, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry: registry,
		resolver: resolver,
		limiter:  limiter,
		guard:    newLoopGuard(DefaultLoopThreshold, DefaultLoopWindow),
		now:      time.Now,
		toolMode: authz.ToolModeReadonly,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Invoke runs call through every pipeline step and returns the response
// envelope. It never returns a Go error itself: every failure, including
// ones that would otherwise be a Go error, is folded into Envelope.
func (p *Pipeline) Invoke(ctx context.Context, call Call) Envelope {
	args := unwrapKwargs(call.Arguments)
	if args == nil {
		args = map[string]any{}
	}

	spec, note, ok := resolveAlias(p.registry, call.ToolName, args)
	if !ok {
		return shapeError(apierr.New(apierr.CategoryValidation, apierr.CodeNotFound,
			fmt.Sprintf("unknown tool %q", call.ToolName)), nil)
	}
	var notes []string
	if note != "" {
		notes = append(notes, note)
	}

	boundArgs, coerced, err := bindAndValidate(spec, args)
	if err != nil {
		return shapeError(err, notes)
	}

	id, err := p.resolver.Resolve(ctx, identity.Request{
		SessionKey:      call.SessionKey,
		ModelType:       call.ModelType,
		ClientHint:      call.ClientHint,
		UserAgent:       call.UserAgent,
		ClientSessionID: stringArg(args, "client_session_id"),
		Persist:         true,
	})
	if err != nil {
		return shapeError(err, notes)
	}

	// A bearer-token caller (HTTP/MCP behind auth middleware) carries claims
	// on the context; an in-process or test caller with no token is trusted
	// as-is and skips the role check entirely.
	if claims := ctxutil.ClaimsFromContext(ctx); claims != nil {
		if !authz.CanInvokeTool(claims, spec.ReadOnly, p.toolMode) {
			return shapeError(apierr.New(apierr.CategoryAuth, apierr.CodePermissionDenied,
				fmt.Sprintf("role %q may not invoke %q in tool mode %q", claims.Role, spec.Name, p.toolMode)), notes)
		}
		if !authz.CanAccessAgent(claims, id.AgentID) {
			return shapeError(apierr.New(apierr.CategoryAuth, apierr.CodePermissionDenied,
				fmt.Sprintf("role %q may not act on agent %q", claims.Role, id.AgentID)), notes)
		}
	}

	if !spec.ReadOnly {
		if tripped := p.checkLoop(spec.Name, id.AgentID); tripped {
			return shapeError(apierr.New(apierr.CategorySafety, apierr.CodeRateLimited,
				fmt.Sprintf("tool %q has been called too many times in a short window; pausing to break the loop", spec.Name)).
				WithRecovery("wait before retrying, or check whether the underlying operation is actually succeeding"), notes)
		}
		if err := p.checkRate(ctx, spec.Name, id.AgentID); err != nil {
			return shapeError(err, notes)
		}
	}

	result, err := spec.Handle(ctx, id, boundArgs)
	if err != nil {
		return shapeError(err, notes)
	}
	return shapeSuccess(result, notes, coerced)
}

func (p *Pipeline) checkLoop(toolName, agentID string) bool {
	key := toolName + ":" + agentID
	tripped, _ := p.guard.record(key, p.now())
	return tripped
}

func (p *Pipeline) checkRate(ctx context.Context, toolName, agentID string) error {
	if p.limiter == nil {
		return nil
	}
	res, err := p.limiter.Allow(ctx, toolName+":"+agentID)
	if err != nil {
		return apierr.Wrap(apierr.CategorySystem, apierr.CodeOperationFailed, err)
	}
	if !res.Allowed {
		return apierr.New(apierr.CategorySystem, apierr.CodeRateLimited,
			fmt.Sprintf("rate limit exceeded for %q, resets at %s", toolName, res.ResetAt.UTC().Format(time.RFC3339)))
	}
	return nil
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
