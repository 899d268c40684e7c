// Package dispatch implements the transport-agnostic tool-call pipeline:
// unwrap, alias-resolve, validate-and-coerce, rate-limit, session-pin
// injection, dispatch, and response shaping. Nothing in this package knows
// whether the caller arrived over MCP, HTTP, or an in-process test.
package dispatch

import (
	"context"

	"github.com/CIRWEL/unitares-sub004/internal/identity"
)

// Call is the transport-agnostic input to a tool invocation.
type Call struct {
	ToolName   string
	Arguments  map[string]any
	SessionKey string
	UserAgent  string
	ClientHint string
	ModelType  string
}

// Handler executes a tool's business logic once its arguments have been
// validated and coerced and the caller's identity has been resolved. args is
// the pointer returned by the matching ToolSpec.NewArgs, now populated.
type Handler func(ctx context.Context, id identity.Result, args any) (any, error)

// ToolSpec registers one tool with the Registry.
type ToolSpec struct {
	// Name is the current, canonical tool name.
	Name string
	// Description is a short human-readable summary, surfaced to transports
	// (e.g. MCP tool listings) that want one; purely documentary.
	Description string
	// ReadOnly tools skip the rate limiter and loop short-circuit.
	ReadOnly bool
	// Aliases are legacy names that resolve to this tool, each producing a
	// migration note in the response so callers can see they were redirected.
	Aliases []string
	// DefaultAction, when non-empty, is injected into arguments["action"]
	// for unified tools that dispatch on an action argument the legacy
	// caller may not have supplied.
	DefaultAction string
	// NewArgs returns a fresh pointer to the tool's argument struct, tagged
	// with `json` and `validate` struct tags. May be nil for tools that take
	// no arguments.
	NewArgs func() any
	// Handle runs the tool.
	Handle Handler
}
