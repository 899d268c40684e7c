// Package authz provides authorization helpers shared between every
// transport that dispatches tool calls (MCP, HTTP, in-process tests). It
// exists to keep role checks in one place without creating an import cycle
// back into internal/dispatch.
package authz

import (
	"github.com/CIRWEL/unitares-sub004/internal/auth"
	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// Tool mode values read from GOVERNANCE_TOOL_MODE (see internal/config).
const (
	ToolModeReadonly = "operator_readonly"
	ToolModeRecovery = "operator_recovery"
)

// CanAccessAgent reports whether claims may read or act on targetAgentID's
// state. Operators and readers have fleet-wide visibility for monitoring;
// an agent identity is scoped to its own record.
func CanAccessAgent(claims *auth.Claims, targetAgentID string) bool {
	if claims == nil {
		return false
	}
	switch claims.Role {
	case model.RoleOperator, model.RoleReader:
		return true
	case model.RoleAgent:
		return claims.AgentID == targetAgentID
	default:
		return false
	}
}

// CanInvokeTool reports whether claims may invoke a tool, given whether that
// tool is read-only and the server's current GOVERNANCE_TOOL_MODE. Mutating
// tools (process_agent_update, store_knowledge, dialectic submissions, ...)
// require either an agent identity acting on itself or an operator that has
// explicitly switched the deployment into recovery mode; a reader identity
// may never invoke a mutating tool, matching its monitoring-only purpose.
func CanInvokeTool(claims *auth.Claims, readOnly bool, toolMode string) bool {
	if claims == nil {
		return false
	}
	if readOnly {
		return true
	}
	switch claims.Role {
	case model.RoleAgent:
		return true
	case model.RoleOperator:
		return toolMode == ToolModeRecovery
	default:
		return false
	}
}
