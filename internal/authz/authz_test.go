package authz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CIRWEL/unitares-sub004/internal/auth"
	"github.com/CIRWEL/unitares-sub004/internal/authz"
	"github.com/CIRWEL/unitares-sub004/internal/model"
)

func TestCanAccessAgent(t *testing.T) {
	cases := []struct {
		name   string
		claims *auth.Claims
		target string
		want   bool
	}{
		{"nil claims denied", nil, "agent-1", false},
		{"operator sees everything", &auth.Claims{AgentID: "op", Role: model.RoleOperator}, "agent-1", true},
		{"reader sees everything", &auth.Claims{AgentID: "r1", Role: model.RoleReader}, "agent-1", true},
		{"agent sees self", &auth.Claims{AgentID: "agent-1", Role: model.RoleAgent}, "agent-1", true},
		{"agent denied other", &auth.Claims{AgentID: "agent-1", Role: model.RoleAgent}, "agent-2", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, authz.CanAccessAgent(tc.claims, tc.target))
		})
	}
}

func TestCanInvokeTool(t *testing.T) {
	cases := []struct {
		name     string
		claims   *auth.Claims
		readOnly bool
		toolMode string
		want     bool
	}{
		{"nil claims denied", nil, true, authz.ToolModeReadonly, false},
		{"readonly tool always allowed", &auth.Claims{Role: model.RoleReader}, true, authz.ToolModeReadonly, true},
		{"reader blocked from mutating tool", &auth.Claims{Role: model.RoleReader}, false, authz.ToolModeRecovery, false},
		{"agent allowed mutating tool regardless of mode", &auth.Claims{Role: model.RoleAgent}, false, authz.ToolModeReadonly, true},
		{"operator blocked in readonly mode", &auth.Claims{Role: model.RoleOperator}, false, authz.ToolModeReadonly, false},
		{"operator allowed in recovery mode", &auth.Claims{Role: model.RoleOperator}, false, authz.ToolModeRecovery, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, authz.CanInvokeTool(tc.claims, tc.readOnly, tc.toolMode))
		})
	}
}
