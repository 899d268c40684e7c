package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/CIRWEL/unitares-sub004/internal/dispatch"
)

// genericArgsSchema accepts whatever shape a tool expects; dispatch.Pipeline
// already runs the real per-tool validation (bindAndValidate against each
// ToolSpec.NewArgs struct) once the call reaches it, so the MCP-facing
// schema only needs to admit a JSON object rather than duplicate every
// tool's field list here.
const genericArgsSchema = `{"type":"object","description":"Tool-specific arguments; see the tool description for the expected fields."}`

// registerTools exposes every spec currently held by registry as an MCP
// tool, routed through a single generic handler rather than one handler
// per tool name.
func (s *Server) registerTools(registry *dispatch.Registry) {
	for _, spec := range registry.Specs() {
		description := spec.Description
		if description == "" {
			description = "Invoke the " + spec.Name + " governance tool."
		}
		tool := mcplib.NewToolWithRawSchema(spec.Name, description, json.RawMessage(genericArgsSchema))
		s.mcpServer.AddTool(tool, s.handlerFor(spec.Name))
	}
}

// handlerFor builds the MCP tool handler for toolName: translate the MCP
// call into a dispatch.Call, run it through the pipeline, translate the
// resulting envelope back into a CallToolResult.
func (s *Server) handlerFor(toolName string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		call := dispatch.Call{
			ToolName:   toolName,
			Arguments:  request.GetArguments(),
			SessionKey: sessionKey(ctx),
		}
		if session := mcpserver.ClientSessionFromContext(ctx); session != nil {
			if info, ok := session.(mcpserver.SessionWithClientInfo); ok {
				ci := info.GetClientInfo()
				call.UserAgent = ci.Name
				call.ClientHint = ci.Version
			}
		}

		envelope := s.pipeline.Invoke(ctx, call)
		payload, err := json.Marshal(envelope)
		if err != nil {
			return errorResult("failed to encode " + toolName + " response"), nil
		}
		return &mcplib.CallToolResult{
			Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: string(payload)}},
			IsError: !envelope.Success,
		}, nil
	}
}

// sessionKey derives a stable per-connection identity fingerprint from the
// MCP client session so repeated check-ins from the same agent process
// resolve to the same identity instead of minting a new one per call.
func sessionKey(ctx context.Context) string {
	if session := mcpserver.ClientSessionFromContext(ctx); session != nil {
		return session.SessionID()
	}
	return ""
}
