// Package mcp exposes the governance service's tool registry over the
// Model Context Protocol, so any MCP-compatible agent harness can call
// process_agent_update, simulate_update, quick_resume, and health_check the
// same way an HTTP caller would.
//
// The bridge is generic: it does not hardcode one handler per tool. Every
// tool registered with the dispatch.Registry is exposed automatically,
// using the registry's own name/description/read-only metadata, and every
// call is routed through the same dispatch.Pipeline an HTTP frontend would
// use. Adding a tool to the registry is enough to expose it over MCP too.
package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/CIRWEL/unitares-sub004/internal/auth"
	"github.com/CIRWEL/unitares-sub004/internal/ctxutil"
	"github.com/CIRWEL/unitares-sub004/internal/dispatch"
)

// serverInstructions is sent to every MCP client during the initialize
// handshake, so an agent knows the check-in workflow without project-local
// configuration.
const serverInstructions = `You are connected to UNITARES, an ethical-alignment governance service
that tracks your operational state across a conversation.

WORKFLOW — call this once per turn, after you've drafted your response:

1. process_agent_update: report what you did this turn (response_text,
   self-assessed complexity/confidence, task_type). This is the primary
   check-in. It returns a decision (proceed/guide/pause/reject), a margin,
   your current health, and guidance when the decision isn't a clean
   proceed.

2. If the decision is anything other than proceed, follow the returned
   guidance before continuing. A "pause" decision means a human or a
   dialectic review is needed before you proceed.

OTHER TOOLS:
- simulate_update: dry-run the dynamics with hypothetical inputs, no
  persistence. Useful to sanity-check a plan before acting on it.
- quick_resume: resume after a pause without a full review, when your last
  known state was safe enough to allow it.
- health_check: liveness probe, no governance semantics.

Be honest in your self-report — process_agent_update compares what you
report against what your response text actually shows, and a mismatch
itself becomes a signal.`

// Server wraps an mcp-go server bound to a dispatch.Pipeline.
type Server struct {
	mcpServer *mcpserver.MCPServer
	pipeline  *dispatch.Pipeline
	logger    *slog.Logger
}

// New builds a Server and registers every tool currently held by registry.
// registry and pipeline must refer to the same tool set: pipeline is what
// actually executes a call, registry is only consulted here for listing
// metadata (name/description/read-only).
func New(registry *dispatch.Registry, pipeline *dispatch.Pipeline, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{pipeline: pipeline, logger: logger}

	s.mcpServer = mcpserver.NewMCPServer(
		"unitares",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)

	s.registerTools(registry)
	return s
}

// MCPServer returns the underlying mcp-go server for transport setup
// (stdio or StreamableHTTP).
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// ContextFunc validates the bearer token on an incoming StreamableHTTP
// request and attaches its claims to the context every tool call on that
// connection carries, so dispatch.Pipeline's role check sees the same
// claims an HTTP frontend's own auth middleware would have set. Wire it in
// with mcpserver.WithHTTPContextFunc. A missing or invalid token leaves the
// context unclaimed rather than rejecting the connection outright —
// dispatch.Pipeline already treats a claims-less context as an unauthenticated
// internal caller and CanInvokeTool/CanAccessAgent enforce the rest.
func ContextFunc(jwtMgr *auth.JWTManager, logger *slog.Logger) mcpserver.HTTPContextFunc {
	return func(ctx context.Context, r *http.Request) context.Context {
		token := bearerToken(r)
		if token == "" {
			return ctx
		}
		claims, err := jwtMgr.ValidateToken(token)
		if err != nil {
			logger.Warn("mcp: rejecting invalid bearer token", "error", err)
			return ctx
		}
		return ctxutil.WithClaims(ctx, claims)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}
