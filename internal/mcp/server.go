package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered. History
// tools are only registered when ds is non-nil, live session tools only when
// sessions is non-nil.
func New(ds DataSource, sessions SessionLister, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("repcoach", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("repcoach exercise coaching server. Query completed curl and squat sets and see who is training right now."),
	)

	h := &handlers{ds: ds, sessions: sessions, log: log}
	if tools := h.tools(); len(tools) > 0 {
		s.AddTools(tools...)
	}
	if res := h.resources(); len(res) > 0 {
		s.AddResources(res...)
	}
	return s
}

func (h *handlers) tools() []server.ServerTool {
	var tools []server.ServerTool
	if h.sessions != nil {
		tools = append(tools, server.ServerTool{Tool: toolListActiveSessions, Handler: h.listActiveSessions})
	}
	if h.ds != nil {
		tools = append(tools,
			server.ServerTool{Tool: toolGetExerciseSets, Handler: h.getExerciseSets},
			server.ServerTool{Tool: toolGetSetSummary, Handler: h.getSetSummary},
		)
	}
	return tools
}

func (h *handlers) resources() []server.ServerResource {
	if h.sessions == nil {
		return nil
	}
	return []server.ServerResource{
		{Resource: resActiveSessions, Handler: h.activeSessions},
	}
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds       DataSource
	sessions SessionLister
	log      *slog.Logger
}

// --- Resource definitions ---

var resActiveSessions = mcp.NewResource(
	"repcoach://active_sessions",
	"Active Sessions",
	mcp.WithResourceDescription("Connected clients with their current mode, phase and rep count"),
	mcp.WithMIMEType("application/json"),
)
