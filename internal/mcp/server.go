package mcp

import (
	"context"
	"io"
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/kisan-mitra/internal/conversation"
	"github.com/ziadkadry99/kisan-mitra/internal/history"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Assistant answers turns and looks up stored facts.
type Assistant interface {
	HandleTurn(ctx context.Context, turn conversation.Turn, sink conversation.Sink) (string, error)
	Facts(ctx context.Context, userID string, limit int) ([]string, error)
}

// Sessions reads stored session transcripts.
type Sessions interface {
	ReadAll(ctx context.Context, sessionID string) ([]history.Message, error)
	ListSessionsForUser(ctx context.Context, userID string) ([]string, error)
}

// Server wraps an MCP server that exposes the farmer assistant as tools.
type Server struct {
	assistant Assistant
	sessions  Sessions
	mcp       *server.MCPServer
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(assistant Assistant, sessions Sessions) *Server {
	s := &Server{
		assistant: assistant,
		sessions:  sessions,
	}

	s.mcp = server.NewMCPServer(
		"kisan",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(askFarmerAssistantTool, s.handleAsk)
	s.mcp.AddTool(getSessionHistoryTool, s.handleSessionHistory)
	s.mcp.AddTool(listUserSessionsTool, s.handleListSessions)
	s.mcp.AddTool(getFarmerFactsTool, s.handleFacts)
}

// Serve runs the MCP protocol on in/out until ctx is cancelled. Stdout
// carries protocol messages, so errors are logged to errLog.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer, errLog io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(errLog, "mcp: ", log.LstdFlags))
	return stdio.Listen(ctx, in, out)
}
