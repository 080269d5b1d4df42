package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/kisan-mitra/internal/conversation"
)

// handleAsk runs one non-streaming conversation turn.
func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var turn conversation.Turn
	var err error
	if turn.UserID, err = request.RequireString("user_id"); err != nil {
		return mcp.NewToolResultError("missing required parameter: user_id"), nil
	}
	if turn.SessionID, err = request.RequireString("session_id"); err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	if turn.Input, err = request.RequireString("message"); err != nil {
		return mcp.NewToolResultError("missing required parameter: message"), nil
	}

	reply, err := s.assistant.HandleTurn(ctx, turn, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("turn failed: %v", err)), nil
	}
	return mcp.NewToolResultText(reply), nil
}

// handleSessionHistory returns a session transcript as role-prefixed lines.
func (s *Server) handleSessionHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	msgs, err := s.sessions.ReadAll(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading history failed: %v", err)), nil
	}
	if len(msgs) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Session %q has no messages.", sessionID)), nil
	}

	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// handleListSessions returns a farmer's session ids, one per line.
func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user_id"), nil
	}

	ids, err := s.sessions.ListSessionsForUser(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing sessions failed: %v", err)), nil
	}
	if len(ids) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No sessions found for %q.", userID)), nil
	}
	return mcp.NewToolResultText(strings.Join(ids, "\n")), nil
}

// handleFacts returns the stored facts for a farmer as a bullet list.
func (s *Server) handleFacts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user_id"), nil
	}

	facts, err := s.assistant.Facts(ctx, userID, request.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading facts failed: %v", err)), nil
	}
	if len(facts) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No facts saved for %q yet.", userID)), nil
	}

	var b strings.Builder
	for _, f := range facts {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteByte('\n')
	}
	return mcp.NewToolResultText(b.String()), nil
}
