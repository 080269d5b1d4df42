package mcp

import "github.com/mark3labs/mcp-go/mcp"

// askFarmerAssistantTool defines the ask_farmer_assistant MCP tool.
var askFarmerAssistantTool = mcp.NewTool("ask_farmer_assistant",
	mcp.WithDescription("Ask the farmer assistant a question within a session. The exchange is saved to the session history and may teach the assistant a new fact about the farmer."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("Farmer identifier"),
	),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session identifier, conventionally {user_id}_{suffix}"),
	),
	mcp.WithString("message",
		mcp.Required(),
		mcp.Description("The farmer's message"),
	),
)

// getSessionHistoryTool defines the get_session_history MCP tool.
var getSessionHistoryTool = mcp.NewTool("get_session_history",
	mcp.WithDescription("Get every message of a session in order."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session identifier"),
	),
)

// listUserSessionsTool defines the list_user_sessions MCP tool.
var listUserSessionsTool = mcp.NewTool("list_user_sessions",
	mcp.WithDescription("List the sessions of a farmer, oldest first."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("Farmer identifier"),
	),
)

// getFarmerFactsTool defines the get_farmer_facts MCP tool.
var getFarmerFactsTool = mcp.NewTool("get_farmer_facts",
	mcp.WithDescription("Get the long-term facts remembered about a farmer, most relevant first."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("Farmer identifier"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of facts to return (default 8)"),
	),
)
