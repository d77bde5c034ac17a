// Package mcp exposes the contact-list directory as MCP tools so agent
// clients can query and rank smart lists outside the conversational flow.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"campaign-generator/backend/internal/contacts"
	"campaign-generator/backend/pkg/models"
)

type Server struct {
	mcpServer *server.MCPServer
	lists     contacts.ListProvider
	matcher   *contacts.Matcher
}

func NewServer(lists contacts.ListProvider, matcher *contacts.Matcher) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Campaign Generator",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		lists:   lists,
		matcher: matcher,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_smart_lists",
			mcp.WithDescription("List the smart contact lists available for a location"),
			mcp.WithString("location_id", mcp.Required(), mcp.Description("The location to query")),
		),
		s.handleListSmartLists,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"match_smart_lists",
			mcp.WithDescription("Rank a location's smart lists against an audience description"),
			mcp.WithString("location_id", mcp.Required(), mcp.Description("The location to query")),
			mcp.WithString("audience", mcp.Required(), mcp.Description("The target audience description")),
		),
		s.handleMatchSmartLists,
	)
}

func (s *Server) handleListSmartLists(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	locationID, ok := args["location_id"].(string)
	if !ok || locationID == "" {
		return mcp.NewToolResultError("Missing required parameter: location_id"), nil
	}

	lists, err := s.lists.SmartLists(ctx, models.Location{ID: locationID}, models.Credentials{})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list smart lists: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(lists)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleMatchSmartLists(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	locationID, ok := args["location_id"].(string)
	if !ok || locationID == "" {
		return mcp.NewToolResultError("Missing required parameter: location_id"), nil
	}

	audience, ok := args["audience"].(string)
	if !ok || audience == "" {
		return mcp.NewToolResultError("Missing required parameter: audience"), nil
	}

	lists, err := s.lists.SmartLists(ctx, models.Location{ID: locationID}, models.Credentials{})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list smart lists: %v", err)), nil
	}

	matched := s.matcher.Rank(ctx, audience, lists)

	jsonBytes, _ := json.Marshal(matched)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
