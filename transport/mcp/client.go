package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/tiltroom/game/service"
)

// Server identity reported to MCP clients
const (
	ServerName    = "Tiltroom Relay"
	ServerVersion = "1.0.0"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Tiltroom Relay - MCP Interface

Read-only view of a multiplayer tilt-maze relay. A host screen creates a room
with a 4-character code, up to four phones join it and stream gyroscope
samples, and the relay forwards an averaged tilt to the host.

AVAILABLE TOOLS:
- list_rooms: List every open room with its host and seated players
- get_room: Show one room by code (seats, capacity, creation time)
- relay_stats: Rooms, seated players, stored sensor samples, last aggregate and live connections

Room codes are case sensitive.`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List all open rooms",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListRooms)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_room",
		Description: "Get details of a specific room",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_code": map[string]interface{}{
					"type":        "string",
					"description": "4-character room code",
				},
			},
			Required: []string{"room_code"},
		},
	}, c.handleGetRoom)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "relay_stats",
		Description: "Get relay-wide counters and the last sensor aggregate",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleStats)
}

// GetMCPServer returns the underlying MCP server
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// ServeHTTP answers one JSON-RPC message per POST
func (c *Client) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	response := c.mcpServer.HandleMessage(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	responseData, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Write(responseData)
}

// apiCall makes an HTTP call to the REST API
func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// Tool handlers

func (c *Client) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var resp struct {
		Count int                 `json:"count"`
		Rooms []*service.RoomInfo `json:"rooms"`
	}
	if err := c.apiCall(ctx, "GET", "/api/rooms", nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(resp.Rooms) == 0 {
		return mcp.NewToolResultText("No open rooms"), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Open rooms: %d\n", resp.Count))
	for _, r := range resp.Rooms {
		result.WriteString("\n")
		result.WriteString(formatRoomInfo(r))
	}
	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleGetRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	code, _ := args["room_code"].(string)
	if code == "" {
		return mcp.NewToolResultError("room_code is required"), nil
	}

	var info service.RoomInfo
	if err := c.apiCall(ctx, "GET", "/api/rooms/"+url.PathEscape(code), nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRoomInfo(&info)), nil
}

func (c *Client) handleStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats struct {
		service.Stats
		Connections int `json:"connections"`
	}
	if err := c.apiCall(ctx, "GET", "/api/stats", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Rooms: %d | Players: %d | Connections: %d\nSamples stored: %d\nLast aggregate: gamma=%.2f beta=%.2f",
		stats.Rooms, stats.Players, stats.Connections, stats.Samples,
		stats.PreviousAggregate.Gamma, stats.PreviousAggregate.Beta)
	return mcp.NewToolResultText(result), nil
}

// Formatting helpers

func formatRoomInfo(info *service.RoomInfo) string {
	var result strings.Builder

	status := "open"
	if info.Full {
		status = "full"
	}
	result.WriteString(fmt.Sprintf("Room %s (%s) | Players: %d/%d | Host: %s\n",
		info.Code, status, info.PlayerCount, info.MaxPlayers, info.Host))
	if !info.CreatedAt.IsZero() {
		result.WriteString(fmt.Sprintf("Created: %s\n", info.CreatedAt.Format("2006-01-02 15:04:05")))
	}
	for _, p := range info.Players {
		result.WriteString(fmt.Sprintf("  seat %d: %s (%s)\n", p.Seat, p.Name, p.ConnectionID))
	}
	return result.String()
}
