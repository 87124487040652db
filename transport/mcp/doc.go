// Package mcp provides a Model Context Protocol view of the room relay.
//
// The mcp package implements:
//   - An MCP server whose tools proxy the read-only REST API
//   - An http.Handler for the /mcp JSON-RPC endpoint
//
// MCP Tools:
//   - list_rooms: List open rooms with seats and hosts
//   - get_room: Get one room by code
//   - relay_stats: Relay counters and the last sensor aggregate
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: mount the Client itself on POST /mcp
//
// The tools never mutate rooms. Game traffic stays on the WebSocket.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:3000")
//	apiServer := api.NewServer(relay, hub, api.Options{MCP: client})
package mcp
