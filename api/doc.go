// Package api provides HTTP handlers for the room relay.
//
// The api package implements:
//   - Read-only room and relay inspection endpoints
//   - WebSocket upgrade handling
//   - The MCP JSON-RPC endpoint
//   - Static file serving for the game client
//
// Endpoints:
//
// Rooms:
//   - GET /api/rooms - List all rooms
//   - GET /api/rooms/{code} - Get one room (404 for unknown codes)
//
// Relay:
//   - GET /api/stats - Rooms, seated players, stored samples, previous
//     aggregate and live connections
//   - GET /health - Liveness probe
//
// Transport:
//   - GET /ws - WebSocket upgrade, JSON {event, data} frames
//   - POST /mcp - MCP JSON-RPC (when configured)
//   - GET / - Static client files (when a directory is configured)
//
// Usage:
//
//	server := api.NewServer(relay, hub, api.Options{StaticDir: "./public"})
//	http.ListenAndServe(":3000", server)
//
// Error Handling:
//
// Errors are returned as JSON with an appropriate HTTP status code:
//
//	{
//	  "error": "Room not found"
//	}
//
// Every response carries CORS headers for the configured origins.
package api
