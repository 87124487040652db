// Package service provides the room relay protocol for tilt-controlled games.
//
// The service package implements:
//   - Inbound event dispatch over the {event, data} envelope
//   - Room creation, joining, leaving and disconnect cleanup
//   - Map relay with server-drawn start coordinates
//   - Orientation sample relay and ball aggregate broadcast
//   - Periodic reclamation of orphaned rooms and samples (Janitor)
//
// Core Interfaces:
//
// RelayService is the main service interface, one method per inbound event
// plus read-only inspection used by the REST and MCP surfaces.
// RoomStore holds rooms and their ordered players.
// SensorAggregator keeps the latest sample of every connection.
// Broadcaster addresses outbound events to a room, a room minus the sender,
// or a single connection.
//
// Architecture:
//
// The service sits between the WebSocket hub and the room and sensor stores.
// The hub runs every call on its single event loop, so the service itself
// holds no lock; the stores lock their own maps for concurrent readers.
//
// Usage:
//
//	store := room.NewStore()
//	sensors := sensor.NewAggregator(sensor.ScopeGlobal)
//	relay := service.NewRelayService(store, sensors, router)
//
//	code, err := relay.CreateRoom(ctx, hostConnID)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	_, err = relay.JoinRoom(ctx, playerConnID, service.JoinRequest{Name: "alice", RoomCode: code})
//
// Errors:
//
// Join failures are reported to the sender as an "error" event carrying
// "Room not found" or "Room is full", and are also returned. A startGame from
// anyone but the host sends nothing and returns ErrUnauthorized.
package service
