// Package websocket provides the WebSocket gateway of the room relay.
//
// The websocket package implements:
//   - Connection upgrade with a uuid connection id per socket
//   - Read and write pumps with ping/pong keepalive and a read limit
//   - A connection registry with room subscriptions and protocol state
//   - A broadcast router that addresses rooms and connections over a pubsub.Bus
//
// Architecture:
//
// The Hub funnels register, unregister, decoded frames and submitted tasks
// through one Run loop, so every relay call executes on a single goroutine.
// The Router turns "to room", "to room except sender" and "to connection"
// into bus publishes on <prefix>.room.<code> and <prefix>.conn.<id>. Each
// client subscribes to its own subject on connect and to a room subject when
// it creates or joins a room.
//
// Message Protocol:
//
// Every frame in both directions is one JSON object:
//
//	{"event": "joinRoom", "data": {"name": "alice", "roomCode": "AB12"}}
//
// Frames that do not decode are logged and dropped; the connection stays up.
//
// Usage:
//
//	registry := websocket.NewRegistry()
//	router := websocket.NewRouter(pubsub.NewMemoryBus(), registry, "tiltroom")
//	relay := service.NewRelayService(store, sensors, router, service.WithStateRecorder(registry))
//	hub := websocket.NewHub(websocket.DefaultConfig(), router, relay)
//	go hub.Run(ctx)
//
//	http.HandleFunc("/ws", hub.ServeWS)
//
// Delivery:
//
// Sends never block the loop. A client whose buffer is full loses the
// message and a warning is logged; nothing is retried.
package websocket
