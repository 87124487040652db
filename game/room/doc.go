// Package room provides the room store for the tilt relay.
//
// The room package implements:
//   - Room creation with short human-typeable codes
//   - Capacity-limited joins with join-order seat assignment
//   - Player removal on leave and on disconnect
//   - Snapshot reads for broadcasts and inspection
//   - Sweeping of empty rooms whose host has gone
//
// Room Codes:
//
// Codes are 4 uppercase base-36 characters drawn from crypto/rand. Creation
// does not check for collisions; with 36^4 possible codes the chance is
// accepted as low, and a colliding code replaces the older room.
//
// Seats:
//
// A player's seat is the number of players already in the room when it
// joined. Seats are never renumbered, so after a departure the remaining
// seats may have gaps.
//
// Usage:
//
//	store := room.NewStore(room.WithMaxPlayers(4))
//
//	r := store.Create(hostConnID)
//	r, player, err := store.Join(r.Code, connID, "alice")
//	if errors.Is(err, room.ErrRoomFull) {
//		// reject
//	}
//
//	departures := store.RemoveConnection(connID)
//
// Concurrency:
//
// Store is safe for concurrent use. Every method returns copies, so callers
// never observe a room while it is being mutated.
package room
