// Package sensor aggregates orientation samples for the tilt relay.
//
// Every connection's latest gamma/beta reading is kept in one map, overwritten
// on each sample. Aggregate sums the samples and divides by the player count
// of the room being updated. In the default global scope the sum covers every
// connection on the server, not only the room's players; ScopeRoom restricts
// it to the room. Samples survive disconnects until Sweep or Forget drops them.
package sensor
