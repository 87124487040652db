package service

import (
	"context"
	"encoding/json"
	"time"
)

// RelayService defines every room/session operation the transports drive
type RelayService interface {
	// Inbound protocol events
	HandleEvent(ctx context.Context, connID string, msg Inbound) error
	CreateRoom(ctx context.Context, connID string) (string, error)
	JoinRoom(ctx context.Context, connID string, req JoinRequest) (*JoinedRoom, error)
	StartGame(ctx context.Context, connID, roomCode string) error
	TransmitMap(ctx context.Context, connID string, req MapRequest) error
	GyroscopeData(ctx context.Context, connID string, req GyroscopeRequest) error
	LeaveRoom(ctx context.Context, connID, roomCode string) error
	Disconnect(ctx context.Context, connID string) error

	// Read side for the REST and MCP surfaces
	ListRooms(ctx context.Context) ([]*RoomInfo, error)
	GetRoom(ctx context.Context, roomCode string) (*RoomInfo, error)
	Stats(ctx context.Context) (*Stats, error)
}

// RoomStore defines room storage operations
type RoomStore interface {
	Create(host string) *Room
	Join(code, connID, name string) (*Room, Player, error)
	Get(code string) (*Room, error)
	Leave(code, connID string) (Player, *Room, error)
	RemoveConnection(connID string) []Departure
	List() []*Room
	Count() int
	MaxPlayers() int
	Sweep(alive func(connID string) bool) int
}

// SensorAggregator keeps the last sample of every connection
type SensorAggregator interface {
	Record(connID string, sample Sample)
	Aggregate(room *Room) Sample
	Previous() Sample
	Forget(connID string)
	Sweep(alive func(connID string) bool) int
	Count() int
}

// Broadcaster addresses outbound events to rooms and connections
type Broadcaster interface {
	ToRoom(code, event string, data any)
	ToRoomExcept(code, exceptConnID, event string, data any)
	ToConn(connID, event string, data any)
	Subscribe(connID, code string)
	Unsubscribe(connID, code string)
}

// StateRecorder receives protocol state transitions of a connection.
// It is optional; a nil recorder is ignored.
type StateRecorder interface {
	SetState(connID string, state ConnState)
}

// Room is a snapshot of an active room. Store methods hand out copies, so a
// Room value can be marshalled without holding any lock.
type Room struct {
	Code      string    `json:"code"`
	Host      string    `json:"host"`
	Players   []Player  `json:"players"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy of the room
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Players = make([]Player, len(r.Players))
	copy(c.Players, r.Players)
	return &c
}

// HasPlayer reports whether connID holds a seat in the room
func (r *Room) HasPlayer(connID string) bool {
	for _, p := range r.Players {
		if p.ConnectionID == connID {
			return true
		}
	}
	return false
}

// Player is a seat in a room. Seat is the player count at join time and is
// never recomputed when earlier players leave.
type Player struct {
	ConnectionID string `json:"id"`
	Name         string `json:"name"`
	Seat         int    `json:"pid"`
}

// Departure records a player removed from a room by a disconnect
type Departure struct {
	Room   *Room
	Player Player
}

// Sample is one orientation reading in degrees
type Sample struct {
	Gamma float64 `json:"gamma"`
	Beta  float64 `json:"beta"`
}

// Inbound is the envelope of every client frame
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is the envelope of every server frame
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ConnState is the protocol state of a connection
type ConnState string

const (
	StateUnbound      ConnState = "unbound"
	StateHosting      ConnState = "hosting"
	StateJoined       ConnState = "joined"
	StateDisconnected ConnState = "disconnected"
)
