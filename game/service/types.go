package service

import (
	"encoding/json"
	"time"
)

// Inbound event names
const (
	EventCreateRoom    = "createRoom"
	EventJoinRoom      = "joinRoom"
	EventStartGame     = "startGame"
	EventTransmitMap   = "transmitMap"
	EventGyroscopeData = "gyroscopeData"
	EventLeaveRoom     = "leaveRoom"
	EventDisconnect    = "disconnect"
)

// Outbound event names. EventReceiveMap keeps the spelling deployed clients
// listen for.
const (
	EventRoomCreated      = "roomCreated"
	EventJoinedRoom       = "joinedRoom"
	EventError            = "error"
	EventPlayerJoined     = "playerJoined"
	EventUpdatePlayerList = "updatePlayerList"
	EventRoomFull         = "roomFull"
	EventGameStarted      = "gameStarted"
	EventReceiveMap       = "receieveMap"
	EventGyroscopeUpdate  = "gyroscopeUpdate"
	EventUpdateBall       = "updateBall"
	EventPlayerLeft       = "playerLeft"
	EventLeftRoom         = "leftRoom"
)

// JoinRequest is the joinRoom payload
type JoinRequest struct {
	Name     string `json:"name"`
	RoomCode string `json:"roomCode"`
}

// JoinedRoom is sent to a connection after a successful join
type JoinedRoom struct {
	RoomCode string `json:"roomCode"`
	IsHost   bool   `json:"isHost"`
}

// PlayerJoined announces a new player to the room
type PlayerJoined struct {
	Name string `json:"name"`
	Room *Room  `json:"room"`
}

// PlayerLeft announces a departed player by display name only
type PlayerLeft struct {
	Name string `json:"name"`
}

// GameStarted carries the full room state at start
type GameStarted struct {
	Room *Room `json:"room"`
}

// MapRequest is the transmitMap payload. Map is relayed verbatim.
type MapRequest struct {
	Map      json.RawMessage `json:"map"`
	RoomCode string          `json:"roomCode"`
}

// MapBroadcast is the relayed map with server-drawn start coordinates
type MapBroadcast struct {
	Map      json.RawMessage `json:"map"`
	Room     *Room           `json:"room"`
	Column   float64         `json:"column"`
	Row      float64         `json:"row"`
	RoomCode string          `json:"roomCode"`
}

// GyroscopeRequest is the gyroscopeData payload
type GyroscopeRequest struct {
	RoomCode string `json:"roomCode"`
	Data     Sample `json:"data"`
}

// GyroscopeUpdate relays one player's raw sample
type GyroscopeUpdate struct {
	PlayerID string `json:"playerId"`
	Data     Sample `json:"data"`
	Room     *Room  `json:"room"`
}

// BallUpdate carries the aggregate that drives the shared ball
type BallUpdate struct {
	Data Sample `json:"data"`
	Host bool   `json:"host"`
}

// RoomInfo provides information about a room for inspection surfaces
type RoomInfo struct {
	Code        string    `json:"code"`
	Host        string    `json:"host"`
	Players     []Player  `json:"players"`
	PlayerCount int       `json:"player_count"`
	MaxPlayers  int       `json:"max_players"`
	Full        bool      `json:"full"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stats summarizes relay state
type Stats struct {
	Rooms             int    `json:"rooms"`
	Players           int    `json:"players"`
	Samples           int    `json:"samples"`
	PreviousAggregate Sample `json:"previous_aggregate"`
}
