package service

import "errors"

// Errors returned by relay operations
var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room is full")
	ErrNotInRoom      = errors.New("player not in room")
	ErrUnauthorized   = errors.New("only the host can start the game")
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid payload")
)

// ClientMessage returns the text carried by an error event for err.
// Clients match on these strings, so their casing is fixed.
func ClientMessage(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, ErrRoomFull):
		return "Room is full"
	default:
		return err.Error()
	}
}
