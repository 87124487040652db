package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/rs/zerolog/log"
)

// relayServiceImpl implements the RelayService interface
type relayServiceImpl struct {
	rooms   RoomStore
	sensors SensorAggregator
	out     Broadcaster
	states  StateRecorder
	rand    func() float64
}

// Option configures the relay service
type Option func(*relayServiceImpl)

// WithRand overrides the source of map start coordinates. fn must return
// values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(s *relayServiceImpl) {
		if fn != nil {
			s.rand = fn
		}
	}
}

// WithStateRecorder reports connection state transitions to r
func WithStateRecorder(r StateRecorder) Option {
	return func(s *relayServiceImpl) {
		s.states = r
	}
}

// NewRelayService creates a new relay service instance
func NewRelayService(rooms RoomStore, sensors SensorAggregator, out Broadcaster, opts ...Option) RelayService {
	s := &relayServiceImpl{
		rooms:   rooms,
		sensors: sensors,
		out:     out,
		rand:    rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleEvent decodes the payload of msg and dispatches it
func (s *relayServiceImpl) HandleEvent(ctx context.Context, connID string, msg Inbound) error {
	switch msg.Event {
	case EventCreateRoom:
		_, err := s.CreateRoom(ctx, connID)
		return err

	case EventJoinRoom:
		var req JoinRequest
		if err := decode(msg.Data, &req); err != nil {
			return err
		}
		_, err := s.JoinRoom(ctx, connID, req)
		return err

	case EventStartGame:
		var code string
		if err := decode(msg.Data, &code); err != nil {
			return err
		}
		return s.StartGame(ctx, connID, code)

	case EventTransmitMap:
		var req MapRequest
		if err := decode(msg.Data, &req); err != nil {
			return err
		}
		return s.TransmitMap(ctx, connID, req)

	case EventGyroscopeData:
		var req GyroscopeRequest
		if err := decode(msg.Data, &req); err != nil {
			return err
		}
		return s.GyroscopeData(ctx, connID, req)

	case EventLeaveRoom:
		var code string
		if err := decode(msg.Data, &code); err != nil {
			return err
		}
		return s.LeaveRoom(ctx, connID, code)

	case EventDisconnect:
		return s.Disconnect(ctx, connID)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Event)
	}
}

// CreateRoom opens a room hosted by connID and subscribes the host to it
func (s *relayServiceImpl) CreateRoom(ctx context.Context, connID string) (string, error) {
	r := s.rooms.Create(connID)

	s.out.Subscribe(connID, r.Code)
	s.out.ToConn(connID, EventRoomCreated, r.Code)
	s.setState(connID, StateHosting)

	return r.Code, nil
}

// JoinRoom seats connID in a room. Failures are reported to the sender as an
// error event and returned.
func (s *relayServiceImpl) JoinRoom(ctx context.Context, connID string, req JoinRequest) (*JoinedRoom, error) {
	snap, _, err := s.rooms.Join(req.RoomCode, connID, req.Name)
	if err != nil {
		s.out.ToConn(connID, EventError, ClientMessage(err))
		return nil, fmt.Errorf("join room %s: %w", req.RoomCode, err)
	}

	s.out.Subscribe(connID, snap.Code)
	s.out.ToRoom(snap.Code, EventPlayerJoined, PlayerJoined{Name: req.Name, Room: snap})
	s.out.ToRoom(snap.Code, EventUpdatePlayerList, snap.Players)

	joined := &JoinedRoom{RoomCode: snap.Code, IsHost: false}
	s.out.ToConn(connID, EventJoinedRoom, joined)

	if len(snap.Players) == s.rooms.MaxPlayers() {
		s.out.ToRoom(snap.Code, EventRoomFull, nil)
	}

	s.setState(connID, StateJoined)
	return joined, nil
}

// StartGame announces the start to the room when connID is its host.
// Nothing is sent otherwise.
func (s *relayServiceImpl) StartGame(ctx context.Context, connID, roomCode string) error {
	r, err := s.rooms.Get(roomCode)
	if err != nil {
		return fmt.Errorf("start game %s: %w", roomCode, err)
	}
	if r.Host != connID {
		return fmt.Errorf("start game %s: %w", roomCode, ErrUnauthorized)
	}

	s.out.ToRoom(roomCode, EventGameStarted, GameStarted{Room: r})
	return nil
}

// TransmitMap relays a map with freshly drawn start coordinates. The
// broadcast goes out even when the room is unknown, carrying a null room.
func (s *relayServiceImpl) TransmitMap(ctx context.Context, connID string, req MapRequest) error {
	r, _ := s.rooms.Get(req.RoomCode)

	column := s.rand()
	row := s.rand()
	log.Debug().
		Str("module", "service").
		Str("room", req.RoomCode).
		Float64("column", column).
		Float64("row", row).
		Msg("relaying map")

	s.out.ToRoom(req.RoomCode, EventReceiveMap, MapBroadcast{
		Map:      req.Map,
		Room:     r,
		Column:   column,
		Row:      row,
		RoomCode: req.RoomCode,
	})
	return nil
}

// GyroscopeData records the sample of connID and, when the room exists,
// relays it together with the new aggregate
func (s *relayServiceImpl) GyroscopeData(ctx context.Context, connID string, req GyroscopeRequest) error {
	s.sensors.Record(connID, req.Data)

	r, err := s.rooms.Get(req.RoomCode)
	if err != nil {
		return nil
	}

	s.out.ToRoom(r.Code, EventGyroscopeUpdate, GyroscopeUpdate{
		PlayerID: connID,
		Data:     req.Data,
		Room:     r,
	})

	agg := s.sensors.Aggregate(r)
	if !finite(agg) {
		log.Warn().
			Str("module", "service").
			Str("room", r.Code).
			Int("players", len(r.Players)).
			Msg("aggregate is not finite, skipping ball update")
		return nil
	}

	s.out.ToRoom(r.Code, EventUpdateBall, BallUpdate{
		Data: agg,
		Host: r.Host == connID,
	})
	return nil
}

// LeaveRoom removes connID from one room without closing the connection
func (s *relayServiceImpl) LeaveRoom(ctx context.Context, connID, roomCode string) error {
	p, snap, err := s.rooms.Leave(roomCode, connID)
	if err != nil {
		return fmt.Errorf("leave room %s: %w", roomCode, err)
	}

	// A host giving up its own seat still hosts the room
	hosting := snap.Host == connID
	if !hosting {
		s.out.Unsubscribe(connID, roomCode)
	}
	s.announceDeparture(connID, snap, p)
	s.out.ToConn(connID, EventLeftRoom, roomCode)
	if hosting {
		s.setState(connID, StateHosting)
	} else {
		s.setState(connID, StateUnbound)
	}
	return nil
}

// Disconnect vacates every seat held by connID and drops its room
// subscriptions, including rooms it hosts. Its last sample is kept.
func (s *relayServiceImpl) Disconnect(ctx context.Context, connID string) error {
	for _, d := range s.rooms.RemoveConnection(connID) {
		s.out.Unsubscribe(connID, d.Room.Code)
		s.announceDeparture(connID, d.Room, d.Player)
	}
	for _, r := range s.rooms.List() {
		if r.Host == connID {
			s.out.Unsubscribe(connID, r.Code)
		}
	}
	s.setState(connID, StateDisconnected)
	return nil
}

// announceDeparture tells the room a player left. Only the host gets the
// refreshed player list.
func (s *relayServiceImpl) announceDeparture(connID string, r *Room, p Player) {
	s.out.ToRoomExcept(r.Code, connID, EventPlayerLeft, PlayerLeft{Name: p.Name})
	s.out.ToConn(r.Host, EventUpdatePlayerList, r.Players)
}

// ListRooms returns every room sorted by code
func (s *relayServiceImpl) ListRooms(ctx context.Context) ([]*RoomInfo, error) {
	rooms := s.rooms.List()
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Code < rooms[j].Code })

	result := make([]*RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		result = append(result, s.roomInfo(r))
	}
	return result, nil
}

// GetRoom returns information about a single room
func (s *relayServiceImpl) GetRoom(ctx context.Context, roomCode string) (*RoomInfo, error) {
	r, err := s.rooms.Get(roomCode)
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", roomCode, err)
	}
	return s.roomInfo(r), nil
}

// Stats summarizes rooms, seated players and stored samples
func (s *relayServiceImpl) Stats(ctx context.Context) (*Stats, error) {
	rooms := s.rooms.List()
	players := 0
	for _, r := range rooms {
		players += len(r.Players)
	}

	return &Stats{
		Rooms:             len(rooms),
		Players:           players,
		Samples:           s.sensors.Count(),
		PreviousAggregate: s.sensors.Previous(),
	}, nil
}

func (s *relayServiceImpl) roomInfo(r *Room) *RoomInfo {
	limit := s.rooms.MaxPlayers()
	return &RoomInfo{
		Code:        r.Code,
		Host:        r.Host,
		Players:     r.Players,
		PlayerCount: len(r.Players),
		MaxPlayers:  limit,
		Full:        len(r.Players) >= limit,
		CreatedAt:   r.CreatedAt,
	}
}

func (s *relayServiceImpl) setState(connID string, state ConnState) {
	if s.states != nil {
		s.states.SetState(connID, state)
	}
}

// decode unmarshals an event payload into v
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func finite(s Sample) bool {
	return !math.IsNaN(s.Gamma) && !math.IsInf(s.Gamma, 0) &&
		!math.IsNaN(s.Beta) && !math.IsInf(s.Beta, 0)
}
