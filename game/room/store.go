package room

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wricardo/tiltroom/game/service"
)

// DefaultMaxPlayers is the seat limit of a room
const DefaultMaxPlayers = 4

// Store errors are the service sentinels so callers can match either name
var (
	ErrRoomNotFound = service.ErrRoomNotFound
	ErrRoomFull     = service.ErrRoomFull
	ErrNotInRoom    = service.ErrNotInRoom
)

// Store holds every active room keyed by code
type Store struct {
	rooms      map[string]*service.Room
	maxPlayers int
	generate   CodeGenerator
	now        func() time.Time
	mu         sync.RWMutex
}

// Option configures a Store
type Option func(*Store)

// WithMaxPlayers overrides the seat limit
func WithMaxPlayers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxPlayers = n
		}
	}
}

// WithCodeGenerator overrides room code generation
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(s *Store) {
		if gen != nil {
			s.generate = gen
		}
	}
}

// NewStore creates an empty room store
func NewStore(opts ...Option) *Store {
	s := &Store{
		rooms:      make(map[string]*service.Room),
		maxPlayers: DefaultMaxPlayers,
		generate:   GenerateCode,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxPlayers returns the seat limit
func (s *Store) MaxPlayers() int {
	return s.maxPlayers
}

// Create inserts a new room hosted by host and returns a snapshot.
// Codes are not checked against existing rooms; a collision replaces the
// older room.
func (s *Store) Create(host string) *service.Room {
	code := s.generate()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[code]; exists {
		log.Warn().Str("module", "room").Str("code", code).Msg("room code collision, replacing room")
	}

	r := &service.Room{
		Code:      code,
		Host:      host,
		Players:   []service.Player{},
		CreatedAt: s.now(),
	}
	s.rooms[code] = r

	log.Info().Str("module", "room").Str("code", code).Str("host", host).Msg("room created")
	return r.Clone()
}

// Join appends a player to the room. A full or unknown room is left untouched.
func (s *Store) Join(code, connID, name string) (*service.Room, service.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rooms[code]
	if !exists {
		return nil, service.Player{}, ErrRoomNotFound
	}
	if len(r.Players) >= s.maxPlayers {
		return nil, service.Player{}, ErrRoomFull
	}

	p := service.Player{
		ConnectionID: connID,
		Name:         name,
		Seat:         len(r.Players),
	}
	r.Players = append(r.Players, p)

	log.Info().
		Str("module", "room").
		Str("code", code).
		Str("conn_id", connID).
		Int("seat", p.Seat).
		Int("players", len(r.Players)).
		Msg("player joined")

	return r.Clone(), p, nil
}

// Get returns a snapshot of a room
func (s *Store) Get(code string) (*service.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.rooms[code]
	if !exists {
		return nil, ErrRoomNotFound
	}
	return r.Clone(), nil
}

// Leave removes connID's player from a single room
func (s *Store) Leave(code, connID string) (service.Player, *service.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rooms[code]
	if !exists {
		return service.Player{}, nil, ErrRoomNotFound
	}
	p, ok := removePlayer(r, connID)
	if !ok {
		return service.Player{}, nil, ErrNotInRoom
	}

	log.Info().Str("module", "room").Str("code", code).Str("conn_id", connID).Msg("player left")
	return p, r.Clone(), nil
}

// RemoveConnection removes connID from every room whose player list holds it.
// Remaining players keep their order and the seat numbers they were given.
func (s *Store) RemoveConnection(connID string) []service.Departure {
	s.mu.Lock()
	defer s.mu.Unlock()

	var departures []service.Departure
	for code, r := range s.rooms {
		p, ok := removePlayer(r, connID)
		if !ok {
			continue
		}
		departures = append(departures, service.Departure{Room: r.Clone(), Player: p})
		log.Info().Str("module", "room").Str("code", code).Str("conn_id", connID).Msg("player removed on disconnect")
	}
	return departures
}

// List returns snapshots of all rooms
func (s *Store) List() []*service.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*service.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		result = append(result, r.Clone())
	}
	return result
}

// Count returns the number of rooms
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Sweep deletes rooms that have no players and whose host is gone
func (s *Store) Sweep(alive func(connID string) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for code, r := range s.rooms {
		if len(r.Players) == 0 && !alive(r.Host) {
			delete(s.rooms, code)
			removed++
		}
	}
	return removed
}

// removePlayer deletes the first player held by connID, preserving order
func removePlayer(r *service.Room, connID string) (service.Player, bool) {
	for i, p := range r.Players {
		if p.ConnectionID == connID {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			return p, true
		}
	}
	return service.Player{}, false
}
