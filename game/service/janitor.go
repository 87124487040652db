package service

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultSweepInterval is how often the janitor reclaims orphaned state
const DefaultSweepInterval = 5 * time.Minute

// Janitor periodically deletes empty rooms whose host is gone and samples of
// connections that no longer exist
type Janitor struct {
	rooms    RoomStore
	sensors  SensorAggregator
	alive    func(connID string) bool
	schedule func(func())
	interval time.Duration
	clock    clockwork.Clock
}

// JanitorOption configures a Janitor
type JanitorOption func(*Janitor)

// WithClock replaces the real clock, for tests
func WithClock(c clockwork.Clock) JanitorOption {
	return func(j *Janitor) {
		j.clock = c
	}
}

// WithScheduler runs each sweep through schedule instead of on the janitor's
// goroutine. The hub passes its Submit so sweeps share the event loop.
func WithScheduler(schedule func(func())) JanitorOption {
	return func(j *Janitor) {
		if schedule != nil {
			j.schedule = schedule
		}
	}
}

// NewJanitor creates a janitor. A non-positive interval disables it.
func NewJanitor(rooms RoomStore, sensors SensorAggregator, alive func(connID string) bool, interval time.Duration, opts ...JanitorOption) *Janitor {
	j := &Janitor{
		rooms:    rooms,
		sensors:  sensors,
		alive:    alive,
		schedule: func(fn func()) { fn() },
		interval: interval,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run sweeps on every tick until ctx is done
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		log.Info().Str("module", "janitor").Msg("sweeping disabled")
		return
	}

	ticker := j.clock.NewTicker(j.interval)
	defer ticker.Stop()

	log.Info().Str("module", "janitor").Dur("interval", j.interval).Msg("janitor started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			j.schedule(func() { j.Sweep() })
		}
	}
}

// Sweep runs one reclamation pass and reports what it removed
func (j *Janitor) Sweep() (rooms, samples int) {
	rooms = j.rooms.Sweep(j.alive)
	samples = j.sensors.Sweep(j.alive)

	if rooms > 0 || samples > 0 {
		log.Info().
			Str("module", "janitor").
			Int("rooms", rooms).
			Int("samples", samples).
			Msg("swept orphaned state")
	}
	return rooms, samples
}
