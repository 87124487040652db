package sensor

import (
	"fmt"
	"math"
	"sync"

	"github.com/wricardo/tiltroom/game/service"
)

// Scope selects which samples feed an aggregate
type Scope string

const (
	// ScopeGlobal sums every recorded sample regardless of room membership.
	// This is the behavior deployed clients were tuned against.
	ScopeGlobal Scope = "global"

	// ScopeRoom sums only the samples of the room's players
	ScopeRoom Scope = "room"
)

// ParseScope converts a configuration string into a Scope
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeGlobal, "":
		return ScopeGlobal, nil
	case ScopeRoom:
		return ScopeRoom, nil
	default:
		return "", fmt.Errorf("unknown aggregate scope %q", s)
	}
}

// Aggregator keeps the last sample per connection and averages them
type Aggregator struct {
	samples  map[string]service.Sample
	previous service.Sample
	scope    Scope
	mu       sync.RWMutex
}

// NewAggregator creates an aggregator with the given scope
func NewAggregator(scope Scope) *Aggregator {
	if scope == "" {
		scope = ScopeGlobal
	}
	return &Aggregator{
		samples: make(map[string]service.Sample),
		scope:   scope,
	}
}

// Scope returns the configured scope
func (a *Aggregator) Scope() Scope {
	return a.scope
}

// Record overwrites the last sample of connID
func (a *Aggregator) Record(connID string, sample service.Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples[connID] = sample
}

// Aggregate sums gamma and beta over the scoped samples and divides each sum
// by the room's player count. An empty room divides by zero and yields NaN
// or an infinity; callers decide what to do with a non-finite result.
// Only finite results replace the previous aggregate.
func (a *Aggregator) Aggregate(room *service.Room) service.Sample {
	a.mu.Lock()
	defer a.mu.Unlock()

	var sum service.Sample
	switch a.scope {
	case ScopeRoom:
		for _, p := range room.Players {
			if s, ok := a.samples[p.ConnectionID]; ok {
				sum.Gamma += s.Gamma
				sum.Beta += s.Beta
			}
		}
	default:
		for _, s := range a.samples {
			sum.Gamma += s.Gamma
			sum.Beta += s.Beta
		}
	}

	n := float64(len(room.Players))
	res := service.Sample{
		Gamma: sum.Gamma / n,
		Beta:  sum.Beta / n,
	}
	if isFinite(res) {
		a.previous = res
	}
	return res
}

// Previous returns the last computed aggregate
func (a *Aggregator) Previous() service.Sample {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.previous
}

// Forget drops the sample of connID
func (a *Aggregator) Forget(connID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.samples, connID)
}

// Sweep drops samples of connections that are no longer alive
func (a *Aggregator) Sweep(alive func(connID string) bool) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for id := range a.samples {
		if !alive(id) {
			delete(a.samples, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of stored samples
func (a *Aggregator) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.samples)
}

func isFinite(s service.Sample) bool {
	return !math.IsNaN(s.Gamma) && !math.IsInf(s.Gamma, 0) &&
		!math.IsNaN(s.Beta) && !math.IsInf(s.Beta, 0)
}
