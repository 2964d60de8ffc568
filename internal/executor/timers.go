package executor

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TimerRegistry holds named timers keyed by geofence id. start_timer
// triggers start them; what consumes the elapsed time (billing, dwell
// reports) is up to the caller.
type TimerRegistry struct {
	mu     sync.Mutex
	starts map[uuid.UUID]time.Time
}

func NewTimerRegistry() *TimerRegistry {
	return &TimerRegistry{starts: make(map[uuid.UUID]time.Time)}
}

// Start records the timer's start instant. Restarting an existing timer
// resets it.
func (r *TimerRegistry) Start(id uuid.UUID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts[id] = at
}

// Elapsed returns the time since the timer started, as of now.
func (r *TimerRegistry) Elapsed(id uuid.UUID, now time.Time) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start, ok := r.starts[id]
	if !ok {
		return 0, false
	}
	return now.Sub(start), true
}

// Stop removes the timer and returns whether it existed.
func (r *TimerRegistry) Stop(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.starts[id]
	delete(r.starts, id)
	return ok
}
