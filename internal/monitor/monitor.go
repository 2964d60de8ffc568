// Package monitor polls a position source and evaluates it against every
// active geofence, deriving enter/exit/dwell transitions.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wastehaul/dispatchd/internal/domain"
	"github.com/wastehaul/dispatchd/internal/geo"
)

// ErrNoPosition is returned by position sources that have no sample yet.
// The monitor skips the tick and retries on the next one.
var ErrNoPosition = errors.New("no position available")

// RegionSource supplies a consistent snapshot of the active geofences per
// tick. Backed by the registry.
type RegionSource interface {
	ActiveGeofences(ctx context.Context) ([]domain.Geofence, error)
}

// PositionSource supplies the latest position sample.
type PositionSource interface {
	CurrentPosition(ctx context.Context) (domain.Position, error)
}

type EventEmitter interface {
	Emit(ctx context.Context, event domain.GeofenceEvent) error
}

// MetricsSink defines the interface for recording monitor metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	TickStarted()
	TickCompleted(duration time.Duration, regionsEvaluated int, err error)
	PositionUnavailable()
}

type Config struct {
	TickInterval time.Duration
	// DefaultDwell applies to dwell triggers with no explicit duration.
	DefaultDwell time.Duration
}

const (
	DefaultTickInterval = 5 * time.Second
	DefaultDwell        = 60 * time.Second
)

// regionState is the per-geofence containment state. Process-local and
// rebuilt from "outside" on start: containment is re-derived from live
// position, never trusted from disk.
type regionState struct {
	inside       bool
	enteredAt    time.Time
	lastPosition domain.Position
}

// Monitor is the single writer of all region states. Run must not be
// invoked concurrently with itself; Start/Stop manage one loop goroutine.
type Monitor struct {
	config  Config
	regions RegionSource
	source  PositionSource
	emitter EventEmitter
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time

	states map[uuid.UUID]*regionState

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(config Config, regions RegionSource, source PositionSource, emitter EventEmitter) *Monitor {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	if config.DefaultDwell <= 0 {
		config.DefaultDwell = DefaultDwell
	}
	return &Monitor{
		config:  config,
		regions: regions,
		source:  source,
		emitter: emitter,
		clock:   time.Now,
		states:  make(map[uuid.UUID]*regionState),
	}
}

// WithMetrics attaches a metrics sink to the monitor.
func (m *Monitor) WithMetrics(sink MetricsSink) *Monitor {
	m.metrics = sink
	return m
}

// Run executes the polling loop until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.config.TickInterval)
	defer ticker.Stop()

	log.Printf("monitor: started, tick=%s", m.config.TickInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("monitor: stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := m.processTick(ctx); err != nil {
				log.Printf("monitor: tick error: %v", err)
			}
		}
	}
}

// Start launches the polling loop in its own goroutine. Calling Start while
// already running is a no-op.
func (m *Monitor) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		m.Run(ctx)
	}()
}

// Stop cancels the polling loop and waits for it to exit. Idempotent:
// stopping a monitor that is not running is a no-op. In-flight trigger
// execution dispatched before the call may still complete downstream.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
}

// processTick evaluates one shared position sample against every active
// geofence. Positions arriving faster than the tick interval collapse to
// the latest sample; region membership, not trajectory, is what matters.
func (m *Monitor) processTick(ctx context.Context) error {
	if m.metrics != nil {
		m.metrics.TickStarted()
	}
	start := m.clock()

	pos, err := m.source.CurrentPosition(ctx)
	if err != nil {
		// Not fatal: skip this cycle and retry on the next tick.
		if m.metrics != nil {
			m.metrics.PositionUnavailable()
			m.metrics.TickCompleted(m.clock().Sub(start), 0, nil)
		}
		if !errors.Is(err, ErrNoPosition) {
			log.Printf("monitor: position unavailable: %v", err)
		}
		return nil
	}

	fences, err := m.regions.ActiveGeofences(ctx)
	if err != nil {
		if m.metrics != nil {
			m.metrics.TickCompleted(m.clock().Sub(start), 0, err)
		}
		return fmt.Errorf("active geofences: %w", err)
	}

	now := m.clock().UTC()
	seen := make(map[uuid.UUID]struct{}, len(fences))

	for _, g := range fences {
		seen[g.ID] = struct{}{}
		if err := m.evaluate(ctx, g, pos, now); err != nil {
			log.Printf("monitor: geofence %s: %v", g.ID, err)
		}
	}

	// Removed or deactivated regions reset to outside without emitting exit.
	for id := range m.states {
		if _, ok := seen[id]; !ok {
			delete(m.states, id)
		}
	}

	if m.metrics != nil {
		m.metrics.TickCompleted(m.clock().Sub(start), len(fences), nil)
	}
	return nil
}

// evaluate advances one geofence's state machine for the given sample.
// For a single geofence, enter always precedes any dwell and precedes the
// following exit; the single-threaded tick guarantees the order.
func (m *Monitor) evaluate(ctx context.Context, g domain.Geofence, pos domain.Position, now time.Time) error {
	st, ok := m.states[g.ID]
	if !ok {
		st = &regionState{}
		m.states[g.ID] = st
	}
	st.lastPosition = pos

	within := geo.IsWithin(pos.Coordinate, g.Center, g.RadiusMeters)

	switch {
	case !st.inside && within:
		st.inside = true
		st.enteredAt = now
		return m.emit(ctx, g, domain.KindEnter, pos, now)

	case st.inside && !within:
		st.inside = false
		st.enteredAt = time.Time{}
		return m.emit(ctx, g, domain.KindExit, pos, now)

	case st.inside && within:
		required := m.dwellThreshold(g)
		if now.Sub(st.enteredAt) >= required {
			// Reset to now so dwell re-fires every threshold while inside.
			st.enteredAt = now
			return m.emit(ctx, g, domain.KindDwell, pos, now)
		}
	}
	return nil
}

// dwellThreshold returns the geofence's configured dwell duration, falling
// back to the monitor default.
func (m *Monitor) dwellThreshold(g domain.Geofence) time.Duration {
	for _, t := range g.Triggers {
		if t.Event == domain.KindDwell && t.DwellDuration > 0 {
			return t.DwellDuration
		}
	}
	return m.config.DefaultDwell
}

func (m *Monitor) emit(ctx context.Context, g domain.Geofence, kind domain.EventKind, pos domain.Position, now time.Time) error {
	event := domain.GeofenceEvent{
		ID:         uuid.New(),
		GeofenceID: g.ID,
		Kind:       kind,
		Position:   pos,
		OrderID:    g.Metadata["order_id"],
		DriverID:   g.Metadata["driver_id"],
		OccurredAt: now,
	}

	if err := m.emitter.Emit(ctx, event); err != nil {
		return fmt.Errorf("emit %s: %w", kind, err)
	}

	log.Printf("monitor: %s geofence=%s (%s)", kind, g.ID, g.Name)
	return nil
}
