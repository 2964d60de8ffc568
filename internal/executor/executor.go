// Package executor consumes geofence events and performs the configured
// trigger side effects against external collaborators.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/wastehaul/dispatchd/internal/domain"
)

// GeofenceSource looks up the owning geofence for an event. Backed by the
// registry.
type GeofenceSource interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Geofence, error)
}

// StatusUpdater writes order status changes to the external order store.
type StatusUpdater interface {
	UpdateOrderStatus(ctx context.Context, orderID, newStatus string) error
}

// Notifier dispatches a message to recipients. Delivery guarantees are the
// notifier's responsibility.
type Notifier interface {
	Notify(ctx context.Context, message string, recipients []string) error
}

// PhotoRequest asks an external collector to capture proof-of-service
// photos, tagged with the geofence's location name.
type PhotoRequest struct {
	GeofenceID   uuid.UUID
	LocationName string
	OrderID      string
	Position     domain.Position
}

type PhotoRequester interface {
	RequestPhoto(ctx context.Context, req PhotoRequest) error
}

// MetricsSink defines the interface for recording executor metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	TriggerExecuted(action string, outcome string, duration time.Duration)
	EventsInFlightIncr()
	EventsInFlightDecr()
}

// DefaultDrainTimeout is the maximum time to wait for buffered events
// during shutdown.
const DefaultDrainTimeout = 30 * time.Second

type Executor struct {
	fences   GeofenceSource
	status   StatusUpdater
	notifier Notifier
	photos   PhotoRequester
	metrics  MetricsSink // optional, nil = disabled
	timers   *TimerRegistry
	clock    func() time.Time

	drainTimeout time.Duration
}

func New(fences GeofenceSource, status StatusUpdater, notifier Notifier, photos PhotoRequester) *Executor {
	return &Executor{
		fences:       fences,
		status:       status,
		notifier:     notifier,
		photos:       photos,
		timers:       NewTimerRegistry(),
		clock:        time.Now,
		drainTimeout: DefaultDrainTimeout,
	}
}

// WithMetrics attaches a metrics sink to the executor.
func (e *Executor) WithMetrics(sink MetricsSink) *Executor {
	e.metrics = sink
	return e
}

// WithDrainTimeout overrides the shutdown drain timeout.
func (e *Executor) WithDrainTimeout(d time.Duration) *Executor {
	if d > 0 {
		e.drainTimeout = d
	}
	return e
}

// Timers exposes the named timers started by start_timer triggers.
func (e *Executor) Timers() *TimerRegistry {
	return e.timers
}

// Run processes events from the subscription channel until the context is
// cancelled, then drains remaining buffered events with a timeout. Running
// on its own goroutine keeps slow side effects from stalling the monitor's
// next tick.
func (e *Executor) Run(ctx context.Context, events <-chan domain.GeofenceEvent) {
	for {
		select {
		case <-ctx.Done():
			e.drain(events)
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := e.Execute(ctx, event); err != nil {
				log.Printf("executor: error: %v", err)
			}
		}
	}
}

// drain processes remaining buffered events after the shutdown signal.
// Uses a background context since the main context is already cancelled.
func (e *Executor) drain(events <-chan domain.GeofenceEvent) {
	drainCtx, cancel := context.WithTimeout(context.Background(), e.drainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			if count > 0 {
				log.Printf("executor: drain timeout, processed %d events", count)
			}
			return
		case event, ok := <-events:
			if !ok {
				log.Printf("executor: drain complete, processed %d events", count)
				return
			}
			if err := e.Execute(drainCtx, event); err != nil {
				log.Printf("executor: drain error: %v", err)
			}
			count++
		default:
			if count > 0 {
				log.Printf("executor: drain complete, processed %d events", count)
			}
			return
		}
	}
}

// Execute runs every trigger matching the event's kind. A failing trigger
// never prevents the remaining triggers from running; failures are reported
// per trigger and joined for the caller.
func (e *Executor) Execute(ctx context.Context, event domain.GeofenceEvent) error {
	if e.metrics != nil {
		e.metrics.EventsInFlightIncr()
		defer e.metrics.EventsInFlightDecr()
	}

	g, err := e.fences.Get(ctx, event.GeofenceID)
	if err != nil {
		// The region may have been removed between emission and execution
		// (e.g. order completed). Expected, not an error batch.
		log.Printf("executor: geofence %s gone, skipping %s event", event.GeofenceID, event.Kind)
		return nil
	}

	var errs []error
	for i, t := range g.Triggers {
		if t.Event != event.Kind {
			continue
		}

		start := e.clock()
		err := e.executeTrigger(ctx, g, t, event)
		duration := e.clock().Sub(start)

		outcome := "success"
		if err != nil {
			outcome = "failed"
			errs = append(errs, fmt.Errorf("trigger %d (%s): %w", i, t.Action, err))
			log.Printf("executor: geofence=%s trigger=%d action=%s failed: %v", g.ID, i, t.Action, err)
		}
		if e.metrics != nil {
			e.metrics.TriggerExecuted(string(t.Action), outcome, duration)
		}
	}

	return errors.Join(errs...)
}

func (e *Executor) executeTrigger(ctx context.Context, g domain.Geofence, t domain.Trigger, event domain.GeofenceEvent) error {
	switch t.Action {
	case domain.ActionUpdateStatus:
		orderID := event.OrderID
		if orderID == "" {
			return fmt.Errorf("update_status: geofence %s has no linked order", g.ID)
		}
		if err := e.status.UpdateOrderStatus(ctx, orderID, t.NewStatus); err != nil {
			return fmt.Errorf("update_status: %w", err)
		}
		log.Printf("executor: order=%s status=%s (geofence=%s %s)", orderID, t.NewStatus, g.ID, event.Kind)
		return nil

	case domain.ActionSendNotification:
		message := t.Message
		if message == "" {
			message = fmt.Sprintf("%s %s at %s", event.Kind, g.Name, event.OccurredAt.UTC().Format(time.RFC3339))
		}
		if err := e.notifier.Notify(ctx, message, t.Recipients); err != nil {
			return fmt.Errorf("send_notification: %w", err)
		}
		return nil

	case domain.ActionStartTimer:
		e.timers.Start(g.ID, event.OccurredAt)
		log.Printf("executor: timer started geofence=%s at=%s", g.ID, event.OccurredAt.UTC().Format(time.RFC3339))
		return nil

	case domain.ActionCapturePhoto:
		req := PhotoRequest{
			GeofenceID:   g.ID,
			LocationName: g.Name,
			OrderID:      event.OrderID,
			Position:     event.Position,
		}
		if err := e.photos.RequestPhoto(ctx, req); err != nil {
			return fmt.Errorf("capture_photo: %w", err)
		}
		return nil

	default:
		// Unreachable for registry-validated geofences.
		return fmt.Errorf("unknown action %q", t.Action)
	}
}
