// Package channel provides the in-process fan-out bus carrying geofence
// events from the monitor to its subscribers.
package channel

import (
	"context"
	"log"
	"sync"

	"github.com/wastehaul/dispatchd/internal/domain"
)

// MetricsSink records bus metrics. Methods must be non-blocking.
type MetricsSink interface {
	EventEmitted(kind string)
	EventDropped()
	SubscriberCountUpdate(count int)
}

type Option func(*Bus)

// WithMetrics attaches a metrics sink to the bus.
func WithMetrics(sink MetricsSink) Option {
	return func(b *Bus) {
		b.metrics = sink
	}
}

// Bus broadcasts every emitted event to all subscribers. Each subscriber
// has its own bounded buffer; a full buffer drops the event for that
// subscriber only, so a slow consumer never stalls the monitor or its
// siblings.
type Bus struct {
	mu      sync.Mutex
	subs    map[int]chan domain.GeofenceEvent
	nextID  int
	buffer  int
	metrics MetricsSink
}

func NewBus(buffer int, opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[int]chan domain.GeofenceEvent),
		buffer: buffer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is one subscriber's view of the bus.
type Subscription struct {
	id  int
	ch  chan domain.GeofenceEvent
	bus *Bus
}

// Events returns the subscriber's receive channel. It is closed by Close.
func (s *Subscription) Events() <-chan domain.GeofenceEvent {
	return s.ch
}

// Close unsubscribes and closes the receive channel. Safe to call once.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

// Subscribe registers a new subscriber with the bus's buffer size.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan domain.GeofenceEvent, b.buffer)
	b.subs[id] = ch

	if b.metrics != nil {
		b.metrics.SubscriberCountUpdate(len(b.subs))
	}
	return &Subscription{id: id, ch: ch, bus: b}
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(ch)

	if b.metrics != nil {
		b.metrics.SubscriberCountUpdate(len(b.subs))
	}
}

// Emit delivers the event to every subscriber without blocking. A
// subscriber whose buffer is full loses the event.
func (b *Bus) Emit(ctx context.Context, event domain.GeofenceEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			log.Printf("bus: subscriber buffer full, dropped %s event for geofence %s", event.Kind, event.GeofenceID)
			if b.metrics != nil {
				b.metrics.EventDropped()
			}
		}
	}

	if b.metrics != nil {
		b.metrics.EventEmitted(string(event.Kind))
	}
	return nil
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
