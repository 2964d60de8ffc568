package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wastehaul/dispatchd/internal/domain"
)

// mockMetrics counts bus metric calls.
type mockMetrics struct {
	mu          sync.Mutex
	emitted     int
	dropped     int
	subscribers int
}

func (m *mockMetrics) EventEmitted(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitted++
}

func (m *mockMetrics) EventDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
}

func (m *mockMetrics) SubscriberCountUpdate(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = count
}

func testEvent(kind domain.EventKind) domain.GeofenceEvent {
	return domain.GeofenceEvent{
		ID:         uuid.New(),
		GeofenceID: uuid.New(),
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
	}
}

func TestBus_FanOut(t *testing.T) {
	bus := NewBus(10)

	sub1 := bus.Subscribe()
	sub2 := bus.Subscribe()
	defer sub1.Close()
	defer sub2.Close()

	event := testEvent(domain.KindEnter)
	if err := bus.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	for i, sub := range []*Subscription{sub1, sub2} {
		select {
		case got := <-sub.Events():
			if got.ID != event.ID {
				t.Errorf("subscriber %d: got event %s, want %s", i, got.ID, event.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: no event received", i)
		}
	}
}

func TestBus_FullBufferDropsForThatSubscriberOnly(t *testing.T) {
	metrics := &mockMetrics{}
	bus := NewBus(1, WithMetrics(metrics))

	slow := bus.Subscribe()
	fast := bus.Subscribe()
	defer slow.Close()

	// Fill the slow subscriber's buffer, drain fast each round.
	bus.Emit(context.Background(), testEvent(domain.KindEnter))
	<-fast.Events()
	bus.Emit(context.Background(), testEvent(domain.KindDwell)) // drops for slow

	select {
	case got := <-fast.Events():
		if got.Kind != domain.KindDwell {
			t.Errorf("fast subscriber got %s, want dwell", got.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("fast subscriber should still receive events")
	}
	fast.Close()

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.dropped != 1 {
		t.Errorf("expected 1 dropped event, got %d", metrics.dropped)
	}
	if metrics.emitted != 2 {
		t.Errorf("expected 2 emitted events, got %d", metrics.emitted)
	}
}

func TestBus_CloseStopsDelivery(t *testing.T) {
	bus := NewBus(10)

	sub := bus.Subscribe()
	sub.Close()

	if count := bus.SubscriberCount(); count != 0 {
		t.Errorf("expected 0 subscribers, got %d", count)
	}

	// Channel is closed: receive returns immediately with ok=false.
	if _, ok := <-sub.Events(); ok {
		t.Error("expected closed channel after Close")
	}

	// Emitting with no subscribers is fine.
	if err := bus.Emit(context.Background(), testEvent(domain.KindExit)); err != nil {
		t.Errorf("Emit without subscribers: %v", err)
	}
}

func TestBus_EmitCancelledContext(t *testing.T) {
	bus := NewBus(10)
	sub := bus.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := bus.Emit(ctx, testEvent(domain.KindEnter)); err == nil {
		t.Error("expected error emitting on cancelled context")
	}

	select {
	case <-sub.Events():
		t.Error("no event should be delivered on cancelled context")
	default:
	}
}

func TestBus_SubscriberCountMetric(t *testing.T) {
	metrics := &mockMetrics{}
	bus := NewBus(10, WithMetrics(metrics))

	sub1 := bus.Subscribe()
	sub2 := bus.Subscribe()

	metrics.mu.Lock()
	count := metrics.subscribers
	metrics.mu.Unlock()
	if count != 2 {
		t.Errorf("expected subscriber count 2, got %d", count)
	}

	sub1.Close()
	sub2.Close()

	metrics.mu.Lock()
	count = metrics.subscribers
	metrics.mu.Unlock()
	if count != 0 {
		t.Errorf("expected subscriber count 0, got %d", count)
	}
}
