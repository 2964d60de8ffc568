// Package rabbitmq republishes geofence events to a fanout exchange so
// external consumers (dashboards, audit sinks) can follow the stream.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/wastehaul/dispatchd/internal/domain"
)

const (
	exchangeName = "fleet.events"
	queueName    = "geofence_events"
)

type EventPublisher struct {
	ch *amqp.Channel
}

func NewEventPublisher(conn *amqp.Connection) (*EventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(queueName, "", exchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &EventPublisher{ch: ch}, nil
}

type eventMessage struct {
	ID         string  `json:"id"`
	GeofenceID string  `json:"geofence_id"`
	Kind       string  `json:"kind"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	OrderID    string  `json:"order_id,omitempty"`
	DriverID   string  `json:"driver_id,omitempty"`
	OccurredAt int64   `json:"occurred_at"`
}

func (p *EventPublisher) Publish(ctx context.Context, event domain.GeofenceEvent) error {
	msg := eventMessage{
		ID:         event.ID.String(),
		GeofenceID: event.GeofenceID.String(),
		Kind:       string(event.Kind),
		Latitude:   event.Position.Lat,
		Longitude:  event.Position.Lng,
		OrderID:    event.OrderID,
		DriverID:   event.DriverID,
		OccurredAt: event.OccurredAt.Unix(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return p.ch.PublishWithContext(ctx, exchangeName, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Run forwards events from a bus subscription until the channel closes or
// the context is cancelled. Publish failures are logged and skipped; the
// stream is fire-and-forget.
func (p *EventPublisher) Run(ctx context.Context, events <-chan domain.GeofenceEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := p.Publish(ctx, event); err != nil {
				log.Printf("rabbitmq: publish error: %v", err)
			}
		}
	}
}
