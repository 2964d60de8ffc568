// Package mqtt subscribes to the fleet's vehicle location topic and feeds
// the monitor's position source.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wastehaul/dispatchd/internal/domain"
	"github.com/wastehaul/dispatchd/internal/monitor"
)

// DefaultTopic matches per-vehicle location publications.
const DefaultTopic = "/fleet/vehicle/+/location"

type positionMessage struct {
	VehicleID string  `json:"vehicle_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	SpeedKmh  float64 `json:"speed_kmh,omitempty"`
	Heading   float64 `json:"heading,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// PositionSubscriber decodes location messages and pushes them into a
// LatestSource. Malformed samples are logged and dropped; the monitor just
// keeps evaluating the previous sample.
type PositionSubscriber struct {
	client mqtt.Client
	topic  string
	source *monitor.LatestSource
}

func NewPositionSubscriber(client mqtt.Client, topic string, source *monitor.LatestSource) *PositionSubscriber {
	if topic == "" {
		topic = DefaultTopic
	}
	return &PositionSubscriber{client: client, topic: topic, source: source}
}

// Start subscribes to the topic. Broker-side denial surfaces here as an
// error, not a crash.
func (s *PositionSubscriber) Start() error {
	token := s.client.Subscribe(s.topic, 1, s.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", s.topic, err)
	}
	log.Printf("mqtt: subscribed to %s", s.topic)
	return nil
}

// Stop unsubscribes. Safe to call when not subscribed.
func (s *PositionSubscriber) Stop() {
	token := s.client.Unsubscribe(s.topic)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Printf("mqtt: unsubscribe error: %v", err)
	}
}

func (s *PositionSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw positionMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		log.Printf("mqtt: invalid position message: %v", err)
		return
	}

	pos := domain.Position{
		Coordinate:     domain.Coordinate{Lat: raw.Latitude, Lng: raw.Longitude},
		AccuracyMeters: raw.Accuracy,
		SpeedKmh:       raw.SpeedKmh,
		HeadingDeg:     raw.Heading,
		Timestamp:      time.Unix(raw.Timestamp, 0).UTC(),
	}

	if err := pos.Validate(); err != nil {
		log.Printf("mqtt: rejected position message: %v", err)
		return
	}
	if raw.Timestamp <= 0 {
		log.Printf("mqtt: rejected position message: timestamp must be positive")
		return
	}

	s.source.Update(pos)
}
