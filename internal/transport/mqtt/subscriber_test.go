package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/wastehaul/dispatchd/internal/monitor"
)

// fakeMessage implements the paho Message interface for handler tests.
type fakeMessage struct {
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return "/fleet/vehicle/TRK-1/location" }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func payloadFor(t *testing.T, msg positionMessage) []byte {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestHandleMessage_ValidSample(t *testing.T) {
	source := monitor.NewLatestSource()
	sub := NewPositionSubscriber(nil, "", source)

	now := time.Now().Unix()
	sub.handleMessage(nil, &fakeMessage{payload: payloadFor(t, positionMessage{
		VehicleID: "TRK-1",
		Latitude:  3.139,
		Longitude: 101.687,
		SpeedKmh:  42,
		Timestamp: now,
	})})

	pos, err := source.CurrentPosition(context.Background())
	if err != nil {
		t.Fatalf("CurrentPosition: %v", err)
	}
	if pos.Lat != 3.139 || pos.Lng != 101.687 || pos.SpeedKmh != 42 {
		t.Errorf("position = %+v", pos)
	}
	if pos.Timestamp.Unix() != now {
		t.Errorf("timestamp = %s", pos.Timestamp)
	}
}

func TestHandleMessage_DropsBadSamples(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
	}{
		{"not json", []byte("{broken")},
		{"lat out of range", nil},
		{"zero timestamp", nil},
	}
	cases[1].payload = payloadForRaw(t, 95, 101.687, time.Now().Unix())
	cases[2].payload = payloadForRaw(t, 3.139, 101.687, 0)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			source := monitor.NewLatestSource()
			sub := NewPositionSubscriber(nil, "", source)

			sub.handleMessage(nil, &fakeMessage{payload: tc.payload})

			if _, err := source.CurrentPosition(context.Background()); err == nil {
				t.Error("bad sample must not reach the source")
			}
		})
	}
}

func TestHandleMessage_LatestSampleWins(t *testing.T) {
	source := monitor.NewLatestSource()
	sub := NewPositionSubscriber(nil, "", source)

	now := time.Now().Unix()
	sub.handleMessage(nil, &fakeMessage{payload: payloadForRaw(t, 3.1, 101.6, now)})
	sub.handleMessage(nil, &fakeMessage{payload: payloadForRaw(t, 3.2, 101.7, now+1)})

	pos, err := source.CurrentPosition(context.Background())
	if err != nil {
		t.Fatalf("CurrentPosition: %v", err)
	}
	if pos.Lat != 3.2 {
		t.Errorf("expected latest sample, got %+v", pos)
	}
}

func TestDefaultTopicApplied(t *testing.T) {
	sub := NewPositionSubscriber(nil, "", monitor.NewLatestSource())
	if sub.topic != DefaultTopic {
		t.Errorf("topic = %q, want %q", sub.topic, DefaultTopic)
	}
}

func payloadForRaw(t *testing.T, lat, lng float64, ts int64) []byte {
	t.Helper()
	return payloadFor(t, positionMessage{VehicleID: "TRK-1", Latitude: lat, Longitude: lng, Timestamp: ts})
}
