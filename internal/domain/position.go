package domain

import (
	"fmt"
	"math"
	"time"
)

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that the coordinate is a real point on the globe.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return fmt.Errorf("coordinate: lat/lng must not be NaN")
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("coordinate: lat %g out of range [-90, 90]", c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("coordinate: lng %g out of range [-180, 180]", c.Lng)
	}
	return nil
}

// Position is a single sample from a position source.
type Position struct {
	Coordinate
	AccuracyMeters float64   `json:"accuracy_meters,omitempty"`
	SpeedKmh       float64   `json:"speed_kmh,omitempty"`
	HeadingDeg     float64   `json:"heading_deg,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
