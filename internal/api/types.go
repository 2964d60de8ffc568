package api

import "time"

type CoordinateBody struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type TriggerBody struct {
	Event  string `json:"event"`
	Action string `json:"action"`

	NewStatus    string   `json:"new_status,omitempty"`
	Message      string   `json:"message,omitempty"`
	DwellSeconds int      `json:"dwell_seconds,omitempty"` // dwell triggers only
	Recipients   []string `json:"recipients,omitempty"`
}

type CreateGeofenceRequest struct {
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Center       CoordinateBody `json:"center"`
	RadiusMeters float64        `json:"radius_meters"`
	Active       *bool          `json:"active,omitempty"` // default true
	Triggers     []TriggerBody  `json:"triggers,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateCustomerGeofenceRequest provisions the standard arrival/completion
// region around a customer site for one order.
type CreateCustomerGeofenceRequest struct {
	OrderID    string         `json:"order_id"`
	CustomerID string         `json:"customer_id"`
	Label      string         `json:"label"`
	Center     CoordinateBody `json:"center"`
}

type GeofenceResponse struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Center       CoordinateBody `json:"center"`
	RadiusMeters float64        `json:"radius_meters"`
	Active       bool           `json:"active"`
	Triggers     []TriggerBody  `json:"triggers,omitempty"`

	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
}

type ListGeofencesResponse struct {
	Geofences []GeofenceResponse `json:"geofences"`
}

type OrderBody struct {
	ID                string         `json:"id"`
	CustomerID        string         `json:"customer_id,omitempty"`
	Pickup            CoordinateBody `json:"pickup"`
	Delivery          CoordinateBody `json:"delivery"`
	Priority          string         `json:"priority"`
	EstimatedWeightKg float64        `json:"estimated_weight_kg,omitempty"`
	ScheduledAt       string         `json:"scheduled_at,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

type DriverBody struct {
	ID                string         `json:"id"`
	Name              string         `json:"name,omitempty"`
	Location          CoordinateBody `json:"location"`
	Status            string         `json:"status"`
	VehicleCapacityKg float64        `json:"vehicle_capacity_kg"`
	CurrentLoadKg     float64        `json:"current_load_kg,omitempty"`
	Capabilities      []string       `json:"capabilities,omitempty"`
}

type AssignmentRequest struct {
	Order   OrderBody    `json:"order"`
	Drivers []DriverBody `json:"drivers"`
}

type AssignmentResponse struct {
	OrderID                  string  `json:"order_id"`
	DriverID                 string  `json:"driver_id"`
	EstimatedDurationSeconds int     `json:"estimated_duration_seconds"`
	RouteDistanceMeters      float64 `json:"route_distance_meters"`
	Confidence               float64 `json:"confidence"`
}

type SequenceRequest struct {
	Start  CoordinateBody `json:"start"`
	Orders []OrderBody    `json:"orders"`
}

type SequenceResponse struct {
	Orders []OrderBody `json:"orders"`
}

type PositionRequest struct {
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	AccuracyMeters float64 `json:"accuracy_meters,omitempty"`
	SpeedKmh       float64 `json:"speed_kmh,omitempty"`
	HeadingDeg     float64 `json:"heading_deg,omitempty"`
	Timestamp      string  `json:"timestamp,omitempty"` // RFC3339, defaults to now
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
