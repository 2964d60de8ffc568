package domain

import (
	"time"

	"github.com/google/uuid"
)

// GeofenceEvent is emitted by the monitor when a region transition occurs.
// Events are fire-and-forget: no subscriber acknowledgement, no retention.
type GeofenceEvent struct {
	ID         uuid.UUID `json:"id"`
	GeofenceID uuid.UUID `json:"geofence_id"`

	Kind     EventKind `json:"kind"`
	Position Position  `json:"position"`

	// Correlation with external entities, copied from geofence metadata.
	OrderID  string `json:"order_id,omitempty"`
	DriverID string `json:"driver_id,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}
