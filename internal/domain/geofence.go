package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type RegionType string

const (
	RegionCustomerLocation RegionType = "customer_location"
	RegionDepot            RegionType = "depot"
	RegionServiceArea      RegionType = "service_area"
	RegionRestrictedZone   RegionType = "restricted_zone"
)

func (t RegionType) Valid() bool {
	switch t {
	case RegionCustomerLocation, RegionDepot, RegionServiceArea, RegionRestrictedZone:
		return true
	default:
		return false
	}
}

// EventKind is the kind of geofence transition a trigger binds to.
type EventKind string

const (
	KindEnter EventKind = "enter"
	KindExit  EventKind = "exit"
	KindDwell EventKind = "dwell"
)

func (k EventKind) Valid() bool {
	switch k {
	case KindEnter, KindExit, KindDwell:
		return true
	default:
		return false
	}
}

type TriggerAction string

const (
	ActionUpdateStatus     TriggerAction = "update_status"
	ActionSendNotification TriggerAction = "send_notification"
	ActionStartTimer       TriggerAction = "start_timer"
	ActionCapturePhoto     TriggerAction = "capture_photo"
)

func (a TriggerAction) Valid() bool {
	switch a {
	case ActionUpdateStatus, ActionSendNotification, ActionStartTimer, ActionCapturePhoto:
		return true
	default:
		return false
	}
}

// Trigger binds one event kind to one side effect. Triggers exist only as
// part of a Geofence's configuration.
type Trigger struct {
	Event  EventKind     `json:"event"`
	Action TriggerAction `json:"action"`

	// Action parameters. Only the fields relevant to the action are set.
	NewStatus     string        `json:"new_status,omitempty"`
	Message       string        `json:"message,omitempty"`
	DwellDuration time.Duration `json:"dwell_duration,omitempty"`
	Recipients    []string      `json:"recipients,omitempty"`
}

func (t Trigger) Validate() error {
	if !t.Event.Valid() {
		return fmt.Errorf("trigger: unknown event %q", t.Event)
	}
	if !t.Action.Valid() {
		return fmt.Errorf("trigger: unknown action %q", t.Action)
	}
	if t.Event == KindDwell && t.DwellDuration < 0 {
		return fmt.Errorf("trigger: dwell duration must not be negative")
	}
	if t.Action == ActionUpdateStatus && t.NewStatus == "" {
		return fmt.Errorf("trigger: update_status requires new_status")
	}
	return nil
}

// Geofence is a named circular region with configured triggers.
type Geofence struct {
	ID   uuid.UUID  `json:"id"`
	Name string     `json:"name"`
	Type RegionType `json:"type"`

	Center       Coordinate `json:"center"`
	RadiusMeters float64    `json:"radius_meters"`

	Active   bool      `json:"active"`
	Triggers []Trigger `json:"triggers"`

	// Metadata links the region to external entities (order id, customer id).
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate enforces the registry's write-time invariants. Malformed regions
// are rejected here, never silently coerced.
func (g Geofence) Validate() error {
	if g.ID == uuid.Nil {
		return fmt.Errorf("geofence: id is required")
	}
	if g.Name == "" {
		return fmt.Errorf("geofence %s: name is required", g.ID)
	}
	if !g.Type.Valid() {
		return fmt.Errorf("geofence %s: unknown region type %q", g.ID, g.Type)
	}
	if err := g.Center.Validate(); err != nil {
		return fmt.Errorf("geofence %s: center: %w", g.ID, err)
	}
	if g.RadiusMeters <= 0 {
		return fmt.Errorf("geofence %s: radius must be positive, got %g", g.ID, g.RadiusMeters)
	}
	for i, t := range g.Triggers {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("geofence %s: trigger %d: %w", g.ID, i, err)
		}
	}
	return nil
}

// Clone returns a deep copy so registry snapshots cannot be mutated by
// readers.
func (g Geofence) Clone() Geofence {
	c := g
	if g.Triggers != nil {
		c.Triggers = make([]Trigger, len(g.Triggers))
		copy(c.Triggers, g.Triggers)
		for i, t := range g.Triggers {
			if t.Recipients != nil {
				c.Triggers[i].Recipients = append([]string(nil), t.Recipients...)
			}
		}
	}
	if g.Metadata != nil {
		c.Metadata = make(map[string]string, len(g.Metadata))
		for k, v := range g.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}
