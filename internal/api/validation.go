package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wastehaul/dispatchd/internal/domain"
)

// toGeofence converts a create/update request into a validated domain
// geofence. The id is assigned by the caller.
func toGeofence(id uuid.UUID, req CreateGeofenceRequest, now time.Time) (domain.Geofence, error) {
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	g := domain.Geofence{
		ID:           id,
		Name:         req.Name,
		Type:         domain.RegionType(req.Type),
		Center:       domain.Coordinate{Lat: req.Center.Lat, Lng: req.Center.Lng},
		RadiusMeters: req.RadiusMeters,
		Active:       active,
		Metadata:     req.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for i, t := range req.Triggers {
		trigger := domain.Trigger{
			Event:         domain.EventKind(t.Event),
			Action:        domain.TriggerAction(t.Action),
			NewStatus:     t.NewStatus,
			Message:       t.Message,
			DwellDuration: time.Duration(t.DwellSeconds) * time.Second,
			Recipients:    t.Recipients,
		}
		if t.DwellSeconds < 0 {
			return domain.Geofence{}, fmt.Errorf("trigger %d: dwell_seconds must not be negative", i)
		}
		g.Triggers = append(g.Triggers, trigger)
	}

	if err := g.Validate(); err != nil {
		return domain.Geofence{}, err
	}
	return g, nil
}

func toOrder(body OrderBody) (domain.DeliveryOrder, error) {
	order := domain.DeliveryOrder{
		ID:                body.ID,
		CustomerID:        body.CustomerID,
		Pickup:            domain.Coordinate{Lat: body.Pickup.Lat, Lng: body.Pickup.Lng},
		Delivery:          domain.Coordinate{Lat: body.Delivery.Lat, Lng: body.Delivery.Lng},
		Priority:          domain.Priority(body.Priority),
		EstimatedWeightKg: body.EstimatedWeightKg,
		Metadata:          body.Metadata,
	}
	if body.ScheduledAt != "" {
		t, err := time.Parse(time.RFC3339, body.ScheduledAt)
		if err != nil {
			return domain.DeliveryOrder{}, fmt.Errorf("order %s: invalid scheduled_at: %w", body.ID, err)
		}
		order.ScheduledAt = t
	}
	if err := order.Validate(); err != nil {
		return domain.DeliveryOrder{}, err
	}
	return order, nil
}

func toDriver(body DriverBody) (domain.Driver, error) {
	driver := domain.Driver{
		ID:                body.ID,
		Name:              body.Name,
		Location:          domain.Coordinate{Lat: body.Location.Lat, Lng: body.Location.Lng},
		Status:            domain.DriverStatus(body.Status),
		VehicleCapacityKg: body.VehicleCapacityKg,
		CurrentLoadKg:     body.CurrentLoadKg,
		Capabilities:      body.Capabilities,
	}
	if err := driver.Validate(); err != nil {
		return domain.Driver{}, err
	}
	return driver, nil
}

func toPosition(req PositionRequest, now time.Time) (domain.Position, error) {
	pos := domain.Position{
		Coordinate:     domain.Coordinate{Lat: req.Lat, Lng: req.Lng},
		AccuracyMeters: req.AccuracyMeters,
		SpeedKmh:       req.SpeedKmh,
		HeadingDeg:     req.HeadingDeg,
		Timestamp:      now,
	}
	if req.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return domain.Position{}, fmt.Errorf("invalid timestamp: %w", err)
		}
		pos.Timestamp = t
	}
	if err := pos.Coordinate.Validate(); err != nil {
		return domain.Position{}, err
	}
	return pos, nil
}

func fromGeofence(g domain.Geofence) GeofenceResponse {
	resp := GeofenceResponse{
		ID:           g.ID.String(),
		Name:         g.Name,
		Type:         string(g.Type),
		Center:       CoordinateBody{Lat: g.Center.Lat, Lng: g.Center.Lng},
		RadiusMeters: g.RadiusMeters,
		Active:       g.Active,
		Metadata:     g.Metadata,
		CreatedAt:    formatTime(g.CreatedAt),
		UpdatedAt:    formatTime(g.UpdatedAt),
	}
	for _, t := range g.Triggers {
		resp.Triggers = append(resp.Triggers, TriggerBody{
			Event:        string(t.Event),
			Action:       string(t.Action),
			NewStatus:    t.NewStatus,
			Message:      t.Message,
			DwellSeconds: int(t.DwellDuration / time.Second),
			Recipients:   t.Recipients,
		})
	}
	return resp
}

func fromOrder(o domain.DeliveryOrder) OrderBody {
	body := OrderBody{
		ID:                o.ID,
		CustomerID:        o.CustomerID,
		Pickup:            CoordinateBody{Lat: o.Pickup.Lat, Lng: o.Pickup.Lng},
		Delivery:          CoordinateBody{Lat: o.Delivery.Lat, Lng: o.Delivery.Lng},
		Priority:          string(o.Priority),
		EstimatedWeightKg: o.EstimatedWeightKg,
		Metadata:          o.Metadata,
	}
	if !o.ScheduledAt.IsZero() {
		body.ScheduledAt = formatTime(o.ScheduledAt)
	}
	return body
}
