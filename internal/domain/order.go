package domain

import (
	"fmt"
	"time"
)

type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityMedium    Priority = "medium"
	PriorityHigh      Priority = "high"
	PriorityEmergency Priority = "emergency"
)

// Weight returns the priority's ordering weight (higher is more urgent).
func (p Priority) Weight() int {
	switch p {
	case PriorityEmergency:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p Priority) Valid() bool {
	return p.Weight() > 0
}

// DeliveryOrder is a snapshot of an order read from the external order store.
// The engine never mutates it.
type DeliveryOrder struct {
	ID         string
	CustomerID string

	Pickup   Coordinate
	Delivery Coordinate

	Priority          Priority
	EstimatedWeightKg float64
	ScheduledAt       time.Time

	// Metadata carries free-form hints from the order store
	// (e.g. "service_type": "construction").
	Metadata map[string]string
}

// Validate checks the fields the dispatch engine depends on.
func (o DeliveryOrder) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("order: id is required")
	}
	if !o.Priority.Valid() {
		return fmt.Errorf("order %s: unknown priority %q", o.ID, o.Priority)
	}
	if o.EstimatedWeightKg < 0 {
		return fmt.Errorf("order %s: estimated weight must not be negative", o.ID)
	}
	if err := o.Pickup.Validate(); err != nil {
		return fmt.Errorf("order %s: pickup: %w", o.ID, err)
	}
	if err := o.Delivery.Validate(); err != nil {
		return fmt.Errorf("order %s: delivery: %w", o.ID, err)
	}
	return nil
}
