package domain

import "time"

// AssignmentResult is the scorer's recommendation for one order. It is
// immutable; the caller commits it to the external order store.
type AssignmentResult struct {
	OrderID  string
	DriverID string

	EstimatedDuration   time.Duration
	RouteDistanceMeters float64

	// Confidence is the scorer's 0-100 fitness value for the pairing.
	Confidence float64
}
