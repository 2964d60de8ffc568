package domain

import "fmt"

type DriverStatus string

const (
	DriverAvailable DriverStatus = "available"
	DriverBusy      DriverStatus = "busy"
	DriverOffline   DriverStatus = "offline"
)

func (s DriverStatus) Valid() bool {
	switch s {
	case DriverAvailable, DriverBusy, DriverOffline:
		return true
	default:
		return false
	}
}

// Driver is a snapshot of a driver read from the external fleet system per
// scoring call. The engine does not cache driver state across calls.
type Driver struct {
	ID   string
	Name string

	Location Coordinate
	Status   DriverStatus

	VehicleCapacityKg float64
	CurrentLoadKg     float64

	// Capabilities are free-form tags such as "construction" or "hazmat".
	Capabilities []string
}

func (d Driver) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("driver: id is required")
	}
	if !d.Status.Valid() {
		return fmt.Errorf("driver %s: unknown status %q", d.ID, d.Status)
	}
	if d.VehicleCapacityKg <= 0 {
		return fmt.Errorf("driver %s: vehicle capacity must be positive", d.ID)
	}
	if d.CurrentLoadKg < 0 {
		return fmt.Errorf("driver %s: current load must not be negative", d.ID)
	}
	if err := d.Location.Validate(); err != nil {
		return fmt.Errorf("driver %s: location: %w", d.ID, err)
	}
	return nil
}
