// Package dispatch contains the pure order-assignment logic: the multi-factor
// driver scorer and the route sequencer. Both are synchronous, hold no state,
// and are safe to call concurrently.
package dispatch

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/wastehaul/dispatchd/internal/domain"
	"github.com/wastehaul/dispatchd/internal/geo"
)

var ErrNoEligibleDriver = errors.New("no eligible driver for order")

// ScorerConfig holds every tunable of the scoring formula. Use
// DefaultScorerConfig and override selectively.
type ScorerConfig struct {
	BaseScore float64

	// Proximity term: max(0, ProximityMax - ProximityDecayPerKm * distanceKm).
	ProximityMax        float64
	ProximityDecayPerKm float64

	PriorityBonus map[domain.Priority]float64

	// Utilization term: full bonus below the knee, linear penalty above it.
	UtilizationBonus        float64
	UtilizationKnee         float64
	UtilizationPenaltySlope float64

	ExpertiseBonus float64

	// Duration estimate: distance at AvgSpeedKmh plus fixed ServiceTime.
	AvgSpeedKmh float64
	ServiceTime time.Duration
}

func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		BaseScore:           100,
		ProximityMax:        50,
		ProximityDecayPerKm: 2,
		PriorityBonus: map[domain.Priority]float64{
			domain.PriorityEmergency: 30,
			domain.PriorityHigh:      20,
			domain.PriorityMedium:    10,
			domain.PriorityLow:       0,
		},
		UtilizationBonus:        20,
		UtilizationKnee:         0.8,
		UtilizationPenaltySlope: 50,
		ExpertiseBonus:          15,
		AvgSpeedKmh:             40,
		ServiceTime:             30 * time.Minute,
	}
}

// maxPossible is the highest raw score the formula can produce. Used to map
// raw scores onto the 0-100 confidence scale.
func (c ScorerConfig) maxPossible() float64 {
	var maxPriority float64
	for _, b := range c.PriorityBonus {
		if b > maxPriority {
			maxPriority = b
		}
	}
	return c.BaseScore + c.ProximityMax + maxPriority + c.UtilizationBonus + c.ExpertiseBonus
}

type Scorer struct {
	config ScorerConfig
}

func NewScorer(config ScorerConfig) *Scorer {
	return &Scorer{config: config}
}

// Score computes the raw fitness score for a (driver, order) pair. A zero
// score means the driver is ineligible: not available, or over capacity.
// Invalid snapshots are an error, never a silent zero.
func (s *Scorer) Score(driver domain.Driver, order domain.DeliveryOrder) (float64, error) {
	if err := driver.Validate(); err != nil {
		return 0, fmt.Errorf("score: %w", err)
	}
	if err := order.Validate(); err != nil {
		return 0, fmt.Errorf("score: %w", err)
	}

	if driver.Status != domain.DriverAvailable {
		return 0, nil
	}
	// Capacity is a hard filter, not a penalty.
	if driver.CurrentLoadKg+order.EstimatedWeightKg > driver.VehicleCapacityKg {
		return 0, nil
	}

	score := s.config.BaseScore

	distKm := geo.DistanceKm(driver.Location, order.Pickup)
	score += math.Max(0, s.config.ProximityMax-s.config.ProximityDecayPerKm*distKm)

	score += s.config.PriorityBonus[order.Priority]

	ratio := (driver.CurrentLoadKg + order.EstimatedWeightKg) / driver.VehicleCapacityKg
	if ratio < s.config.UtilizationKnee {
		score += s.config.UtilizationBonus
	} else {
		score += math.Max(0, s.config.UtilizationBonus-s.config.UtilizationPenaltySlope*(ratio-s.config.UtilizationKnee))
	}

	if driverHasCapability(driver, InferServiceCategory(order)) {
		score += s.config.ExpertiseBonus
	}

	return score, nil
}

// Assign scores every driver against the order and returns the best
// eligible pairing. Ties are broken by smaller distance to the pickup, then
// by driver id, so repeated calls with identical inputs are deterministic.
// Returns ErrNoEligibleDriver when every driver scores zero.
func (s *Scorer) Assign(drivers []domain.Driver, order domain.DeliveryOrder) (domain.AssignmentResult, error) {
	if err := order.Validate(); err != nil {
		return domain.AssignmentResult{}, fmt.Errorf("assign: %w", err)
	}

	var (
		best      *domain.Driver
		bestScore float64
		bestDist  float64
	)

	for i := range drivers {
		d := drivers[i]
		score, err := s.Score(d, order)
		if err != nil {
			return domain.AssignmentResult{}, fmt.Errorf("assign: %w", err)
		}
		if score == 0 {
			continue
		}

		dist := geo.DistanceMeters(d.Location, order.Pickup)
		if best == nil ||
			score > bestScore ||
			(score == bestScore && dist < bestDist) ||
			(score == bestScore && dist == bestDist && d.ID < best.ID) {
			best = &drivers[i]
			bestScore = score
			bestDist = dist
		}
	}

	if best == nil {
		return domain.AssignmentResult{}, ErrNoEligibleDriver
	}

	routeMeters := bestDist + geo.DistanceMeters(order.Pickup, order.Delivery)

	return domain.AssignmentResult{
		OrderID:             order.ID,
		DriverID:            best.ID,
		EstimatedDuration:   s.EstimateDuration(routeMeters),
		RouteDistanceMeters: routeMeters,
		Confidence:          s.confidence(bestScore),
	}, nil
}

// EstimateDuration converts a route distance to a whole-minute estimate:
// driving at the configured average speed plus the fixed service time.
func (s *Scorer) EstimateDuration(routeMeters float64) time.Duration {
	driveMinutes := routeMeters / 1000 / s.config.AvgSpeedKmh * 60
	serviceMinutes := s.config.ServiceTime.Minutes()
	return time.Duration(math.Round(driveMinutes+serviceMinutes)) * time.Minute
}

// confidence maps a raw score onto the 0-100 scale.
func (s *Scorer) confidence(score float64) float64 {
	c := math.Round(score / s.config.maxPossible() * 100)
	return math.Min(100, math.Max(0, c))
}

// InferServiceCategory derives the order's service category from its
// metadata and shape: an explicit service_type hint wins, emergency orders
// are their own category, heavy loads imply construction work.
func InferServiceCategory(order domain.DeliveryOrder) string {
	if hint, ok := order.Metadata["service_type"]; ok && hint != "" {
		return strings.ToLower(hint)
	}
	if order.Priority == domain.PriorityEmergency {
		return "emergency"
	}
	if order.EstimatedWeightKg >= 500 {
		return "construction"
	}
	return "general"
}

func driverHasCapability(driver domain.Driver, category string) bool {
	for _, tag := range driver.Capabilities {
		if strings.EqualFold(tag, category) {
			return true
		}
	}
	return false
}
