package dispatch

import (
	"fmt"
	"sort"

	"github.com/wastehaul/dispatchd/internal/domain"
	"github.com/wastehaul/dispatchd/internal/geo"
)

// Sequence orders a set of stops for one driver: a stable priority sort
// followed by a greedy nearest-neighbor walk from the start location.
//
// The walk minimizes the immediate leg at each step; it is not optimal TSP.
// Ties on distance fall to the earlier element of the priority-sorted input,
// so among equidistant stops the higher-priority order is scheduled first and
// the result is deterministic for a fixed input order.
func Sequence(orders []domain.DeliveryOrder, start domain.Coordinate) ([]domain.DeliveryOrder, error) {
	if err := start.Validate(); err != nil {
		return nil, fmt.Errorf("sequence: start: %w", err)
	}
	for _, o := range orders {
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("sequence: %w", err)
		}
	}

	if len(orders) <= 1 {
		return append([]domain.DeliveryOrder(nil), orders...), nil
	}

	remaining := append([]domain.DeliveryOrder(nil), orders...)
	sort.SliceStable(remaining, func(i, j int) bool {
		return remaining[i].Priority.Weight() > remaining[j].Priority.Weight()
	})

	sequenced := make([]domain.DeliveryOrder, 0, len(remaining))
	current := start

	for len(remaining) > 0 {
		nearest := 0
		nearestDist := geo.DistanceMeters(current, remaining[0].Delivery)
		for i := 1; i < len(remaining); i++ {
			if d := geo.DistanceMeters(current, remaining[i].Delivery); d < nearestDist {
				nearest = i
				nearestDist = d
			}
		}

		next := remaining[nearest]
		sequenced = append(sequenced, next)
		current = next.Delivery
		remaining = append(remaining[:nearest], remaining[nearest+1:]...)
	}

	return sequenced, nil
}
