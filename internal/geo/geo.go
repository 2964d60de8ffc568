// Package geo provides great-circle math shared by the dispatch scorer and
// the geofence monitor.
package geo

import (
	"math"

	"github.com/wastehaul/dispatchd/internal/domain"
)

const earthRadiusMeters = 6371000

// DistanceMeters returns the haversine great-circle distance between two
// coordinates. NaN inputs propagate NaN; callers validate upstream.
func DistanceMeters(a, b domain.Coordinate) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)

	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// DistanceKm returns DistanceMeters in kilometers.
func DistanceKm(a, b domain.Coordinate) float64 {
	return DistanceMeters(a, b) / 1000
}

// IsWithin reports whether point lies inside or on the circle of the given
// radius around center.
func IsWithin(point, center domain.Coordinate, radiusMeters float64) bool {
	return DistanceMeters(point, center) <= radiusMeters
}

// Bearing returns the initial bearing from a to b in degrees [0, 360).
func Bearing(a, b domain.Coordinate) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLng := toRad(b.Lng - a.Lng)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
