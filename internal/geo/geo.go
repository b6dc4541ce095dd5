// Package geo provides great-circle distance computation.
package geo

import (
	"math"

	"wastedispatch/internal/model"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the Haversine distance between two coordinates in
// kilometers. Total for any in-range inputs; callers validate
// coordinates before calling.
func DistanceKm(a, b model.Coordinate) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}
