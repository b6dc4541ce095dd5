package opt

import (
	"math"

	"wastedispatch/internal/config"
	"wastedispatch/internal/geo"
	"wastedispatch/internal/model"
)

// BuildTour orders requests into a visiting sequence using a
// nearest-neighbor greedy scan from the depot. On equal distances the
// first candidate in remaining list order wins; the tie-break is
// arbitrary but must stay deterministic, so it is fixed here and
// covered by tests rather than left to iteration order.
//
// The builder also enforces a running capacity total: a candidate
// whose weight would push the accumulated load over capacityKg is
// skipped for this tour and counted in the second return value.
//
// O(n²) over the candidate set; a single vehicle's daily candidates
// number in the tens, so no 2-opt or other improvement pass is applied
// and the result stays explainable to operators.
func BuildTour(depot model.Coordinate, requests []model.PickupRequest, capacityKg float64, cfg config.Planner) ([]model.RouteStop, int) {
	if len(requests) == 0 {
		return []model.RouteStop{}, 0
	}

	unvisited := append([]model.PickupRequest(nil), requests...)
	stops := make([]model.RouteStop, 0, len(unvisited))
	current := depot
	loadKg := 0.0

	for len(unvisited) > 0 {
		best := -1
		bestDist := math.Inf(1)
		for i, cand := range unvisited {
			if loadKg+cand.TotalWeightKg() > capacityKg {
				continue
			}
			d := geo.DistanceKm(current, cand.Location)
			if d < bestDist {
				best = i
				bestDist = d
			}
		}
		if best == -1 {
			// nothing left fits the remaining capacity
			break
		}
		winner := unvisited[best]
		loadKg += winner.TotalWeightKg()
		stops = append(stops, model.RouteStop{
			RequestID:     winner.ID,
			Location:      winner.Location,
			DistanceKm:    bestDist,
			TravelTimeMin: travelMinutes(bestDist, cfg),
			LoadKg:        loadKg,
		})
		current = winner.Location
		unvisited = append(unvisited[:best], unvisited[best+1:]...)
	}
	return stops, len(unvisited)
}

// travelMinutes converts a leg distance to whole minutes at the
// configured average speed, rounding up.
func travelMinutes(distKm float64, cfg config.Planner) int {
	return int(math.Ceil(distKm * cfg.SpeedMinPerKm))
}
