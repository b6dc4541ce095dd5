package opt

import (
	"time"

	"wastedispatch/internal/config"
	"wastedispatch/internal/model"
)

// BuildPlan runs the full pipeline for one vehicle and day:
// capacity filter, nearest-neighbor tour, schedule projection, stats.
// It has no side effects and reads no shared state, so concurrent
// calls for different vehicles need no coordination. Identical inputs
// yield an identical plan.
//
// FilteredOut counts both requests the vehicle can never carry and
// requests skipped by the running-capacity check in the tour.
func BuildPlan(vehicle model.Vehicle, depot model.Coordinate, date string, candidates []model.PickupRequest, dayStart time.Time, cfg config.Planner) model.RoutePlan {
	eligible, rejected := FilterByCapacity(vehicle, candidates)
	stops, skipped := BuildTour(depot, eligible, vehicle.CapacityKg, cfg)
	stops = ProjectSchedule(stops, dayStart, cfg)
	return model.RoutePlan{
		VehicleID:   vehicle.ID,
		Date:        date,
		Depot:       depot,
		Stops:       stops,
		Stats:       Summarize(stops, cfg),
		FilteredOut: rejected + skipped,
	}
}
