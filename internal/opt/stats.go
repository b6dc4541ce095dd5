package opt

import (
	"wastedispatch/internal/config"
	"wastedispatch/internal/model"
)

// Summarize aggregates totals for a built stop sequence. Stats are
// always derived from the stops with the current config; they are not
// stored independently and never hand-edited.
func Summarize(stops []model.RouteStop, cfg config.Planner) model.RouteStats {
	s := model.RouteStats{StopCount: len(stops)}
	for _, st := range stops {
		s.TotalDistanceKm += st.DistanceKm
		s.TotalTravelTimeMin += st.TravelTimeMin
	}
	s.TotalCollectionTimeMin = s.StopCount * cfg.ServiceMinPerStop
	s.TotalTimeMin = s.TotalTravelTimeMin + s.TotalCollectionTimeMin
	s.EstimatedFuelCost = s.TotalDistanceKm * cfg.FuelCostPerKm
	s.CO2EmissionsKg = s.TotalDistanceKm * cfg.CO2PerKm
	return s
}
