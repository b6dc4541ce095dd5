package opt

import (
	"time"

	"wastedispatch/internal/config"
	"wastedispatch/internal/model"
)

// ProjectSchedule fills estimated arrival/departure timestamps for an
// ordered stop sequence, starting the clock at dayStart. For each stop
// the arrival is the current clock and the departure adds the leg's
// travel time plus the fixed per-stop service time; the next stop's
// arrival equals the previous departure. Order is never changed here.
func ProjectSchedule(stops []model.RouteStop, dayStart time.Time, cfg config.Planner) []model.RouteStop {
	out := append([]model.RouteStop(nil), stops...)
	clock := dayStart.UTC()
	for i := range out {
		arrival := clock
		departure := arrival.Add(time.Duration(out[i].TravelTimeMin+cfg.ServiceMinPerStop) * time.Minute)
		out[i].EstimatedArrival = arrival.Format(time.RFC3339)
		out[i].EstimatedDeparture = departure.Format(time.RFC3339)
		clock = departure
	}
	return out
}

// DayStart returns the working-day start clock for a YYYY-MM-DD date.
func DayStart(date string, cfg config.Planner) (time.Time, error) {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(time.Duration(cfg.DayStartHour) * time.Hour), nil
}
