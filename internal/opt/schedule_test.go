package opt

import (
	"testing"
	"time"

	"wastedispatch/internal/config"
	"wastedispatch/internal/model"
)

func TestProjectScheduleMonotonic(t *testing.T) {
	cfg := config.DefaultPlanner()
	stops := []model.RouteStop{
		{RequestID: "a", TravelTimeMin: 4},
		{RequestID: "b", TravelTimeMin: 7},
		{RequestID: "c", TravelTimeMin: 2},
	}
	start := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	out := ProjectSchedule(stops, start, cfg)

	clock := start
	for i, s := range out {
		arr, err := time.Parse(time.RFC3339, s.EstimatedArrival)
		if err != nil {
			t.Fatalf("stop %d arrival: %v", i, err)
		}
		dep, err := time.Parse(time.RFC3339, s.EstimatedDeparture)
		if err != nil {
			t.Fatalf("stop %d departure: %v", i, err)
		}
		if !arr.Equal(clock) {
			t.Fatalf("stop %d arrival %v, want %v", i, arr, clock)
		}
		wantDep := arr.Add(time.Duration(s.TravelTimeMin+cfg.ServiceMinPerStop) * time.Minute)
		if !dep.Equal(wantDep) {
			t.Fatalf("stop %d departure %v, want %v", i, dep, wantDep)
		}
		clock = dep
	}
}

func TestProjectScheduleDoesNotReorderOrMutate(t *testing.T) {
	stops := []model.RouteStop{
		{RequestID: "x", TravelTimeMin: 1},
		{RequestID: "y", TravelTimeMin: 1},
	}
	out := ProjectSchedule(stops, time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC), config.DefaultPlanner())
	if out[0].RequestID != "x" || out[1].RequestID != "y" {
		t.Fatalf("order changed: %+v", out)
	}
	if stops[0].EstimatedArrival != "" {
		t.Fatal("input slice was mutated")
	}
}

func TestDayStart(t *testing.T) {
	cfg := config.DefaultPlanner()
	got, err := DayStart("2026-09-01", cfg)
	if err != nil {
		t.Fatalf("DayStart: %v", err)
	}
	want := time.Date(2026, 9, 1, cfg.DayStartHour, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("DayStart = %v, want %v", got, want)
	}
	if _, err := DayStart("01-09-2026", cfg); err == nil {
		t.Fatal("expected error for malformed date")
	}
}
