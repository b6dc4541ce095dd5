package geo

import (
	"math"
	"testing"

	"wastedispatch/internal/model"
)

func TestDistanceSymmetry(t *testing.T) {
	a := model.Coordinate{Lat: 27.7172, Lng: 85.3240}
	b := model.Coordinate{Lat: 27.6710, Lng: 85.3107}
	ab := DistanceKm(a, b)
	ba := DistanceKm(b, a)
	if math.Abs(ab-ba) > 1e-9 {
		t.Fatalf("distance not symmetric: %v vs %v", ab, ba)
	}
	if ab <= 0 {
		t.Fatalf("expected positive distance, got %v", ab)
	}
}

func TestDistanceZeroForSamePoint(t *testing.T) {
	p := model.Coordinate{Lat: 55.7558, Lng: 37.6176}
	if d := DistanceKm(p, p); d != 0 {
		t.Fatalf("same point: expected 0, got %v", d)
	}
}

func TestDistanceKnownPair(t *testing.T) {
	// Moscow to Saint Petersburg, roughly 630 km great-circle.
	moscow := model.Coordinate{Lat: 55.7558, Lng: 37.6176}
	spb := model.Coordinate{Lat: 59.9343, Lng: 30.3351}
	d := DistanceKm(moscow, spb)
	if d < 600 || d > 700 {
		t.Fatalf("expected ~630 km, got %v", d)
	}
}

func TestDistanceShortHop(t *testing.T) {
	// Two points ~1.7 km apart inside Kathmandu.
	a := model.Coordinate{Lat: 27.7172, Lng: 85.3240}
	b := model.Coordinate{Lat: 27.7056, Lng: 85.3178}
	d := DistanceKm(a, b)
	if d < 1.0 || d > 2.5 {
		t.Fatalf("expected short hop in [1,2.5] km, got %v", d)
	}
}
