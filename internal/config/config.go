// Package config holds planner tuning read from YAML with compiled-in defaults.
package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// Planner carries the cost and timing constants used by the planning
// pipeline. Everything here is configuration, not policy.
type Planner struct {
	FuelCostPerKm     float64 `yaml:"fuelCostPerKm"`
	CO2PerKm          float64 `yaml:"co2PerKm"`
	SpeedMinPerKm     float64 `yaml:"speedMinutesPerKm"`
	ServiceMinPerStop int     `yaml:"serviceMinutesPerStop"`
	DayStartHour      int     `yaml:"dayStartHour"`
}

// DefaultPlanner returns the stock constants.
func DefaultPlanner() Planner {
	return Planner{
		FuelCostPerKm:     0.80,
		CO2PerKm:          0.21,
		SpeedMinPerKm:     2,
		ServiceMinPerStop: 10,
		DayStartHour:      8,
	}
}

// LoadPlanner reads a YAML planner config. Fields left zero in the
// file fall back to defaults, so partial overrides are fine.
func LoadPlanner(path string) (Planner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Planner{}, fmt.Errorf("read planner config: %w", err)
	}
	p := Planner{}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Planner{}, fmt.Errorf("parse planner config: %w", err)
	}
	return p.withDefaults(), nil
}

// PlannerFromEnv loads the file named by PLANNER_CONFIG, or defaults
// when unset. A set-but-unreadable path is an error.
func PlannerFromEnv() (Planner, error) {
	path := os.Getenv("PLANNER_CONFIG")
	if path == "" {
		return DefaultPlanner(), nil
	}
	return LoadPlanner(path)
}

func (p Planner) withDefaults() Planner {
	d := DefaultPlanner()
	if p.FuelCostPerKm <= 0 {
		p.FuelCostPerKm = d.FuelCostPerKm
	}
	if p.CO2PerKm <= 0 {
		p.CO2PerKm = d.CO2PerKm
	}
	if p.SpeedMinPerKm <= 0 {
		p.SpeedMinPerKm = d.SpeedMinPerKm
	}
	if p.ServiceMinPerStop <= 0 {
		p.ServiceMinPerStop = d.ServiceMinPerStop
	}
	if p.DayStartHour <= 0 || p.DayStartHour > 23 {
		p.DayStartHour = d.DayStartHour
	}
	return p
}
