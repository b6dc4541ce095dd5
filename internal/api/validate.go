package api

import (
	"fmt"
	"time"

	"wastedispatch/internal/model"
)

func validateOptimizeRequest(req *model.OptimizeRequest) error {
	if req.VehicleID == "" {
		return fmt.Errorf("vehicleId is required")
	}
	if req.Date == "" {
		return fmt.Errorf("date is required")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %v", err)
	}
	if req.Depot == nil {
		return fmt.Errorf("depot is required")
	}
	if !req.Depot.Valid() {
		return fmt.Errorf("depot out of range: lat=%v lng=%v", req.Depot.Lat, req.Depot.Lng)
	}
	return nil
}

func validateCommitRequest(req *model.CommitRequest) error {
	if req.DriverID == "" {
		return fmt.Errorf("driverId is required")
	}
	if req.Plan.VehicleID == "" {
		return fmt.Errorf("plan.vehicleId is required")
	}
	if req.Plan.Date == "" {
		return fmt.Errorf("plan.date is required")
	}
	if _, err := time.Parse("2006-01-02", req.Plan.Date); err != nil {
		return fmt.Errorf("plan.date must be YYYY-MM-DD: %v", err)
	}
	if len(req.Plan.Stops) == 0 {
		return fmt.Errorf("plan has no stops")
	}
	seen := map[string]struct{}{}
	for i, s := range req.Plan.Stops {
		if s.RequestID == "" {
			return fmt.Errorf("stops[%d]: requestId is required", i)
		}
		if _, dup := seen[s.RequestID]; dup {
			return fmt.Errorf("stops[%d]: duplicate requestId %s", i, s.RequestID)
		}
		seen[s.RequestID] = struct{}{}
	}
	return nil
}
