// Package opt implements the route planning pipeline: capacity
// filtering, nearest-neighbor tour construction, schedule projection,
// stats aggregation, and the workload day advisor. Everything in this
// package is pure and safe for concurrent use.
package opt

import "wastedispatch/internal/model"

// FilterByCapacity returns the requests the vehicle may legally carry:
// the request's own total weight fits the vehicle capacity and every
// item category is accepted. Input order is preserved; ordering is the
// tour builder's job. The rejected count is surfaced to operators as a
// normal planning outcome, not an error.
func FilterByCapacity(v model.Vehicle, requests []model.PickupRequest) ([]model.PickupRequest, int) {
	eligible := make([]model.PickupRequest, 0, len(requests))
	rejected := 0
	for _, r := range requests {
		if !requestFits(v, r) {
			rejected++
			continue
		}
		eligible = append(eligible, r)
	}
	return eligible, rejected
}

func requestFits(v model.Vehicle, r model.PickupRequest) bool {
	if r.TotalWeightKg() > v.CapacityKg {
		return false
	}
	for _, it := range r.Items {
		if !v.Accepts(it.Category) {
			return false
		}
	}
	return true
}
