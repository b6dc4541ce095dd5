package opt

import "wastedispatch/internal/model"

// Workload thresholds and the recommended band, in candidate requests
// per day.
const (
	lightMax       = 10
	mediumMax      = 20
	recommendedMin = 8
	recommendedMax = 15
)

// ClassifyWorkload buckets a day's candidate request count.
func ClassifyWorkload(count int) string {
	switch {
	case count <= lightMax:
		return model.WorkloadLight
	case count <= mediumMax:
		return model.WorkloadMedium
	default:
		return model.WorkloadHeavy
	}
}

// SuggestDays classifies candidate dates for a vehicle from request
// counts. Pure classification, no optimization; it only guides which
// date an operator plans next. Dates keep their input order.
func SuggestDays(dates []string, countByDate map[string]int) []model.DaySuggestion {
	out := make([]model.DaySuggestion, 0, len(dates))
	for _, d := range dates {
		n := countByDate[d]
		out = append(out, model.DaySuggestion{
			Date:         d,
			RequestCount: n,
			Workload:     ClassifyWorkload(n),
			Recommended:  n >= recommendedMin && n <= recommendedMax,
		})
	}
	return out
}
