package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// OptimizeDuration records route planning time per vehicle request
	OptimizeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "route_optimize_duration_seconds", Help: "Route plan build duration in seconds.", Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}},
	)
	// OptimizeStops records the stop count of produced plans
	OptimizeStops = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "route_optimize_stops", Help: "Stops per produced route plan.", Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100}},
	)
	// CommitOutcomes counts dispatch commit results
	CommitOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_commits_total", Help: "Dispatch commits by outcome."},
		[]string{"outcome"},
	)

	// NotificationDeliveries counts notification delivery outcomes by event type and status
	NotificationDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "notification_deliveries_total", Help: "Notification deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// NotificationLatency tracks notification delivery latencies in milliseconds
	NotificationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "notification_delivery_latency_ms", Help: "Notification delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the shared registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(OptimizeDuration)
		Registry.MustRegister(OptimizeStops)
		Registry.MustRegister(CommitOutcomes)
		Registry.MustRegister(NotificationDeliveries)
		Registry.MustRegister(NotificationLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
