package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wastedispatch/internal/api"
	"wastedispatch/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	srv, err := api.NewServer()
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	metrics.RegisterDefault()

	mux := http.NewServeMux()

	// Pickup requests
	mux.HandleFunc("/v1/requests", srv.RequestsHandler)
	mux.HandleFunc("/v1/requests/", srv.RequestByIDHandler)

	// Fleet
	mux.HandleFunc("/v1/vehicles", srv.VehiclesHandler)
	mux.HandleFunc("/v1/vehicles/", srv.VehicleByIDHandler) // includes /location
	mux.HandleFunc("/v1/drivers", srv.DriversHandler)
	mux.HandleFunc("/v1/driver-locations", srv.DriverLocationsHandler)

	// Planning and dispatch
	mux.HandleFunc("/v1/routes/optimize", srv.OptimizeHandler)
	mux.HandleFunc("/v1/routes/commit", srv.CommitHandler)
	mux.HandleFunc("/v1/routes/suggestions/", srv.SuggestionsHandler)
	mux.HandleFunc("/v1/assignments", srv.AssignmentsHandler)
	mux.HandleFunc("/v1/assignments/", srv.AssignmentByIDHandler)
	mux.HandleFunc("/v1/dispatch/stream", srv.DispatchStreamHandler)

	// Notifications
	mux.HandleFunc("/v1/subscriptions", srv.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srv.SubscriptionByIDHandler)

	// Health and introspection
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.HandleFunc("/readyz", srv.ReadyHandler)
	mux.HandleFunc("/debug/info", srv.DebugJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(metricsMiddleware(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("API listening on %s", addr)
	worker := srv.NewNotifyWorker()
	worker.Start()
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		dur := time.Since(start)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		status := strconv.Itoa(sw.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, routeLabel(r.URL.Path), status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, routeLabel(r.URL.Path), status).Observe(time.Since(start).Seconds())
	})
}

// routeLabel collapses id-bearing paths so label cardinality stays flat.
func routeLabel(path string) string {
	for _, prefix := range []string{
		"/v1/requests/",
		"/v1/vehicles/",
		"/v1/assignments/",
		"/v1/subscriptions/",
		"/v1/routes/suggestions/",
	} {
		if len(path) > len(prefix) && path[:len(prefix)] == prefix {
			return prefix + ":id"
		}
	}
	return path
}
