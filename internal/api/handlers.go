package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wastedispatch/internal/metrics"
	"wastedispatch/internal/model"
	"wastedispatch/internal/notify"
	"wastedispatch/internal/opt"
	"wastedispatch/internal/store"
)

// RequestsHandler handles POST/GET /v1/requests
func (s *Server) RequestsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Requests []model.RequestIn `json:"requests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if len(req.Requests) == 0 {
			writeProblem(w, http.StatusBadRequest, "Empty batch", "requests must not be empty", r.URL.Path)
			return
		}
		for i := range req.Requests {
			if err := req.Requests[i].Validate(); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid request", fmt.Sprintf("requests[%d]: %v", i, err), r.URL.Path)
				return
			}
		}
		created, err := s.Store.CreateRequests(r.Context(), req.Requests)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create requests failed", err.Error(), r.URL.Path)
			return
		}
		s.Pub.Emit(r.Context(), notify.EventRequestCreated, map[string]any{"count": len(created)})
		writeJSON(w, http.StatusCreated, map[string]any{"items": created})
	case http.MethodGet:
		date := r.URL.Query().Get("date")
		status := r.URL.Query().Get("status")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, err := s.Store.ListRequests(r.Context(), date, status, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List requests failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RequestByIDHandler handles GET /v1/requests/{id}
func (s *Server) RequestByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/requests/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	req, err := s.Store.GetRequest(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// VehiclesHandler handles POST/GET /v1/vehicles
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var in model.VehicleIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := in.Validate(); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid vehicle", err.Error(), r.URL.Path)
			return
		}
		v, err := s.Store.CreateVehicle(r.Context(), in)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create vehicle failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	case http.MethodGet:
		items, err := s.Store.ListVehicles(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List vehicles failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// VehicleByIDHandler handles GET /v1/vehicles/{id} and POST /v1/vehicles/{id}/location
func (s *Server) VehicleByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/vehicles/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) > 1 && parts[1] == "location" {
		s.vehicleLocation(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	v, err := s.Store.GetVehicle(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) vehicleLocation(w http.ResponseWriter, r *http.Request, vehicleID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	var body struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
		TS  string  `json:"ts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if !(model.Coordinate{Lat: body.Lat, Lng: body.Lng}).Valid() {
		writeProblem(w, http.StatusBadRequest, "Invalid location", "lat/lng out of range", r.URL.Path)
		return
	}
	if _, err := s.Store.GetVehicle(r.Context(), vehicleID); err != nil {
		writeStoreError(w, err, r.URL.Path)
		return
	}
	ts := body.TS
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	loc := DriverLocation{VehicleID: vehicleID, DriverID: pr.DriverID, Lat: body.Lat, Lng: body.Lng, TS: ts}
	if err := s.Tracker.Upsert(r.Context(), loc); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Store location failed", err.Error(), r.URL.Path)
		return
	}
	s.Broker.Publish(vehicleID, SSEEvent{Type: "vehicle.location", Data: map[string]any{
		"vehicleId": vehicleID, "lat": body.Lat, "lng": body.Lng, "ts": ts,
	}})
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

// DriverLocationsHandler handles GET /v1/driver-locations
func (s *Server) DriverLocationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	items, err := s.Tracker.List(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List locations failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// DriversHandler handles POST/GET /v1/drivers
func (s *Server) DriversHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var in model.DriverIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		d, err := s.Store.CreateDriver(r.Context(), in)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create driver failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	case http.MethodGet:
		items, err := s.Store.ListDrivers(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List drivers failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// OptimizeHandler handles POST /v1/routes/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !canDispatch(p) {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	var req model.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateOptimizeRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}
	vehicle, err := s.Store.GetVehicle(r.Context(), req.VehicleID)
	if err != nil {
		writeStoreError(w, err, r.URL.Path)
		return
	}
	candidates, err := s.Store.CandidateRequests(r.Context(), req.Date)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load candidates failed", err.Error(), r.URL.Path)
		return
	}
	dayStart, err := opt.DayStart(req.Date, s.Planner)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid date", err.Error(), r.URL.Path)
		return
	}
	start := time.Now()
	plan := opt.BuildPlan(vehicle, *req.Depot, req.Date, candidates, dayStart, s.Planner)
	metrics.OptimizeDuration.Observe(time.Since(start).Seconds())
	metrics.OptimizeStops.Observe(float64(len(plan.Stops)))
	writeJSON(w, http.StatusOK, plan)
}

// CommitHandler handles POST /v1/routes/commit
func (s *Server) CommitHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !canDispatch(p) {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	var req model.CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateCommitRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid commit request", err.Error(), r.URL.Path)
		return
	}
	a, err := s.Store.CommitPlan(r.Context(), req.Plan, req.DriverID)
	if err != nil {
		metrics.CommitOutcomes.WithLabelValues(commitOutcome(err)).Inc()
		writeStoreError(w, err, r.URL.Path)
		return
	}
	metrics.CommitOutcomes.WithLabelValues("committed").Inc()
	s.Pub.Emit(r.Context(), notify.EventAssignmentCreated, map[string]any{
		"assignmentId": a.ID, "vehicleId": a.VehicleID, "driverId": a.DriverID, "date": a.Date,
	})
	// One notification per customer stop, addressed by request.
	drv, _ := s.Store.GetDriver(r.Context(), a.DriverID)
	veh, _ := s.Store.GetVehicle(r.Context(), a.VehicleID)
	vehicleInfo := veh.Plate
	if vehicleInfo == "" {
		vehicleInfo = veh.ID
	}
	for _, stop := range a.Stops {
		s.Pub.Emit(r.Context(), notify.EventCollectionScheduled, map[string]any{
			"requestId":        stop.RequestID,
			"estimatedArrival": stop.EstimatedArrival,
			"driverName":       drv.Name,
			"vehicleInfo":      vehicleInfo,
		})
	}
	s.Broker.Publish(a.VehicleID, SSEEvent{Type: "assignment.created", Data: map[string]any{
		"assignmentId": a.ID, "vehicleId": a.VehicleID, "driverId": a.DriverID, "stops": len(a.Stops),
	}})
	writeJSON(w, http.StatusCreated, a)
}

func commitOutcome(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, store.ErrRequestTaken):
		return "conflict"
	case errors.Is(err, store.ErrDriverUnavailable), errors.Is(err, store.ErrVehicleUnavailable):
		return "rejected"
	}
	return "error"
}

// SuggestionsHandler handles GET /v1/routes/suggestions/{vehicleId}
func (s *Server) SuggestionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	vehicleID := strings.TrimPrefix(r.URL.Path, "/v1/routes/suggestions/")
	if vehicleID == "" || strings.Contains(vehicleID, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing vehicle id", r.URL.Path)
		return
	}
	if _, err := s.Store.GetVehicle(r.Context(), vehicleID); err != nil {
		writeStoreError(w, err, r.URL.Path)
		return
	}
	dates, err := suggestionDates(r.URL.Query().Get("dates"), r.URL.Query().Get("from"), r.URL.Query().Get("days"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid dates", err.Error(), r.URL.Path)
		return
	}
	counts, err := s.Store.CountCandidates(r.Context(), dates)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Count candidates failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vehicleId": vehicleID,
		"items":     opt.SuggestDays(dates, counts),
	})
}

// suggestionDates resolves the date window: an explicit comma list
// wins, otherwise a rolling window from `from` (default today, UTC)
// over `days` (default 7).
func suggestionDates(list, from, days string) ([]string, error) {
	if list != "" {
		out := []string{}
		for _, d := range strings.Split(list, ",") {
			d = strings.TrimSpace(d)
			if d == "" {
				continue
			}
			if _, err := time.Parse("2006-01-02", d); err != nil {
				return nil, fmt.Errorf("bad date %q: %v", d, err)
			}
			out = append(out, d)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("dates list is empty")
		}
		return out, nil
	}
	start := time.Now().UTC()
	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return nil, fmt.Errorf("bad from %q: %v", from, err)
		}
		start = t
	}
	n := 7
	if days != "" {
		fmt.Sscanf(days, "%d", &n)
		if n < 1 || n > 31 {
			return nil, fmt.Errorf("days must be in 1..31")
		}
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, start.AddDate(0, 0, i).Format("2006-01-02"))
	}
	return out, nil
}

// AssignmentsHandler handles GET /v1/assignments
func (s *Server) AssignmentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	date := r.URL.Query().Get("date")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, err := s.Store.ListAssignments(r.Context(), date, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List assignments failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// AssignmentByIDHandler handles GET /v1/assignments/{id}
func (s *Server) AssignmentByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/assignments/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	a, err := s.Store.GetAssignment(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DispatchStreamHandler handles GET /v1/dispatch/stream?vehicleId= (SSE)
func (s *Server) DispatchStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	vehicleID := r.URL.Query().Get("vehicleId")
	if vehicleID == "" {
		writeProblem(w, http.StatusBadRequest, "Missing vehicleId", "vehicleId query parameter required", r.URL.Path)
		return
	}
	pr := s.getPrincipal(r)
	if !canDispatch(pr) && pr.Role != "driver" {
		writeProblem(w, http.StatusForbidden, "Forbidden", "not authorized for dispatch events", r.URL.Path)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(vehicleID)
	defer s.Broker.Unsubscribe(vehicleID, ch)
	// initial heartbeat
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"vehicleId\":\"%s\",\"ts\":\"%s\"}\n\n", vehicleID, time.Now().Format(time.RFC3339))
	flusher.Flush()
	notifyDone := r.Context().Done()
	for {
		select {
		case <-notifyDone:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"vehicleId\":\"%s\",\"ts\":\"%s\"}\n\n", vehicleID, time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if p.Role != "admin" {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		items, err := s.Store.ListSubscriptions(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if p.Role != "admin" {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		writeStoreError(w, err, r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler handles GET /readyz
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
