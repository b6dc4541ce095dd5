package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wastedispatch/internal/config"
	"wastedispatch/internal/model"
	"wastedispatch/internal/notify"
	"wastedispatch/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	mem := store.NewMemory()
	return &Server{
		Store:   mem,
		Pub:     notify.NewPublisher(mem),
		Broker:  NewBroker(),
		Tracker: NewMemoryTracker(),
		Planner: config.DefaultPlanner(),
	}
}

func doJSON(t *testing.T, h http.HandlerFunc, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	h(rr, req)
	return rr
}

func seedFleet(t *testing.T, s *Server) (model.Vehicle, model.Driver) {
	t.Helper()
	rr := doJSON(t, s.VehiclesHandler, http.MethodPost, "/v1/vehicles", model.VehicleIn{
		Plate: "BA-1-PA-100", CapacityKg: 500,
		Categories: []string{"general", "recyclable", "organic"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create vehicle: %d %s", rr.Code, rr.Body.String())
	}
	var v model.Vehicle
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode vehicle: %v", err)
	}
	rr = doJSON(t, s.DriversHandler, http.MethodPost, "/v1/drivers", model.DriverIn{Name: "Hari"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create driver: %d", rr.Code)
	}
	var d model.Driver
	if err := json.Unmarshal(rr.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode driver: %v", err)
	}
	return v, d
}

func seedRequests(t *testing.T, s *Server, date string, n int) {
	t.Helper()
	reqs := make([]model.RequestIn, 0, n)
	for i := 0; i < n; i++ {
		reqs = append(reqs, model.RequestIn{
			Location: &model.Coordinate{Lat: 27.70 + float64(i)*0.01, Lng: 85.32 + float64(i)*0.01},
			Date:     date,
			Items:    []model.WasteItem{{Category: "general", WeightKg: 10}},
		})
	}
	rr := doJSON(t, s.RequestsHandler, http.MethodPost, "/v1/requests", map[string]any{"requests": reqs})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create requests: %d %s", rr.Code, rr.Body.String())
	}
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestRequestsCreateListGet(t *testing.T) {
	s := newTestServer(t)
	seedRequests(t, s, "2026-09-02", 3)

	rr := doJSON(t, s.RequestsHandler, http.MethodGet, "/v1/requests?date=2026-09-02", nil)
	if rr.Code != 200 {
		t.Fatalf("list: %d", rr.Code)
	}
	var res struct {
		Items []model.PickupRequest `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(res.Items))
	}

	rr = httptest.NewRecorder()
	s.RequestByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/requests/"+res.Items[0].ID, nil))
	if rr.Code != 200 {
		t.Fatalf("get: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.RequestByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/requests/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get missing: %d", rr.Code)
	}
}

func TestRequestsRejectsBadBatch(t *testing.T) {
	s := newTestServer(t)
	rr := doJSON(t, s.RequestsHandler, http.MethodPost, "/v1/requests", map[string]any{
		"requests": []map[string]any{{"date": "2026-09-02"}},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing location accepted: %d", rr.Code)
	}
}

func TestOptimizeProducesPlan(t *testing.T) {
	s := newTestServer(t)
	v, _ := seedFleet(t, s)
	seedRequests(t, s, "2026-09-02", 3)

	rr := doJSON(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", model.OptimizeRequest{
		VehicleID: v.ID, Date: "2026-09-02",
		Depot: &model.Coordinate{Lat: 27.7172, Lng: 85.3240},
	})
	if rr.Code != 200 {
		t.Fatalf("optimize: %d %s", rr.Code, rr.Body.String())
	}
	var plan model.RoutePlan
	if err := json.Unmarshal(rr.Body.Bytes(), &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if len(plan.Stops) != 3 {
		t.Fatalf("stops = %d, want 3", len(plan.Stops))
	}
	if plan.Stats.StopCount != 3 || plan.Stats.TotalDistanceKm <= 0 {
		t.Fatalf("stats = %+v", plan.Stats)
	}
	if plan.Stops[0].EstimatedArrival == "" {
		t.Fatalf("missing schedule on first stop: %+v", plan.Stops[0])
	}
}

func TestOptimizeValidation(t *testing.T) {
	s := newTestServer(t)
	rr := doJSON(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", model.OptimizeRequest{
		Date: "2026-09-02", Depot: &model.Coordinate{Lat: 1, Lng: 1},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing vehicleId: %d", rr.Code)
	}
	rr = doJSON(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", model.OptimizeRequest{
		VehicleID: "v", Date: "02-09-2026", Depot: &model.Coordinate{Lat: 1, Lng: 1},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad date: %d", rr.Code)
	}
	rr = doJSON(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", model.OptimizeRequest{
		VehicleID: "v", Date: "2026-09-02", Depot: &model.Coordinate{Lat: 95, Lng: 0},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad depot: %d", rr.Code)
	}
}

func TestOptimizeForbiddenForDriver(t *testing.T) {
	s := newTestServer(t)
	b, _ := json.Marshal(model.OptimizeRequest{VehicleID: "v", Date: "2026-09-02", Depot: &model.Coordinate{}})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/routes/optimize", bytes.NewReader(b))
	req.Header.Set("X-Role", "driver")
	s.OptimizeHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("driver allowed to optimize: %d", rr.Code)
	}
}

func optimizeAndCommit(t *testing.T, s *Server, v model.Vehicle, d model.Driver, date string) model.Assignment {
	t.Helper()
	rr := doJSON(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", model.OptimizeRequest{
		VehicleID: v.ID, Date: date, Depot: &model.Coordinate{Lat: 27.7172, Lng: 85.3240},
	})
	if rr.Code != 200 {
		t.Fatalf("optimize: %d %s", rr.Code, rr.Body.String())
	}
	var plan model.RoutePlan
	if err := json.Unmarshal(rr.Body.Bytes(), &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	rr = doJSON(t, s.CommitHandler, http.MethodPost, "/v1/routes/commit", model.CommitRequest{Plan: plan, DriverID: d.ID})
	if rr.Code != http.StatusCreated {
		t.Fatalf("commit: %d %s", rr.Code, rr.Body.String())
	}
	var a model.Assignment
	if err := json.Unmarshal(rr.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode assignment: %v", err)
	}
	return a
}

func TestCommitFlowAndConflict(t *testing.T) {
	s := newTestServer(t)
	v, d := seedFleet(t, s)
	seedRequests(t, s, "2026-09-02", 2)

	// First optimize, keep the plan around for the replay.
	rr := doJSON(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", model.OptimizeRequest{
		VehicleID: v.ID, Date: "2026-09-02", Depot: &model.Coordinate{Lat: 27.7172, Lng: 85.3240},
	})
	var plan model.RoutePlan
	if err := json.Unmarshal(rr.Body.Bytes(), &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}

	rr = doJSON(t, s.CommitHandler, http.MethodPost, "/v1/routes/commit", model.CommitRequest{Plan: plan, DriverID: d.ID})
	if rr.Code != http.StatusCreated {
		t.Fatalf("commit: %d %s", rr.Code, rr.Body.String())
	}
	var a model.Assignment
	_ = json.Unmarshal(rr.Body.Bytes(), &a)
	if len(a.Stops) != 2 {
		t.Fatalf("assignment stops = %d", len(a.Stops))
	}

	// Replaying the same plan must conflict on the now-assigned requests.
	rr = doJSON(t, s.CommitHandler, http.MethodPost, "/v1/routes/commit", model.CommitRequest{Plan: plan, DriverID: d.ID})
	if rr.Code != http.StatusConflict {
		t.Fatalf("replayed commit: %d, want 409", rr.Code)
	}
	var prob Problem
	if err := json.Unmarshal(rr.Body.Bytes(), &prob); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if prob.Status != http.StatusConflict {
		t.Fatalf("problem = %+v", prob)
	}

	// Assignment is visible afterwards.
	rr = httptest.NewRecorder()
	s.AssignmentsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/assignments?date=2026-09-02", nil))
	if rr.Code != 200 {
		t.Fatalf("list assignments: %d", rr.Code)
	}
	var ares struct {
		Items []model.Assignment `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &ares)
	if len(ares.Items) != 1 {
		t.Fatalf("assignments = %d, want 1", len(ares.Items))
	}
	rr = httptest.NewRecorder()
	s.AssignmentByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/assignments/"+a.ID, nil))
	if rr.Code != 200 {
		t.Fatalf("get assignment: %d", rr.Code)
	}
}

func TestCommitUnavailableDriverIs422(t *testing.T) {
	s := newTestServer(t)
	v, d := seedFleet(t, s)
	seedRequests(t, s, "2026-09-02", 2)
	optimizeAndCommit(t, s, v, d, "2026-09-02")

	// New vehicle, same busy driver, fresh request.
	rr := doJSON(t, s.VehiclesHandler, http.MethodPost, "/v1/vehicles", model.VehicleIn{
		CapacityKg: 200, Categories: []string{"general"},
	})
	var v2 model.Vehicle
	_ = json.Unmarshal(rr.Body.Bytes(), &v2)
	seedRequests(t, s, "2026-09-02", 1)

	rr = doJSON(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", model.OptimizeRequest{
		VehicleID: v2.ID, Date: "2026-09-02", Depot: &model.Coordinate{Lat: 27.7172, Lng: 85.3240},
	})
	var plan model.RoutePlan
	_ = json.Unmarshal(rr.Body.Bytes(), &plan)
	if len(plan.Stops) == 0 {
		t.Fatalf("no stops to commit")
	}
	rr = doJSON(t, s.CommitHandler, http.MethodPost, "/v1/routes/commit", model.CommitRequest{Plan: plan, DriverID: d.ID})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("busy driver commit: %d, want 422", rr.Code)
	}
}

func TestCommitEnqueuesNotificationPerStop(t *testing.T) {
	s := newTestServer(t)
	v, d := seedFleet(t, s)
	seedRequests(t, s, "2026-09-02", 2)

	subBody := model.SubscriptionRequest{
		URL:    "https://example.invalid/hook",
		Events: []string{notify.EventCollectionScheduled},
		Secret: "shh",
	}
	rr := doJSON(t, s.SubscriptionsHandler, http.MethodPost, "/v1/subscriptions", subBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sub: %d", rr.Code)
	}

	a := optimizeAndCommit(t, s, v, d, "2026-09-02")

	// One delivery per committed stop, addressed by request.
	due, err := s.Store.FetchDueNotifications(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch due: %v", err)
	}
	if len(due) != len(a.Stops) {
		t.Fatalf("deliveries = %d, want %d", len(due), len(a.Stops))
	}
	wantRequests := map[string]string{}
	for _, stop := range a.Stops {
		wantRequests[stop.RequestID] = stop.EstimatedArrival
	}
	for _, del := range due {
		if del.EventType != notify.EventCollectionScheduled {
			t.Fatalf("event type = %q", del.EventType)
		}
		var env struct {
			Type string `json:"type"`
			Data struct {
				RequestID        string `json:"requestId"`
				EstimatedArrival string `json:"estimatedArrival"`
				DriverName       string `json:"driverName"`
				VehicleInfo      string `json:"vehicleInfo"`
			} `json:"data"`
		}
		if err := json.Unmarshal(del.Payload, &env); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		arrival, ok := wantRequests[env.Data.RequestID]
		if !ok {
			t.Fatalf("payload for unknown request %q", env.Data.RequestID)
		}
		if env.Data.EstimatedArrival != arrival {
			t.Fatalf("arrival = %q, want %q", env.Data.EstimatedArrival, arrival)
		}
		if env.Data.DriverName != "Hari" || env.Data.VehicleInfo != "BA-1-PA-100" {
			t.Fatalf("payload = %+v", env.Data)
		}
		delete(wantRequests, env.Data.RequestID)
	}
}

func TestSuggestionsHandler(t *testing.T) {
	s := newTestServer(t)
	v, _ := seedFleet(t, s)
	seedRequests(t, s, "2026-09-10", 9)
	seedRequests(t, s, "2026-09-11", 12)

	url := fmt.Sprintf("/v1/routes/suggestions/%s?dates=2026-09-10,2026-09-11,2026-09-12", v.ID)
	rr := httptest.NewRecorder()
	s.SuggestionsHandler(rr, httptest.NewRequest(http.MethodGet, url, nil))
	if rr.Code != 200 {
		t.Fatalf("suggestions: %d %s", rr.Code, rr.Body.String())
	}
	var res struct {
		VehicleID string                `json:"vehicleId"`
		Items     []model.DaySuggestion `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(res.Items))
	}
	if res.Items[0].Workload != model.WorkloadLight || !res.Items[0].Recommended {
		t.Fatalf("day 1 = %+v", res.Items[0])
	}
	if res.Items[1].Workload != model.WorkloadMedium || !res.Items[1].Recommended {
		t.Fatalf("day 2 = %+v", res.Items[1])
	}
	if res.Items[2].RequestCount != 0 || res.Items[2].Recommended {
		t.Fatalf("day 3 = %+v", res.Items[2])
	}
}

func TestSuggestionsUnknownVehicle(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.SuggestionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/routes/suggestions/ghost", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown vehicle: %d", rr.Code)
	}
}

func TestVehicleLocationAndListing(t *testing.T) {
	s := newTestServer(t)
	v, _ := seedFleet(t, s)

	rr := doJSON(t, s.VehicleByIDHandler, http.MethodPost, "/v1/vehicles/"+v.ID+"/location",
		map[string]any{"lat": 27.71, "lng": 85.32})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("post location: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.DriverLocationsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/driver-locations", nil))
	if rr.Code != 200 {
		t.Fatalf("list locations: %d", rr.Code)
	}
	var res struct {
		Items []DriverLocation `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &res)
	if len(res.Items) != 1 || res.Items[0].VehicleID != v.ID {
		t.Fatalf("locations = %+v", res.Items)
	}

	rr = doJSON(t, s.VehicleByIDHandler, http.MethodPost, "/v1/vehicles/"+v.ID+"/location",
		map[string]any{"lat": 99.0, "lng": 0.0})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range location accepted: %d", rr.Code)
	}
}

// sseRecorder is a minimal ResponseWriter that implements http.Flusher
// and captures writes for SSE tests.
type sseRecorder struct {
	hdr  http.Header
	buf  bytes.Buffer
	code int
}

func (r *sseRecorder) Header() http.Header {
	if r.hdr == nil {
		r.hdr = http.Header{}
	}
	return r.hdr
}
func (r *sseRecorder) WriteHeader(c int)           { r.code = c }
func (r *sseRecorder) Write(p []byte) (int, error) { return r.buf.Write(p) }
func (r *sseRecorder) Flush()                      {}

func TestDispatchStreamSSE(t *testing.T) {
	s := newTestServer(t)
	v, _ := seedFleet(t, s)

	sseReq := httptest.NewRequest(http.MethodGet, "/v1/dispatch/stream?vehicleId="+v.ID, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sseReq = sseReq.WithContext(ctx)

	rec := &sseRecorder{}
	done := make(chan struct{})
	go func() {
		s.DispatchStreamHandler(rec, sseReq)
		close(done)
	}()

	// Give handler time to subscribe and send heartbeat
	time.Sleep(50 * time.Millisecond)
	s.Broker.Publish(v.ID, SSEEvent{Type: "assignment.created", Data: map[string]any{"vehicleId": v.ID}})

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if bytes.Contains(rec.buf.Bytes(), []byte("event: assignment.created")) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !bytes.Contains(rec.buf.Bytes(), []byte("event: assignment.created")) {
		t.Fatalf("SSE did not contain expected event. Body: %s", rec.buf.String())
	}
	cancel()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("handler did not exit after cancel")
	}
}

func TestSubscriptionsCRUD(t *testing.T) {
	s := newTestServer(t)
	rr := doJSON(t, s.SubscriptionsHandler, http.MethodPost, "/v1/subscriptions", model.SubscriptionRequest{
		URL: "https://example.invalid/hook", Events: []string{"assignment.created"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d", rr.Code)
	}
	var sub model.Subscription
	_ = json.Unmarshal(rr.Body.Bytes(), &sub)

	rr = doJSON(t, s.SubscriptionsHandler, http.MethodGet, "/v1/subscriptions", nil)
	if rr.Code != 200 {
		t.Fatalf("list: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}

	// Non-admin principals are rejected.
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil)
	req.Header.Set("X-Role", "viewer")
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("viewer allowed: %d", rr.Code)
	}
}
