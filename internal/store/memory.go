package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"wastedispatch/internal/model"
)

// Memory is the in-memory store used when no DATABASE_URL is set and
// in tests. A single mutex serializes commits, which gives CommitPlan
// its read-then-write atomicity for free.
type Memory struct {
	mu          sync.Mutex
	requests    map[string]model.PickupRequest
	requestIDs  []string // creation order
	vehicles    map[string]model.Vehicle
	vehicleIDs  []string
	drivers     map[string]model.Driver
	driverIDs   []string
	assignments map[string]model.Assignment
	assignIDs   []string
	subs        []model.Subscription
	deliveries  map[string]*memDelivery
	deliveryIDs []string
}

// memDelivery augments NotificationDelivery with scheduling state.
type memDelivery struct {
	NotificationDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
}

func NewMemory() *Memory {
	return &Memory{
		requests:    map[string]model.PickupRequest{},
		vehicles:    map[string]model.Vehicle{},
		drivers:     map[string]model.Driver{},
		assignments: map[string]model.Assignment{},
		deliveries:  map[string]*memDelivery{},
	}
}

func (m *Memory) CreateRequests(ctx context.Context, reqs []model.RequestIn) ([]model.PickupRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PickupRequest, 0, len(reqs))
	for _, in := range reqs {
		if err := in.Validate(); err != nil {
			return nil, err
		}
		r := model.PickupRequest{
			ID:         uuid.New().String(),
			CustomerID: in.CustomerID,
			Location:   *in.Location,
			Date:       in.Date,
			Items:      in.Items,
			Status:     model.RequestPending,
			Priority:   in.Priority,
		}
		m.requests[r.ID] = r
		m.requestIDs = append(m.requestIDs, r.ID)
		out = append(out, r)
	}
	return out, nil
}

func (m *Memory) GetRequest(ctx context.Context, id string) (model.PickupRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return model.PickupRequest{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRequests(ctx context.Context, date, status string, limit int) ([]model.PickupRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := []model.PickupRequest{}
	for _, id := range m.requestIDs {
		r := m.requests[id]
		if date != "" && r.Date != date {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) CandidateRequests(ctx context.Context, date string) ([]model.PickupRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.PickupRequest{}
	for _, id := range m.requestIDs {
		r := m.requests[id]
		if r.Date == date && committable(r.Status) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) CountCandidates(ctx context.Context, dates []string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, d := range dates {
		want[d] = true
	}
	out := map[string]int{}
	for _, r := range m.requests {
		if want[r.Date] && committable(r.Status) {
			out[r.Date]++
		}
	}
	return out, nil
}

func (m *Memory) CreateVehicle(ctx context.Context, in model.VehicleIn) (model.Vehicle, error) {
	if err := in.Validate(); err != nil {
		return model.Vehicle{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v := model.Vehicle{
		ID:         uuid.New().String(),
		Plate:      in.Plate,
		CapacityKg: in.CapacityKg,
		Categories: in.Categories,
		Status:     model.VehicleIdle,
	}
	m.vehicles[v.ID] = v
	m.vehicleIDs = append(m.vehicleIDs, v.ID)
	return v, nil
}

func (m *Memory) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return model.Vehicle{}, ErrNotFound
	}
	return v, nil
}

func (m *Memory) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Vehicle, 0, len(m.vehicleIDs))
	for _, id := range m.vehicleIDs {
		out = append(out, m.vehicles[id])
	}
	return out, nil
}

func (m *Memory) CreateDriver(ctx context.Context, in model.DriverIn) (model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := model.Driver{ID: uuid.New().String(), Name: in.Name, Phone: in.Phone, Status: model.DriverActive}
	m.drivers[d.ID] = d
	m.driverIDs = append(m.driverIDs, d.ID)
	return d, nil
}

func (m *Memory) GetDriver(ctx context.Context, id string) (model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return model.Driver{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) ListDrivers(ctx context.Context) ([]model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Driver, 0, len(m.driverIDs))
	for _, id := range m.driverIDs {
		out = append(out, m.drivers[id])
	}
	return out, nil
}

// CommitPlan claims every request in the plan for the vehicle/driver
// pair, all or nothing. The mutex spans the status re-read and the
// writes, so two commits racing over a shared request serialize and
// exactly one wins.
func (m *Memory) CommitPlan(ctx context.Context, plan model.RoutePlan, driverID string) (model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-validate every referenced request before touching anything.
	// Conflicts win over driver/vehicle availability so a replayed
	// plan always reports the stale requests.
	for _, stop := range plan.Stops {
		r, ok := m.requests[stop.RequestID]
		if !ok {
			return model.Assignment{}, &ConflictError{RequestID: stop.RequestID, Status: "missing"}
		}
		if !committable(r.Status) {
			return model.Assignment{}, &ConflictError{RequestID: stop.RequestID, Status: r.Status}
		}
	}
	drv, ok := m.drivers[driverID]
	if !ok || drv.Status != model.DriverActive {
		return model.Assignment{}, ErrDriverUnavailable
	}
	for _, a := range m.assignments {
		if a.DriverID == driverID && a.Date == plan.Date && a.Status != "completed" && a.Status != "cancelled" {
			return model.Assignment{}, ErrDriverUnavailable
		}
	}
	veh, ok := m.vehicles[plan.VehicleID]
	if !ok {
		return model.Assignment{}, ErrNotFound
	}
	if veh.Status != model.VehicleIdle {
		return model.Assignment{}, ErrVehicleUnavailable
	}

	a := model.Assignment{
		ID:        uuid.New().String(),
		VehicleID: plan.VehicleID,
		DriverID:  driverID,
		Date:      plan.Date,
		Status:    "assigned",
		Stats:     plan.Stats,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for i, stop := range plan.Stops {
		r := m.requests[stop.RequestID]
		r.Status = model.RequestAssigned
		m.requests[stop.RequestID] = r
		a.Stops = append(a.Stops, model.AssignmentStop{
			Seq:                i + 1,
			RequestID:          stop.RequestID,
			EstimatedArrival:   stop.EstimatedArrival,
			EstimatedDeparture: stop.EstimatedDeparture,
		})
	}
	veh.Status = model.VehicleAssigned
	veh.CurrentAssignment = a.ID
	m.vehicles[veh.ID] = veh
	drv.Status = model.DriverAssigned
	m.drivers[drv.ID] = drv
	m.assignments[a.ID] = a
	m.assignIDs = append(m.assignIDs, a.ID)
	return a, nil
}

func (m *Memory) GetAssignment(ctx context.Context, id string) (model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return model.Assignment{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) ListAssignments(ctx context.Context, date string, limit int) ([]model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := []model.Assignment{}
	for _, id := range m.assignIDs {
		a := m.assignments[id]
		if date != "" && a.Date != date {
			continue
		}
		out = append(out, a)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs = append(m.subs, s)
	return s, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Subscription(nil), m.subs...), nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		if s.ID != id {
			out = append(out, s)
		}
	}
	m.subs = out
	return nil
}

func (m *Memory) SubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) EnqueueNotification(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		NotificationDelivery: NotificationDelivery{
			ID: id, SubscriptionID: subscriptionID, EventType: eventType,
			URL: url, Secret: secret, Payload: payload, Status: "pending",
		},
		NextAttemptAt: time.Now(),
	}
	m.deliveryIDs = append(m.deliveryIDs, id)
	return id, nil
}

func (m *Memory) FetchDueNotifications(ctx context.Context, limit int) ([]NotificationDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []NotificationDelivery{}
	for _, id := range m.deliveryIDs {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			out = append(out, d.NotificationDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkNotificationDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
	} else {
		d.Status = "retry"
		d.LastError = lastError
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		} else {
			d.NextAttemptAt = time.Now().Add(time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailNotificationDelivery(ctx context.Context, id string, lastError string, responseCode, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.deliveries[id]; d != nil {
		d.Status = "failed"
		d.LastError = lastError
		d.ResponseCode = responseCode
		d.LatencyMs = latencyMs
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
