package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"wastedispatch/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate creates the schema if it does not exist. Dev helper; real
// deployments run migrations out of band.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS pickup_requests (
    id            uuid PRIMARY KEY,
    customer_id   text,
    lat           double precision NOT NULL,
    lng           double precision NOT NULL,
    pickup_date   date NOT NULL,
    status        text NOT NULL DEFAULT 'pending',
    priority      int NOT NULL DEFAULT 0,
    assigned_vehicle uuid,
    assigned_driver  uuid,
    eta_arrival   timestamptz,
    eta_departure timestamptz,
    created_at    timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_requests_date_status ON pickup_requests (pickup_date, status);

CREATE TABLE IF NOT EXISTS waste_items (
    id         uuid PRIMARY KEY,
    request_id uuid NOT NULL REFERENCES pickup_requests (id) ON DELETE CASCADE,
    category   text NOT NULL,
    weight_kg  double precision NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_waste_items_request ON waste_items (request_id);

CREATE TABLE IF NOT EXISTS vehicles (
    id          uuid PRIMARY KEY,
    plate       text,
    capacity_kg double precision NOT NULL,
    categories  text[] NOT NULL,
    status      text NOT NULL DEFAULT 'idle',
    current_assignment uuid,
    created_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS drivers (
    id         uuid PRIMARY KEY,
    name       text,
    phone      text,
    status     text NOT NULL DEFAULT 'active',
    created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS assignments (
    id          uuid PRIMARY KEY,
    vehicle_id  uuid NOT NULL REFERENCES vehicles (id),
    driver_id   uuid NOT NULL REFERENCES drivers (id),
    plan_date   date NOT NULL,
    status      text NOT NULL DEFAULT 'assigned',
    total_distance_km   double precision NOT NULL DEFAULT 0,
    total_travel_min    int NOT NULL DEFAULT 0,
    total_service_min   int NOT NULL DEFAULT 0,
    total_min           int NOT NULL DEFAULT 0,
    stop_count          int NOT NULL DEFAULT 0,
    fuel_cost           double precision NOT NULL DEFAULT 0,
    co2_kg              double precision NOT NULL DEFAULT 0,
    created_at  timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_assignments_date ON assignments (plan_date);

CREATE TABLE IF NOT EXISTS assignment_stops (
    assignment_id uuid NOT NULL REFERENCES assignments (id) ON DELETE CASCADE,
    seq           int NOT NULL,
    request_id    uuid NOT NULL REFERENCES pickup_requests (id),
    eta_arrival   timestamptz,
    eta_departure timestamptz,
    PRIMARY KEY (assignment_id, seq)
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id     uuid PRIMARY KEY,
    url    text NOT NULL,
    events text[] NOT NULL,
    secret text NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS notification_deliveries (
    id              uuid PRIMARY KEY,
    subscription_id uuid,
    event_type      text NOT NULL,
    url             text NOT NULL,
    secret          text NOT NULL DEFAULT '',
    payload         bytea NOT NULL,
    status          text NOT NULL DEFAULT 'pending',
    attempts        int NOT NULL DEFAULT 0,
    next_attempt_at timestamptz NOT NULL DEFAULT now(),
    last_error      text,
    response_code   int,
    latency_ms      int
);
CREATE INDEX IF NOT EXISTS idx_deliveries_due ON notification_deliveries (status, next_attempt_at);
`

func (p *Postgres) CreateRequests(ctx context.Context, reqs []model.RequestIn) ([]model.PickupRequest, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]model.PickupRequest, 0, len(reqs))
	for _, in := range reqs {
		if err := in.Validate(); err != nil {
			return nil, err
		}
		id := uuid.New()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pickup_requests (id, customer_id, lat, lng, pickup_date, status, priority) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			id, nullIfEmpty(in.CustomerID), in.Location.Lat, in.Location.Lng, in.Date, model.RequestPending, in.Priority)
		if err != nil {
			return nil, err
		}
		for _, it := range in.Items {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO waste_items (id, request_id, category, weight_kg) VALUES ($1,$2,$3,$4)`,
				uuid.New(), id, it.Category, it.WeightKg)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, model.PickupRequest{
			ID:         id.String(),
			CustomerID: in.CustomerID,
			Location:   *in.Location,
			Date:       in.Date,
			Items:      in.Items,
			Status:     model.RequestPending,
			Priority:   in.Priority,
		})
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

const requestCols = `id::text, customer_id, lat, lng, to_char(pickup_date, 'YYYY-MM-DD'), status, priority`

func (p *Postgres) GetRequest(ctx context.Context, id string) (model.PickupRequest, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+requestCols+` FROM pickup_requests WHERE id=$1`, id)
	r, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PickupRequest{}, ErrNotFound
		}
		return model.PickupRequest{}, err
	}
	if err := p.attachItems(ctx, []*model.PickupRequest{&r}); err != nil {
		return model.PickupRequest{}, err
	}
	return r, nil
}

func (p *Postgres) ListRequests(ctx context.Context, date, status string, limit int) ([]model.PickupRequest, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + requestCols + ` FROM pickup_requests WHERE 1=1`
	args := []any{}
	if date != "" {
		args = append(args, date)
		q += fmt.Sprintf(` AND pickup_date=$%d`, len(args))
	}
	if status != "" {
		args = append(args, status)
		q += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY created_at LIMIT $%d`, len(args))
	return p.queryRequests(ctx, q, args...)
}

func (p *Postgres) CandidateRequests(ctx context.Context, date string) ([]model.PickupRequest, error) {
	return p.queryRequests(ctx,
		`SELECT `+requestCols+` FROM pickup_requests WHERE pickup_date=$1 AND status IN ($2,$3) ORDER BY created_at`,
		date, model.RequestPending, model.RequestScheduled)
}

func (p *Postgres) CountCandidates(ctx context.Context, dates []string) (map[string]int, error) {
	out := map[string]int{}
	if len(dates) == 0 {
		return out, nil
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT to_char(pickup_date,'YYYY-MM-DD'), count(*) FROM pickup_requests
		 WHERE pickup_date = ANY($1::date[]) AND status IN ($2,$3) GROUP BY pickup_date`,
		textArray(dates), model.RequestPending, model.RequestScheduled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var d string
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, err
		}
		out[d] = n
	}
	return out, rows.Err()
}

func (p *Postgres) queryRequests(ctx context.Context, q string, args ...any) ([]model.PickupRequest, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PickupRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	refs := make([]*model.PickupRequest, len(out))
	for i := range out {
		refs[i] = &out[i]
	}
	if err := p.attachItems(ctx, refs); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRequest(row rowScanner) (model.PickupRequest, error) {
	var r model.PickupRequest
	var cust sql.NullString
	if err := row.Scan(&r.ID, &cust, &r.Location.Lat, &r.Location.Lng, &r.Date, &r.Status, &r.Priority); err != nil {
		return r, err
	}
	r.CustomerID = cust.String
	return r, nil
}

func (p *Postgres) attachItems(ctx context.Context, reqs []*model.PickupRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	ids := make([]string, len(reqs))
	byID := map[string]*model.PickupRequest{}
	for i, r := range reqs {
		ids[i] = r.ID
		byID[r.ID] = r
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT request_id::text, category, weight_kg FROM waste_items WHERE request_id = ANY($1::uuid[]) ORDER BY id`,
		textArray(ids))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var rid string
		var it model.WasteItem
		if err := rows.Scan(&rid, &it.Category, &it.WeightKg); err != nil {
			return err
		}
		if r := byID[rid]; r != nil {
			r.Items = append(r.Items, it)
		}
	}
	return rows.Err()
}

func (p *Postgres) CreateVehicle(ctx context.Context, in model.VehicleIn) (model.Vehicle, error) {
	if err := in.Validate(); err != nil {
		return model.Vehicle{}, err
	}
	id := uuid.New()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO vehicles (id, plate, capacity_kg, categories, status) VALUES ($1,$2,$3,$4::text[],$5)`,
		id, nullIfEmpty(in.Plate), in.CapacityKg, textArray(in.Categories), model.VehicleIdle)
	if err != nil {
		return model.Vehicle{}, err
	}
	return model.Vehicle{ID: id.String(), Plate: in.Plate, CapacityKg: in.CapacityKg, Categories: in.Categories, Status: model.VehicleIdle}, nil
}

func (p *Postgres) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id::text, plate, capacity_kg, array_to_string(categories, ','), status, current_assignment::text FROM vehicles WHERE id=$1`, id)
	return scanVehicle(row)
}

func (p *Postgres) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, plate, capacity_kg, array_to_string(categories, ','), status, current_assignment::text FROM vehicles ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Vehicle{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVehicle(row rowScanner) (model.Vehicle, error) {
	var v model.Vehicle
	var plate, cats, cur sql.NullString
	if err := row.Scan(&v.ID, &plate, &v.CapacityKg, &cats, &v.Status, &cur); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return v, ErrNotFound
		}
		return v, err
	}
	v.Plate = plate.String
	if cats.String != "" {
		v.Categories = strings.Split(cats.String, ",")
	}
	v.CurrentAssignment = cur.String
	return v, nil
}

func (p *Postgres) CreateDriver(ctx context.Context, in model.DriverIn) (model.Driver, error) {
	id := uuid.New()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO drivers (id, name, phone, status) VALUES ($1,$2,$3,$4)`,
		id, nullIfEmpty(in.Name), nullIfEmpty(in.Phone), model.DriverActive)
	if err != nil {
		return model.Driver{}, err
	}
	return model.Driver{ID: id.String(), Name: in.Name, Phone: in.Phone, Status: model.DriverActive}, nil
}

func (p *Postgres) GetDriver(ctx context.Context, id string) (model.Driver, error) {
	var d model.Driver
	var name, phone sql.NullString
	err := p.db.QueryRowContext(ctx, `SELECT id::text, name, phone, status FROM drivers WHERE id=$1`, id).
		Scan(&d.ID, &name, &phone, &d.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.Name = name.String
	d.Phone = phone.String
	return d, nil
}

func (p *Postgres) ListDrivers(ctx context.Context) ([]model.Driver, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, name, phone, status FROM drivers ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Driver{}
	for rows.Next() {
		var d model.Driver
		var name, phone sql.NullString
		if err := rows.Scan(&d.ID, &name, &phone, &d.Status); err != nil {
			return nil, err
		}
		d.Name = name.String
		d.Phone = phone.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// CommitPlan runs the claim inside one transaction. The plan's request
// rows are locked with FOR UPDATE before the status re-check, so two
// commits over a shared request serialize on the row lock and the
// loser sees the winner's status and aborts. No table-level lock.
func (p *Postgres) CommitPlan(ctx context.Context, plan model.RoutePlan, driverID string) (model.Assignment, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Assignment{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock and re-read every referenced request first. Conflicts win
	// over driver/vehicle availability so a replayed plan always
	// reports the stale requests.
	ids := plan.RequestIDs()
	rows, err := tx.QueryContext(ctx,
		`SELECT id::text, status FROM pickup_requests WHERE id = ANY($1::uuid[]) FOR UPDATE`, textArray(ids))
	if err != nil {
		return model.Assignment{}, err
	}
	statuses := map[string]string{}
	for rows.Next() {
		var id, st string
		if err := rows.Scan(&id, &st); err != nil {
			rows.Close()
			return model.Assignment{}, err
		}
		statuses[id] = st
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.Assignment{}, err
	}
	for _, id := range ids {
		st, ok := statuses[id]
		if !ok {
			return model.Assignment{}, &ConflictError{RequestID: id, Status: "missing"}
		}
		if !committable(st) {
			return model.Assignment{}, &ConflictError{RequestID: id, Status: st}
		}
	}

	var drvStatus string
	err = tx.QueryRowContext(ctx, `SELECT status FROM drivers WHERE id=$1 FOR UPDATE`, driverID).Scan(&drvStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Assignment{}, ErrDriverUnavailable
	}
	if err != nil {
		return model.Assignment{}, err
	}
	if drvStatus != model.DriverActive {
		return model.Assignment{}, ErrDriverUnavailable
	}
	var overlapping int
	err = tx.QueryRowContext(ctx,
		`SELECT count(*) FROM assignments WHERE driver_id=$1 AND plan_date=$2 AND status NOT IN ('completed','cancelled')`,
		driverID, plan.Date).Scan(&overlapping)
	if err != nil {
		return model.Assignment{}, err
	}
	if overlapping > 0 {
		return model.Assignment{}, ErrDriverUnavailable
	}

	var vehStatus string
	err = tx.QueryRowContext(ctx, `SELECT status FROM vehicles WHERE id=$1 FOR UPDATE`, plan.VehicleID).Scan(&vehStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Assignment{}, ErrNotFound
	}
	if err != nil {
		return model.Assignment{}, err
	}
	if vehStatus != model.VehicleIdle {
		return model.Assignment{}, ErrVehicleUnavailable
	}

	aid := uuid.New()
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO assignments (id, vehicle_id, driver_id, plan_date, status, total_distance_km, total_travel_min, total_service_min, total_min, stop_count, fuel_cost, co2_kg, created_at)
		 VALUES ($1,$2,$3,$4,'assigned',$5,$6,$7,$8,$9,$10,$11,$12)`,
		aid, plan.VehicleID, driverID, plan.Date,
		plan.Stats.TotalDistanceKm, plan.Stats.TotalTravelTimeMin, plan.Stats.TotalCollectionTimeMin,
		plan.Stats.TotalTimeMin, plan.Stats.StopCount, plan.Stats.EstimatedFuelCost, plan.Stats.CO2EmissionsKg, now)
	if err != nil {
		return model.Assignment{}, err
	}

	a := model.Assignment{
		ID:        aid.String(),
		VehicleID: plan.VehicleID,
		DriverID:  driverID,
		Date:      plan.Date,
		Status:    "assigned",
		Stats:     plan.Stats,
		CreatedAt: now.Format(time.RFC3339),
	}
	for i, stop := range plan.Stops {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO assignment_stops (assignment_id, seq, request_id, eta_arrival, eta_departure) VALUES ($1,$2,$3,$4,$5)`,
			aid, i+1, stop.RequestID, nullIfEmpty(stop.EstimatedArrival), nullIfEmpty(stop.EstimatedDeparture))
		if err != nil {
			return model.Assignment{}, err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE pickup_requests SET status=$1, assigned_vehicle=$2, assigned_driver=$3, eta_arrival=$4, eta_departure=$5 WHERE id=$6`,
			model.RequestAssigned, plan.VehicleID, driverID,
			nullIfEmpty(stop.EstimatedArrival), nullIfEmpty(stop.EstimatedDeparture), stop.RequestID)
		if err != nil {
			return model.Assignment{}, err
		}
		a.Stops = append(a.Stops, model.AssignmentStop{
			Seq:                i + 1,
			RequestID:          stop.RequestID,
			EstimatedArrival:   stop.EstimatedArrival,
			EstimatedDeparture: stop.EstimatedDeparture,
		})
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE vehicles SET status=$1, current_assignment=$2 WHERE id=$3`,
		model.VehicleAssigned, aid, plan.VehicleID)
	if err != nil {
		return model.Assignment{}, err
	}
	_, err = tx.ExecContext(ctx, `UPDATE drivers SET status=$1 WHERE id=$2`, model.DriverAssigned, driverID)
	if err != nil {
		return model.Assignment{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.Assignment{}, err
	}
	return a, nil
}

const assignmentCols = `id::text, vehicle_id::text, driver_id::text, to_char(plan_date,'YYYY-MM-DD'), status,
	total_distance_km, total_travel_min, total_service_min, total_min, stop_count, fuel_cost, co2_kg, created_at`

func (p *Postgres) GetAssignment(ctx context.Context, id string) (model.Assignment, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id=$1`, id)
	a, err := scanAssignment(row)
	if err != nil {
		return model.Assignment{}, err
	}
	if err := p.attachStops(ctx, &a); err != nil {
		return model.Assignment{}, err
	}
	return a, nil
}

func (p *Postgres) ListAssignments(ctx context.Context, date string, limit int) ([]model.Assignment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + assignmentCols + ` FROM assignments`
	args := []any{}
	if date != "" {
		args = append(args, date)
		q += ` WHERE plan_date=$1`
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := p.attachStops(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanAssignment(row rowScanner) (model.Assignment, error) {
	var a model.Assignment
	var created time.Time
	err := row.Scan(&a.ID, &a.VehicleID, &a.DriverID, &a.Date, &a.Status,
		&a.Stats.TotalDistanceKm, &a.Stats.TotalTravelTimeMin, &a.Stats.TotalCollectionTimeMin,
		&a.Stats.TotalTimeMin, &a.Stats.StopCount, &a.Stats.EstimatedFuelCost, &a.Stats.CO2EmissionsKg, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.CreatedAt = created.UTC().Format(time.RFC3339)
	return a, nil
}

func (p *Postgres) attachStops(ctx context.Context, a *model.Assignment) error {
	rows, err := p.db.QueryContext(ctx,
		`SELECT seq, request_id::text, eta_arrival, eta_departure FROM assignment_stops WHERE assignment_id=$1 ORDER BY seq`, a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var s model.AssignmentStop
		var arr, dep sql.NullTime
		if err := rows.Scan(&s.Seq, &s.RequestID, &arr, &dep); err != nil {
			return err
		}
		if arr.Valid {
			s.EstimatedArrival = arr.Time.UTC().Format(time.RFC3339)
		}
		if dep.Valid {
			s.EstimatedDeparture = dep.Time.UTC().Format(time.RFC3339)
		}
		a.Stops = append(a.Stops, s)
	}
	return rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3::text[],$4)`,
		id, req.URL, textArray(req.Events), req.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id.String(), URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, array_to_string(events, ','), secret FROM subscriptions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var evs string
		if err := rows.Scan(&s.ID, &s.URL, &evs, &s.Secret); err != nil {
			return nil, err
		}
		if evs != "" {
			s.Events = strings.Split(evs, ",")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	return err
}

func (p *Postgres) SubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, url, array_to_string(events, ','), secret FROM subscriptions WHERE $1 = ANY(events)`, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var evs string
		if err := rows.Scan(&s.ID, &s.URL, &evs, &s.Secret); err != nil {
			return nil, err
		}
		if evs != "" {
			s.Events = strings.Split(evs, ",")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) EnqueueNotification(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO notification_deliveries (id, subscription_id, event_type, url, secret, payload) VALUES ($1,$2,$3,$4,$5,$6)`,
		id, nullIfEmpty(subscriptionID), eventType, url, secret, payload)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (p *Postgres) FetchDueNotifications(ctx context.Context, limit int) ([]NotificationDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, coalesce(subscription_id::text,''), event_type, url, secret, payload, status, attempts
		 FROM notification_deliveries
		 WHERE status IN ('pending','retry') AND next_attempt_at <= now()
		 ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []NotificationDelivery{}
	for rows.Next() {
		var d NotificationDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkNotificationDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx,
			`UPDATE notification_deliveries SET status='delivered', attempts=attempts+1, response_code=$1, latency_ms=$2 WHERE id=$3`,
			responseCode, latencyMs, id)
		return err
	}
	next := time.Now().Add(time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx,
		`UPDATE notification_deliveries SET status='retry', attempts=attempts+1, next_attempt_at=$1, last_error=$2, response_code=$3, latency_ms=$4 WHERE id=$5`,
		next, nullIfEmpty(lastError), responseCode, latencyMs, id)
	return err
}

func (p *Postgres) FailNotificationDelivery(ctx context.Context, id string, lastError string, responseCode, latencyMs int) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE notification_deliveries SET status='failed', last_error=$1, response_code=$2, latency_ms=$3 WHERE id=$4`,
		nullIfEmpty(lastError), responseCode, latencyMs, id)
	return err
}

// textArray renders a Postgres array literal for text[] parameters.
// Values are quoted so commas and spaces survive.
func textArray(vals []string) any {
	if len(vals) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range vals {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(strings.ReplaceAll(v, `\`, `\\`), `"`, `\"`))
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
