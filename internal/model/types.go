package model

import "fmt"

// Pickup request lifecycle.
const (
	RequestPending    = "pending"
	RequestScheduled  = "scheduled"
	RequestAssigned   = "assigned"
	RequestInProgress = "in_progress"
	RequestCompleted  = "completed"
	RequestCancelled  = "cancelled"
)

// Vehicle statuses.
const (
	VehicleIdle        = "idle"
	VehicleAssigned    = "assigned"
	VehicleActive      = "active"
	VehicleMaintenance = "maintenance"
)

// Driver statuses.
const (
	DriverActive   = "active"
	DriverAssigned = "assigned"
	DriverInactive = "inactive"
)

// Workload classifications produced by the day advisor.
const (
	WorkloadLight  = "light"
	WorkloadMedium = "medium"
	WorkloadHeavy  = "heavy"
)

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is within WGS84 bounds.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// WasteItem is one declared item on a pickup request.
type WasteItem struct {
	Category string  `json:"category"`
	WeightKg float64 `json:"weightKg"`
}

// PickupRequest is a customer pickup, owned by the request store.
// The planning pipeline treats it as read-only input; only a commit
// moves its status to assigned.
type PickupRequest struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customerId,omitempty"`
	Location   Coordinate  `json:"location"`
	Date       string      `json:"date"` // YYYY-MM-DD
	Items      []WasteItem `json:"items"`
	Status     string      `json:"status"`
	Priority   int         `json:"priority,omitempty"`
}

// TotalWeightKg sums the estimated weights of all declared items.
func (r PickupRequest) TotalWeightKg() float64 {
	total := 0.0
	for _, it := range r.Items {
		total += it.WeightKg
	}
	return total
}

// Vehicle is a collection truck with a weight capacity and the waste
// categories it may legally carry.
type Vehicle struct {
	ID                string   `json:"id"`
	Plate             string   `json:"plate,omitempty"`
	CapacityKg        float64  `json:"capacityKg"`
	Categories        []string `json:"categories"`
	Status            string   `json:"status"`
	CurrentAssignment string   `json:"currentAssignment,omitempty"`
}

// Accepts reports whether the vehicle carries the given waste category.
func (v Vehicle) Accepts(category string) bool {
	for _, c := range v.Categories {
		if c == category {
			return true
		}
	}
	return false
}

type Driver struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Status string `json:"status"`
}

// RouteStop is one visit in a computed plan. DistanceKm is measured
// from the previous stop, or from the depot for the first stop.
type RouteStop struct {
	RequestID          string     `json:"requestId"`
	Location           Coordinate `json:"location"`
	DistanceKm         float64    `json:"distanceKm"`
	TravelTimeMin      int        `json:"travelTimeMin"`
	LoadKg             float64    `json:"loadKg"`
	EstimatedArrival   string     `json:"estimatedArrival,omitempty"`
	EstimatedDeparture string     `json:"estimatedDeparture,omitempty"`
}

// RouteStats are derived totals for a plan's stops. They are
// recomputed from the stops, never edited directly.
type RouteStats struct {
	TotalDistanceKm        float64 `json:"totalDistanceKm"`
	TotalTravelTimeMin     int     `json:"totalTravelTimeMin"`
	TotalCollectionTimeMin int     `json:"totalCollectionTimeMin"`
	TotalTimeMin           int     `json:"totalTimeMin"`
	StopCount              int     `json:"stopCount"`
	EstimatedFuelCost      float64 `json:"estimatedFuelCost"`
	CO2EmissionsKg         float64 `json:"co2EmissionsKg"`
}

// RoutePlan is the ephemeral result of one optimization run. It is
// not persisted; committing it produces an Assignment.
type RoutePlan struct {
	VehicleID   string      `json:"vehicleId"`
	Date        string      `json:"date"`
	Depot       Coordinate  `json:"depot"`
	Stops       []RouteStop `json:"stops"`
	Stats       RouteStats  `json:"stats"`
	FilteredOut int         `json:"requestsFilteredOut"`
}

// RequestIDs returns the plan's stop request ids in visiting order.
func (p RoutePlan) RequestIDs() []string {
	ids := make([]string, 0, len(p.Stops))
	for _, s := range p.Stops {
		ids = append(ids, s.RequestID)
	}
	return ids
}

// Assignment is the durable result of a committed plan.
type Assignment struct {
	ID        string           `json:"id"`
	VehicleID string           `json:"vehicleId"`
	DriverID  string           `json:"driverId"`
	Date      string           `json:"date"`
	Status    string           `json:"status"`
	Stops     []AssignmentStop `json:"stops"`
	Stats     RouteStats       `json:"stats"`
	CreatedAt string           `json:"createdAt"`
}

type AssignmentStop struct {
	Seq                int    `json:"seq"`
	RequestID          string `json:"requestId"`
	EstimatedArrival   string `json:"estimatedArrival"`
	EstimatedDeparture string `json:"estimatedDeparture"`
}

// OptimizeRequest is the input to POST /v1/routes/optimize.
type OptimizeRequest struct {
	VehicleID string      `json:"vehicleId"`
	Date      string      `json:"date"`
	Depot     *Coordinate `json:"depot"`
}

// CommitRequest is the input to POST /v1/routes/commit.
type CommitRequest struct {
	Plan     RoutePlan `json:"plan"`
	DriverID string    `json:"driverId"`
}

// DaySuggestion classifies one candidate date for a vehicle.
type DaySuggestion struct {
	Date         string `json:"date"`
	RequestCount int    `json:"requestCount"`
	Workload     string `json:"workload"`
	Recommended  bool   `json:"recommended"`
}

// RequestIn is the boundary shape for creating pickup requests.
type RequestIn struct {
	CustomerID string      `json:"customerId,omitempty"`
	Location   *Coordinate `json:"location"`
	Date       string      `json:"date"`
	Items      []WasteItem `json:"items"`
	Priority   int         `json:"priority,omitempty"`
}

// Validate rejects malformed intake before it reaches the store.
func (in RequestIn) Validate() error {
	if in.Location == nil {
		return fmt.Errorf("location is required")
	}
	if !in.Location.Valid() {
		return fmt.Errorf("location out of range: lat=%v lng=%v", in.Location.Lat, in.Location.Lng)
	}
	if in.Date == "" {
		return fmt.Errorf("date is required")
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("at least one waste item is required")
	}
	for i, it := range in.Items {
		if it.Category == "" {
			return fmt.Errorf("items[%d]: category is required", i)
		}
		if it.WeightKg <= 0 {
			return fmt.Errorf("items[%d]: weightKg must be > 0", i)
		}
	}
	return nil
}

// VehicleIn is the boundary shape for registering vehicles.
type VehicleIn struct {
	Plate      string   `json:"plate,omitempty"`
	CapacityKg float64  `json:"capacityKg"`
	Categories []string `json:"categories"`
}

func (in VehicleIn) Validate() error {
	if in.CapacityKg <= 0 {
		return fmt.Errorf("capacityKg must be > 0")
	}
	if len(in.Categories) == 0 {
		return fmt.Errorf("at least one accepted category is required")
	}
	return nil
}

// DriverIn is the boundary shape for registering drivers.
type DriverIn struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// SubscriptionRequest registers a notification endpoint.
type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}
