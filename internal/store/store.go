// Package store defines the persistence interface for requests,
// vehicles, drivers, and committed assignments, with in-memory and
// Postgres implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wastedispatch/internal/model"
)

// Store is the persistence interface used by the API server.
//
// CommitPlan is the only operation that mutates shared dispatch state
// and must be atomic: the re-read of request statuses and the writes
// claiming them are indivisible with respect to concurrent commits
// touching the same requests.
type Store interface {
	// Pickup requests
	CreateRequests(ctx context.Context, reqs []model.RequestIn) ([]model.PickupRequest, error)
	GetRequest(ctx context.Context, id string) (model.PickupRequest, error)
	ListRequests(ctx context.Context, date, status string, limit int) ([]model.PickupRequest, error)
	// CandidateRequests returns requests with status pending or
	// scheduled for the date, in creation order.
	CandidateRequests(ctx context.Context, date string) ([]model.PickupRequest, error)
	CountCandidates(ctx context.Context, dates []string) (map[string]int, error)

	// Vehicles
	CreateVehicle(ctx context.Context, in model.VehicleIn) (model.Vehicle, error)
	GetVehicle(ctx context.Context, id string) (model.Vehicle, error)
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)

	// Drivers
	CreateDriver(ctx context.Context, in model.DriverIn) (model.Driver, error)
	GetDriver(ctx context.Context, id string) (model.Driver, error)
	ListDrivers(ctx context.Context) ([]model.Driver, error)

	// Dispatch commit
	CommitPlan(ctx context.Context, plan model.RoutePlan, driverID string) (model.Assignment, error)

	// Assignments
	GetAssignment(ctx context.Context, id string) (model.Assignment, error)
	ListAssignments(ctx context.Context, date string, limit int) ([]model.Assignment, error)

	// Notification subscriptions and delivery queue
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
	SubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)

	EnqueueNotification(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueNotifications(ctx context.Context, limit int) ([]NotificationDelivery, error)
	MarkNotificationDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error
	FailNotificationDelivery(ctx context.Context, id string, lastError string, responseCode, latencyMs int) error

	Ping(ctx context.Context) error
}

// NotificationDelivery is one queued outbound notification.
type NotificationDelivery struct {
	ID             string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

var (
	ErrNotFound = errors.New("not found")
	// ErrRequestTaken: a request in the plan was claimed, cancelled,
	// or completed since the plan was computed. The whole commit is
	// rolled back; callers recompute and retry.
	ErrRequestTaken = errors.New("request no longer available")
	// ErrDriverUnavailable: commit-time driver precondition failed.
	ErrDriverUnavailable = errors.New("driver unavailable")
	// ErrVehicleUnavailable: vehicle is not idle and not reserved for
	// this plan.
	ErrVehicleUnavailable = errors.New("vehicle unavailable")
)

// ConflictError identifies the specific request that made a commit
// fail re-validation. errors.Is(err, ErrRequestTaken) holds.
type ConflictError struct {
	RequestID string
	Status    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("request %s no longer available (status %s)", e.RequestID, e.Status)
}

func (e *ConflictError) Is(target error) bool { return target == ErrRequestTaken }

// committable reports whether a request status still allows claiming.
func committable(status string) bool {
	return status == model.RequestPending || status == model.RequestScheduled
}
