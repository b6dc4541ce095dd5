package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wastedispatch/internal/store"
)

// Event types emitted by the dispatch flow.
const (
	EventCollectionScheduled = "collection.scheduled"
	EventAssignmentCreated   = "assignment.created"
	EventRequestCreated      = "request.created"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit fans an event out to every matching subscription. Delivery is
// queued, not inline; the worker drains the queue.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) {
	subs, err := p.Store.SubscriptionsForEvent(ctx, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":   fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueNotification(ctx, s.ID, eventType, s.URL, s.Secret, body)
	}
}
