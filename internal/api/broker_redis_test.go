package api

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func newTestRedisBroker(t *testing.T) *RedisBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisBrokerWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestRedisBrokerPublishSubscribe(t *testing.T) {
	b := newTestRedisBroker(t)
	ch := b.Subscribe("veh1")

	b.Publish("veh1", SSEEvent{Type: "assignment.created", Data: map[string]any{"vehicleId": "veh1"}})

	select {
	case got := <-ch:
		if got.Type != "assignment.created" {
			t.Fatalf("got type %s", got.Type)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	b.Unsubscribe("veh1", ch)
}

func TestRedisBrokerPublishAfterUnsubscribe(t *testing.T) {
	b := newTestRedisBroker(t)
	ch := b.Subscribe("veh1")
	b.Unsubscribe("veh1", ch)

	// The subscriber is gone; later events for the vehicle must not
	// take down the publisher.
	b.Publish("veh1", SSEEvent{Type: "vehicle.location", Data: map[string]any{"lat": 27.7}})

	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // channel closed cleanly
			}
		case <-deadline:
			t.Fatal("channel not closed after unsubscribe")
		}
	}
}

func TestRedisBrokerDoubleUnsubscribe(t *testing.T) {
	b := newTestRedisBroker(t)
	ch := b.Subscribe("veh1")
	b.Unsubscribe("veh1", ch)
	b.Unsubscribe("veh1", ch) // second call must be a no-op
	b.Publish("veh1", SSEEvent{Type: "vehicle.location"})
}
