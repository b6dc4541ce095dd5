package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	vid := "veh1"
	ch := b.Subscribe(vid)

	evt := SSEEvent{Type: "vehicle.location", Data: map[string]any{"lat": 27.7}}
	b.Publish(vid, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["lat"].(float64) != 27.7 {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(vid, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerIsolatesVehicles(t *testing.T) {
	b := NewBroker()
	ch1 := b.Subscribe("veh1")
	ch2 := b.Subscribe("veh2")
	defer b.Unsubscribe("veh1", ch1)
	defer b.Unsubscribe("veh2", ch2)

	b.Publish("veh1", SSEEvent{Type: "assignment.created"})

	select {
	case <-ch1:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("veh1 subscriber missed its event")
	}
	select {
	case evt := <-ch2:
		t.Fatalf("veh2 subscriber received veh1 event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
