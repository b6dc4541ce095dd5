package api

import (
	"sync"
)

type SSEEvent struct {
	Type string
	Data map[string]any
}

type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{} // vehicleId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(vehicleID string) chan SSEEvent {
	ch := make(chan SSEEvent, 8)
	b.mu.Lock()
	if b.subs[vehicleID] == nil {
		b.subs[vehicleID] = map[chan SSEEvent]struct{}{}
	}
	b.subs[vehicleID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(vehicleID string, ch chan SSEEvent) {
	b.mu.Lock()
	if m := b.subs[vehicleID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, vehicleID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(vehicleID string, evt SSEEvent) {
	b.mu.Lock()
	m := b.subs[vehicleID]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
