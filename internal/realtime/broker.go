// Package realtime delivers per-couple change notifications so a
// partner's device converges quickly. Consumers must not depend on it for
// correctness; polling the backend is the fallback of record.
package realtime

import (
	"context"
	"sync"
	"time"
)

// Change kinds published on a couple's channel.
const (
	KindCoupleChanged = "couple"
	KindEventsChanged = "events"
	KindTodosChanged  = "todos"
)

// Event describes a change to a couple's shared state.
type Event struct {
	CoupleID string    `json:"coupleId"`
	Kind     string    `json:"kind"`
	At       time.Time `json:"at"`
}

// Broker publishes and subscribes to couple change events.
type Broker interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, coupleID string) (<-chan Event, func(), error)
}

// NewMemoryBroker returns an in-process Broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[int]chan Event)}
}

// MemoryBroker implements Broker for single-process deployments and tests.
type MemoryBroker struct {
	mu      sync.Mutex
	subs    map[string]map[int]chan Event
	nextSub int
}

// Publish delivers the event to every subscriber of its couple.
// Delivery is best-effort: a full subscriber buffer drops the event.
func (b *MemoryBroker) Publish(_ context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[event.CoupleID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a listener for one couple's events.
func (b *MemoryBroker) Subscribe(_ context.Context, coupleID string) (<-chan Event, func(), error) {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	ch := make(chan Event, 16)
	if b.subs[coupleID] == nil {
		b.subs[coupleID] = make(map[int]chan Event)
	}
	b.subs[coupleID][id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if subs, ok := b.subs[coupleID]; ok {
			if sub, ok := subs[id]; ok {
				delete(subs, id)
				close(sub)
			}
			if len(subs) == 0 {
				delete(b.subs, coupleID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel, nil
}

var _ Broker = (*MemoryBroker)(nil)
