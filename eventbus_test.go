package lazystore

import (
	"testing"
)

// EventBus test events
type TestEvent struct {
	Value int
}

func TestEventBusSubscribeAndPublish(t *testing.T) {
	bus := &EventBus{}
	received := 0
	Subscribe(bus, func(e TestEvent) {
		received += e.Value
	})
	Subscribe(bus, func(e TestEvent) {
		received += e.Value * 2
	})
	Publish(bus, TestEvent{Value: 1})
	if received != 3 {
		t.Errorf("expected received 3, got %d", received)
	}
	Publish(bus, TestEvent{Value: 2})
	if received != 3+6 {
		t.Errorf("expected received 9, got %d", received)
	}
	if n := Subscribers[TestEvent](bus); n != 2 {
		t.Errorf("expected 2 subscribers, got %d", n)
	}
}

func TestEventBusMultipleTypes(t *testing.T) {
	bus := NewEventBus()
	received1 := 0
	var removed EntityID
	Subscribe(bus, func(e TestEvent) {
		received1 += e.Value
	})
	Subscribe(bus, func(e EntityRemoved) {
		removed = e.ID
	})
	Publish(bus, TestEvent{Value: 42})
	Publish(bus, EntityRemoved{ID: EntityID{Index: 3, Generation: 2}})
	if received1 != 42 {
		t.Errorf("expected received1 42, got %d", received1)
	}
	if removed != (EntityID{Index: 3, Generation: 2}) {
		t.Errorf("expected removed id 3:2, got %v", removed)
	}
}

func TestEventBusNoHandlers(t *testing.T) {
	bus := &EventBus{}
	// No panic expected
	Publish(bus, TestEvent{Value: 42})
	if n := Subscribers[TestEvent](bus); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
}

func TestEventBusManySubscribers(t *testing.T) {
	bus := &EventBus{}
	const numSubs = 100
	received := 0
	for i := 0; i < numSubs; i++ {
		Subscribe(bus, func(e TestEvent) {
			received += e.Value
		})
	}
	Publish(bus, TestEvent{Value: 1})
	if received != numSubs {
		t.Errorf("expected %d, got %d", numSubs, received)
	}
}
