package lazystore

import (
	"testing"
)

func BenchmarkEventBusPublishNoHandlers(b *testing.B) {
	bus := &EventBus{}
	event := EntityInserted{ID: EntityID{Index: 1, Generation: 1}}
	b.ReportAllocs()
	for b.Loop() {
		Publish(bus, event)
	}
}

func BenchmarkEventBusPublishOneHandler(b *testing.B) {
	bus := &EventBus{}
	count := 0
	Subscribe(bus, func(e EntityInserted) { count++ })
	event := EntityInserted{ID: EntityID{Index: 1, Generation: 1}}
	b.ReportAllocs()
	for b.Loop() {
		Publish(bus, event)
	}
}

func BenchmarkEventBusPublishManyHandlers(b *testing.B) {
	bus := &EventBus{}
	count := 0
	for range 16 {
		Subscribe(bus, func(e ComponentAdded) { count++ })
	}
	event := ComponentAdded{ID: EntityID{Index: 1, Generation: 1}, Name: "Position"}
	b.ReportAllocs()
	for b.Loop() {
		Publish(bus, event)
	}
}

func BenchmarkStoreInsertWithEvents(b *testing.B) {
	k := newUnitKind()
	bus := NewEventBus()
	s := New(k.schema, WithEvents(bus), WithIndex(k.pos, IndexDense))
	Subscribe(bus, func(EntityInserted) {})
	u := unit("u", k.pos.Value(Position{}))
	b.ReportAllocs()
	for b.Loop() {
		s.Remove(s.Insert(u))
	}
}
