package lazystore

import "reflect"

// MaxEventTypes defines the maximum number of unique event types that can be
// registered in the EventBus. This value is fixed at 256.
const MaxEventTypes = 256

// EntityInserted is published after Insert or a Builder stored a record.
type EntityInserted struct {
	ID EntityID
}

// EntityRemoved is published after a record was removed by Remove, Retain
// or Query.RemoveAll.
type EntityRemoved struct {
	ID EntityID
}

// ComponentAdded is published after AddComponent, or a ChangeComponent that
// populated or replaced the component. Replaced is true when the record
// already held the component.
type ComponentAdded struct {
	Name      string
	ID        EntityID
	Component ComponentID
	Replaced  bool
}

// ComponentRemoved is published after RemoveComponent or ChangeComponent
// emptied a component the record held.
type ComponentRemoved struct {
	Name      string
	ID        EntityID
	Component ComponentID
}

// EventBus is a type-keyed, synchronous event bus. A store configured with
// WithEvents publishes its lifecycle events on it after each mutation has
// completed, so handlers observe a consistent store. Handlers run on the
// caller's goroutine, in subscription order.
//
// One bus may be shared by several stores; the events carry no store
// reference, so share a bus only between stores whose ids cannot be
// confused.
type EventBus struct {
	eventTypeMap    map[reflect.Type]uint8
	handlers        [MaxEventTypes][]any
	nextEventTypeID int
}

// NewEventBus returns an empty bus. The zero EventBus is also ready to use.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers handler for events of type T. Handlers for one type
// are called in the order they were subscribed.
//
// Parameters:
//   - bus: The EventBus to subscribe to.
//   - handler: A function taking a single argument of type `T`.
func Subscribe[T any](bus *EventBus, handler func(T)) {
	id := bus.getEventTypeID(reflect.TypeFor[T]())
	if cap(bus.handlers[id]) == 0 {
		bus.handlers[id] = make([]any, 0, 4)
	}
	bus.handlers[id] = append(bus.handlers[id], handler)
}

// Publish calls every handler subscribed to T with event, synchronously.
// Publishing a type nobody subscribed to does nothing and does not allocate.
//
// Parameters:
//   - bus: The EventBus to publish to.
//   - event: The event value passed to each handler.
func Publish[T any](bus *EventBus, event T) {
	if id, ok := bus.eventTypeMap[reflect.TypeFor[T]()]; ok {
		for _, h := range bus.handlers[id] {
			h.(func(T))(event)
		}
	}
}

// Subscribers returns the number of handlers subscribed to T.
func Subscribers[T any](bus *EventBus) int {
	if id, ok := bus.eventTypeMap[reflect.TypeFor[T]()]; ok {
		return len(bus.handlers[id])
	}
	return 0
}

func (bus *EventBus) getEventTypeID(t reflect.Type) uint8 {
	if bus.eventTypeMap == nil {
		bus.eventTypeMap = make(map[reflect.Type]uint8)
	}
	if id, ok := bus.eventTypeMap[t]; ok {
		return id
	}
	if bus.nextEventTypeID >= MaxEventTypes {
		panic("lazystore: too many event types")
	}
	id := uint8(bus.nextEventTypeID)
	bus.nextEventTypeID++
	bus.eventTypeMap[t] = id
	return id
}
