package lazystore

import (
	"bytes"

	gojson "github.com/goccy/go-json"
)

// Slot is an optional component value embedded in a record. A record kind
// declares one Slot field per component type it may hold:
//
//	type Unit struct {
//	    Name     string            // property, always present
//	    Position Slot[Position]    // component
//	    Velocity Slot[Velocity]    // component
//	}
//
// Changing presence through a Slot directly (Set, Take) on a record that is
// already stored bypasses index maintenance. Use AddComponent and
// RemoveComponent instead, or call Store.Resync afterwards.
type Slot[T any] struct {
	value   T
	present bool
}

// Present reports whether the slot holds a value.
func (s *Slot[T]) Present() bool {
	return s.present
}

// Get returns a pointer to the value, or nil if the slot is empty.
func (s *Slot[T]) Get() *T {
	if !s.present {
		return nil
	}
	return &s.value
}

// Set stores v, replacing any previous value.
func (s *Slot[T]) Set(v T) {
	s.value = v
	s.present = true
}

// Take empties the slot and returns the previous value, if any.
func (s *Slot[T]) Take() (T, bool) {
	v, ok := s.value, s.present
	var zero T
	s.value = zero
	s.present = false
	return v, ok
}

// MarshalJSON encodes an empty slot as null and a populated one as its value.
func (s Slot[T]) MarshalJSON() ([]byte, error) {
	if !s.present {
		return []byte("null"), nil
	}
	return gojson.Marshal(s.value)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Slot[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		s.value = zero
		s.present = false
		return nil
	}
	if err := gojson.Unmarshal(data, &s.value); err != nil {
		return err
	}
	s.present = true
	return nil
}

// ComponentType is the untyped view of a declared component, used wherever
// several component types of one record kind are passed together (queries,
// index maintenance). It is implemented only by Component.
type ComponentType[E any] interface {
	// ID returns the schema-local identity of the component type.
	ID() ComponentID
	// Name returns the declared name.
	Name() string
	present(e *E) bool
}

// Init mutates a record before it is inserted. Initializers are produced by
// Component.Value and Component.Without and consumed by Builder and Build.
type Init[E any] func(e *E)

// Build applies the initializers to rec and returns it.
func Build[E any](rec E, inits ...Init[E]) E {
	for _, in := range inits {
		in(&rec)
	}
	return rec
}

// Component is a typed accessor binding for component type T on record kind
// E. It is obtained from Declare and is the only way to reach a component by
// type.
type Component[E, T any] struct {
	field func(*E) *Slot[T]
	name  string
	id    ComponentID
}

var _ ComponentType[struct{}] = Component[struct{}, int]{}

// ID returns the component's identity within its schema.
func (c Component[E, T]) ID() ComponentID { return c.id }

// Name returns the name the component was declared with.
func (c Component[E, T]) Name() string { return c.name }

func (c Component[E, T]) present(e *E) bool { return c.field(e).present }

// Has reports whether e currently holds the component.
func (c Component[E, T]) Has(e *E) bool {
	return c.field(e).present
}

// Get returns a pointer to the component value of e, or nil if absent.
func (c Component[E, T]) Get(e *E) *T {
	return c.field(e).Get()
}

// Set stores v on e, replacing any previous value silently.
func (c Component[E, T]) Set(e *E, v T) {
	c.field(e).Set(v)
}

// Remove deletes the component from e and returns the previous value.
func (c Component[E, T]) Remove(e *E) (T, bool) {
	return c.field(e).Take()
}

// Mutate calls fn with the component value if e holds it. It returns whether
// fn was called. Presence is never changed.
func (c Component[E, T]) Mutate(e *E, fn func(*T)) bool {
	p := c.field(e).Get()
	if p == nil {
		return false
	}
	fn(p)
	return true
}

// Change lets fn decide, based on the whole record, what happens to the
// component: nothing, replacement, in-place mutation or removal.
func (c Component[E, T]) Change(e *E, fn func(*E) Change[T]) {
	c.apply(e, fn(e))
}

func (c Component[E, T]) apply(e *E, ch Change[T]) {
	switch ch.kind {
	case changeReplace:
		c.Set(e, ch.value)
	case changeMutate:
		c.Mutate(e, ch.mutate)
	case changeRemove:
		c.Remove(e)
	}
}

// Value returns an initializer that sets the component to v.
func (c Component[E, T]) Value(v T) Init[E] {
	return func(e *E) { c.Set(e, v) }
}

// Without returns an initializer that removes the component.
func (c Component[E, T]) Without() Init[E] {
	return func(e *E) { c.Remove(e) }
}

type changeKind uint8

const (
	changeNone changeKind = iota
	changeReplace
	changeMutate
	changeRemove
)

// Change describes what Component.Change and ChangeComponent do with a
// component. Build one with NoChange, Replace, MutateWith or Drop.
type Change[T any] struct {
	value  T
	mutate func(*T)
	kind   changeKind
}

// NoChange leaves the component as it is.
func NoChange[T any]() Change[T] { return Change[T]{kind: changeNone} }

// Replace sets the component to v, adding it if absent.
func Replace[T any](v T) Change[T] { return Change[T]{kind: changeReplace, value: v} }

// MutateWith changes the component in place; it has no effect if absent.
func MutateWith[T any](fn func(*T)) Change[T] { return Change[T]{kind: changeMutate, mutate: fn} }

// Drop removes the component.
func Drop[T any]() Change[T] { return Change[T]{kind: changeRemove} }
