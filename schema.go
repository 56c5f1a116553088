package lazystore

import (
	"fmt"
	"reflect"
)

// MaxComponentTypes defines the maximum number of component types a single
// record kind can declare. This value is fixed at 256.
const MaxComponentTypes = 256

// ComponentID identifies a component type within one Schema. IDs are
// assigned in declaration order, starting at 0.
type ComponentID uint8

// componentInfo is the per-type dispatch entry of a schema.
type componentInfo[E any] struct {
	typ     reflect.Type
	name    string
	present func(*E) bool
	clear   func(*E)
}

// Schema is the closed set of component types a record kind E may hold. It
// is populated with Declare, typically from package-level variables, and is
// sealed when the first Store is created from it.
type Schema[E any] struct {
	typeMap  map[reflect.Type]ComponentID
	nameMap  map[string]ComponentID
	infos    []componentInfo[E]
	declared Mask
	sealed   bool
}

// NewSchema returns an empty schema for record kind E.
func NewSchema[E any]() *Schema[E] {
	return &Schema[E]{
		typeMap: make(map[reflect.Type]ComponentID, 16),
		nameMap: make(map[string]ComponentID, 16),
	}
}

// Declare registers component type T on the schema and returns its typed
// accessor. field must return the address of the Slot inside the record that
// holds T. An empty name defaults to the type name.
//
// Declare panics if the schema is sealed, if T or name is already declared,
// or if the schema already holds MaxComponentTypes types. These are shape
// errors in the program, not runtime conditions.
func Declare[E, T any](s *Schema[E], name string, field func(*E) *Slot[T]) Component[E, T] {
	if s.sealed {
		panic("lazystore: cannot declare component on a sealed schema")
	}
	if field == nil {
		panic("lazystore: component field accessor is nil")
	}
	t := reflect.TypeFor[T]()
	if name == "" {
		name = t.Name()
	}
	if _, ok := s.typeMap[t]; ok {
		panic(fmt.Sprintf("lazystore: component type %s declared twice", t))
	}
	if _, ok := s.nameMap[name]; ok {
		panic(fmt.Sprintf("lazystore: component name %q declared twice", name))
	}
	if len(s.infos) >= MaxComponentTypes {
		panic("lazystore: too many component types")
	}
	id := ComponentID(len(s.infos))
	s.typeMap[t] = id
	s.nameMap[name] = id
	s.infos = append(s.infos, componentInfo[E]{
		typ:     t,
		name:    name,
		present: func(e *E) bool { return field(e).present },
		clear:   func(e *E) { field(e).Take() },
	})
	s.declared.Set(id)
	return Component[E, T]{field: field, name: name, id: id}
}

// Seal freezes the schema. Further Declare calls panic.
func (s *Schema[E]) Seal() {
	s.sealed = true
}

// Len returns the number of declared component types.
func (s *Schema[E]) Len() int {
	return len(s.infos)
}

// Declared returns the mask of every declared component.
func (s *Schema[E]) Declared() Mask {
	return s.declared
}

// Name returns the declared name of id, or "" if id is not declared.
func (s *Schema[E]) Name(id ComponentID) string {
	if int(id) >= len(s.infos) {
		return ""
	}
	return s.infos[id].name
}

// Lookup resolves a component by its declared name.
func (s *Schema[E]) Lookup(name string) (ComponentID, bool) {
	id, ok := s.nameMap[name]
	return id, ok
}

// LookupType resolves a component by its Go type.
func (s *Schema[E]) LookupType(t reflect.Type) (ComponentID, bool) {
	id, ok := s.typeMap[t]
	return id, ok
}

// Has reports whether e currently holds component id.
func (s *Schema[E]) Has(e *E, id ComponentID) bool {
	if int(id) >= len(s.infos) {
		return false
	}
	return s.infos[id].present(e)
}

// ForEachActive calls fn for every component e currently holds, in ID order.
func (s *Schema[E]) ForEachActive(e *E, fn func(ComponentID)) {
	for i := range s.infos {
		if s.infos[i].present(e) {
			fn(ComponentID(i))
		}
	}
}

// ForEachDeclared calls fn for every declared component type, whether or not
// any record holds it.
func (s *Schema[E]) ForEachDeclared(fn func(ComponentID)) {
	for i := range s.infos {
		fn(ComponentID(i))
	}
}

// ForEachPresence calls fn for every declared component type together with
// whether e holds it.
func (s *Schema[E]) ForEachPresence(e *E, fn func(id ComponentID, present bool)) {
	for i := range s.infos {
		fn(ComponentID(i), s.infos[i].present(e))
	}
}

// ActiveMask returns the set of components e currently holds.
func (s *Schema[E]) ActiveMask(e *E) Mask {
	var m Mask
	s.ForEachActive(e, m.Set)
	return m
}

// ClearComponents removes every component from e, leaving properties intact.
func (s *Schema[E]) ClearComponents(e *E) {
	for i := range s.infos {
		s.infos[i].clear(e)
	}
}
