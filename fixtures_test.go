package lazystore

import (
	"errors"
	"iter"
	"testing"
)

// --- Test Components ---
type Position struct{ X, Y float64 }
type Velocity struct{ DX, DY float64 }
type Health struct{ Current, Max int }
type Poisoned struct{ Turns int }

// Unit is the record kind used throughout the tests.
type Unit struct {
	Position Slot[Position] `json:"position"`
	Velocity Slot[Velocity] `json:"velocity"`
	Health   Slot[Health]   `json:"health"`
	Poisoned Slot[Poisoned] `json:"poisoned"`
	Name     string         `json:"name"`
}

type unitKind struct {
	schema *Schema[Unit]
	pos    Component[Unit, Position]
	vel    Component[Unit, Velocity]
	health Component[Unit, Health]
	poison Component[Unit, Poisoned]
}

func newUnitKind() unitKind {
	s := NewSchema[Unit]()
	return unitKind{
		schema: s,
		pos:    Declare(s, "Position", func(u *Unit) *Slot[Position] { return &u.Position }),
		vel:    Declare(s, "Velocity", func(u *Unit) *Slot[Velocity] { return &u.Velocity }),
		health: Declare(s, "Health", func(u *Unit) *Slot[Health] { return &u.Health }),
		poison: Declare(s, "Poisoned", func(u *Unit) *Slot[Poisoned] { return &u.Poisoned }),
	}
}

func (k unitKind) all() []ComponentType[Unit] {
	return []ComponentType[Unit]{k.pos, k.vel, k.health, k.poison}
}

func newUnitStore(_ testing.TB, opts ...Option) (*Store[Unit], unitKind) {
	k := newUnitKind()
	return New(k.schema, opts...), k
}

func unit(name string, inits ...Init[Unit]) Unit {
	return Build(Unit{Name: name}, inits...)
}

func collect[V any](seq iter.Seq2[EntityID, V]) []EntityID {
	var out []EntityID
	for id := range seq {
		out = append(out, id)
	}
	return out
}

// requirePanicIs fails the test unless fn panics with an error matching
// target.
func requirePanicIs(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected panic wrapping %v", target)
		}
		err, ok := r.(error)
		if !ok {
			t.Fatalf("panic value %v is not an error", r)
		}
		if !errors.Is(err, target) {
			t.Fatalf("panic %v does not wrap %v", err, target)
		}
	}()
	fn()
}

// checkIndexInvariant asserts that every index bit mirrors live presence.
func checkIndexInvariant(t *testing.T, s *Store[Unit]) {
	t.Helper()
	for _, cid := range s.IndexedComponents() {
		v := s.index.get(cid)
		for pos := range s.pool.length {
			rec, _, live := s.pool.getAt(pos)
			want := live && s.schema.Has(rec, cid)
			if got := v.contains(pos); got != want {
				t.Fatalf("index %s slot %d: bit %v, presence %v", s.schema.Name(cid), pos, got, want)
			}
		}
		for pos := range v.positions() {
			if pos >= s.pool.length {
				t.Fatalf("index %s has bit %d beyond pool length %d", s.schema.Name(cid), pos, s.pool.length)
			}
		}
	}
}
