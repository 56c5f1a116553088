package lazystore

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var indexLayouts = map[string]func(k unitKind) []Option{
	"Unindexed": func(unitKind) []Option { return nil },
	"Dense": func(k unitKind) []Option {
		return []Option{WithIndex(k.pos, IndexDense), WithIndex(k.vel, IndexDense)}
	},
	"Sparse": func(k unitKind) []Option {
		return []Option{WithIndex(k.pos, IndexSparse), WithIndex(k.vel, IndexSparse)}
	},
	"Mixed": func(k unitKind) []Option {
		return []Option{WithIndex(k.vel, IndexSparse)}
	},
}

// go test -run ^TestScenarioA$ . -count 1
func TestScenarioA(t *testing.T) {
	for name, layout := range indexLayouts {
		for _, policy := range []Policy{PolicyDefensive, PolicyTrusting} {
			t.Run(name+"/"+policy.String(), func(t *testing.T) {
				k := newUnitKind()
				s := New(k.schema, append(layout(k), WithPolicy(policy))...)
				e1 := s.Insert(unit("e1", k.pos.Value(Position{})))
				e2 := s.Insert(unit("e2", k.vel.Value(Velocity{})))
				e3 := s.Insert(unit("e3", k.pos.Value(Position{}), k.vel.Value(Velocity{})))

				assert.Equal(t, []EntityID{e1, e3}, collect(s.Query(k.pos).All()))
				assert.Equal(t, []EntityID{e2, e3}, collect(s.Query(k.vel).All()))
				assert.Equal(t, []EntityID{e3}, collect(s.Query(k.pos, k.vel).All()))
				assert.Equal(t, []EntityID{e3}, collect(s.Query(k.vel, k.pos, k.vel).All()))
				assert.Equal(t, []EntityID{e1, e2, e3}, collect(s.Query().All()))
				assert.Empty(t, collect(s.Query(k.health).All()))
			})
		}
	}
}

// go test -run ^TestScenarioB$ . -count 1
func TestScenarioB(t *testing.T) {
	k := newUnitKind()
	s := New(k.schema, WithIndex(k.pos, IndexDense))
	e1 := s.Insert(unit("e1", k.pos.Value(Position{X: 1})))
	s.Insert(unit("e2"))

	_, ok := s.Remove(e1)
	require.True(t, ok)
	e4 := s.Insert(unit("e4"))

	assert.Equal(t, e1.Index, e4.Index)
	assert.Greater(t, e4.Generation, e1.Generation)
	assert.False(t, s.Contains(e1))
	assert.True(t, s.Contains(e4))
	assert.Nil(t, s.Get(e1))
	assert.Empty(t, collect(s.Query(k.pos).All()), "e4 must not inherit e1's index bit")
	checkIndexInvariant(t, s)
}

// go test -run ^TestScenarioC$ . -count 1
func TestScenarioC(t *testing.T) {
	s, k := newUnitStore(t)
	var want []uint32
	for i := range 10 {
		u := unit("u")
		if i%3 == 0 {
			k.health.Set(&u, Health{Current: i})
		}
		id := s.Insert(u)
		if i%3 == 0 {
			want = append(want, id.Index)
		}
	}
	require.False(t, s.HasIndex(k.health))

	s.BuildIndex(k.health, IndexDense)
	require.True(t, s.HasIndex(k.health))
	assert.Equal(t, want, slices.Collect(s.index.get(k.health.ID()).positions()))
	checkIndexInvariant(t, s)
}

// go test -run ^TestScenarioD$ . -count 1
func TestScenarioD(t *testing.T) {
	setup := func(policy Policy) (*Store[Unit], unitKind, EntityID, EntityID, *observer.ObservedLogs) {
		core, logs := observer.New(zap.DebugLevel)
		k := newUnitKind()
		s := New(k.schema, WithPolicy(policy), WithIndex(k.poison, IndexSparse), WithLogger(WrapLogger(zap.New(core))))
		a := s.Insert(unit("a", k.poison.Value(Poisoned{Turns: 1})))
		b := s.Insert(unit("b", k.poison.Value(Poisoned{Turns: 2})))
		// Back door: presence changes without index maintenance.
		k.poison.Remove(s.Get(a))
		return s, k, a, b, logs
	}

	t.Run("DefensiveRevalidates", func(t *testing.T) {
		s, k, _, b, logs := setup(PolicyDefensive)
		assert.Equal(t, []EntityID{b}, collect(s.Query(k.poison).All()))
		assert.Equal(t, 1, logs.FilterMessage("traversal skipped stale index matches").Len())
	})

	t.Run("TrustingYieldsStaleMatch", func(t *testing.T) {
		s, k, a, b, _ := setup(PolicyTrusting)
		assert.Equal(t, []EntityID{a, b}, collect(s.Query(k.poison).All()))

		var seen []EntityID
		NewFilter(s, k.poison).Each(func(id EntityID, _ *Poisoned) { seen = append(seen, id) })
		assert.Equal(t, []EntityID{b}, seen, "typed filters cannot hand out an absent component")
	})

	t.Run("ResyncRepairs", func(t *testing.T) {
		s, k, a, b, _ := setup(PolicyTrusting)
		require.True(t, s.Resync(a))
		assert.Equal(t, []EntityID{b}, collect(s.Query(k.poison).All()))
		checkIndexInvariant(t, s)
	})
}

// go test -run ^TestTrustingEmptySlotPanics$ . -count 1
func TestTrustingEmptySlotPanics(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s, k := newUnitStore(t, WithPolicy(PolicyTrusting), WithLogger(WrapLogger(zap.New(core))))
	s.BuildIndex(k.pos, IndexDense)
	a := s.Insert(unit("a", k.pos.Value(Position{})))
	s.Insert(unit("b", k.pos.Value(Position{})))
	s.Remove(a)
	s.index.noteAdded(a.Index, k.pos.ID()) // corrupt the index

	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r)
			ce, ok := r.(*ConsistencyError)
			require.True(t, ok, "panic value %v", r)
			assert.Equal(t, a.Index, ce.Position)
			assert.Equal(t, []ComponentID{k.pos.ID()}, ce.Components)
			assert.ErrorIs(t, ce, ErrInconsistentIndex)
		}()
		for range s.Query(k.pos).All() {
		}
	}()
	assert.Equal(t, 1, logs.FilterMessage("index consistency violation").Len())

	assert.Equal(t, 1, s.ResyncAll())
	// The borrow was released by the unwinding traversal.
	assert.NotPanics(t, func() { s.Insert(unit("c")) })
	assert.Equal(t, 1, s.Query(k.pos).Count())
}

// go test -run ^TestDefensiveSkipsEmptySlot$ . -count 1
func TestDefensiveSkipsEmptySlot(t *testing.T) {
	k := newUnitKind()
	s := New(k.schema, WithIndex(k.pos, IndexDense))
	a := s.Insert(unit("a", k.pos.Value(Position{})))
	b := s.Insert(unit("b", k.pos.Value(Position{})))
	s.Remove(a)
	s.index.noteAdded(a.Index, k.pos.ID())

	assert.Equal(t, []EntityID{b}, collect(s.Query(k.pos).All()))
}

// go test -run ^TestDefensiveWarnsOnlyOnStaleIndex$ . -count 1
func TestDefensiveWarnsOnlyOnStaleIndex(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s, k := newUnitStore(t, WithLogger(WrapLogger(zap.New(core))))
	a := s.Insert(unit("a", k.pos.Value(Position{})))
	s.Insert(unit("b"))
	s.Insert(unit("c", k.vel.Value(Velocity{})))

	assert.Equal(t, 1, s.Query(k.pos).Count())
	assert.Equal(t, 1, s.Query(k.vel).Count())
	assert.Equal(t, 0, logs.FilterMessage("traversal skipped stale index matches").Len(),
		"unindexed components filter without warning")

	s.BuildIndex(k.pos, IndexDense)
	assert.Equal(t, 0, s.Query(k.pos, k.vel).Count())
	assert.Equal(t, 0, logs.FilterMessage("traversal skipped stale index matches").Len())

	_, ok := k.pos.Remove(s.Get(a))
	require.True(t, ok)
	assert.Equal(t, 0, s.Query(k.pos).Count())
	stale := logs.FilterMessage("traversal skipped stale index matches").All()
	require.Len(t, stale, 1)
	assert.EqualValues(t, 1, stale[0].ContextMap()["skipped"])
}

// go test -run ^TestQueryMatchesBruteForce$ . -count 1
func TestQueryMatchesBruteForce(t *testing.T) {
	for name, layout := range indexLayouts {
		t.Run(name, func(t *testing.T) {
			k := newUnitKind()
			s := New(k.schema, layout(k)...)
			rng := rand.New(rand.NewPCG(7, uint64(len(name))))
			var live []EntityID
			comps := k.all()

			for step := range 2000 {
				switch op := rng.IntN(10); {
				case op < 4 || len(live) == 0:
					u := unit("u")
					if rng.IntN(2) == 0 {
						k.pos.Set(&u, Position{X: float64(step)})
					}
					if rng.IntN(3) == 0 {
						k.vel.Set(&u, Velocity{})
					}
					live = append(live, s.Insert(u))
				case op < 6:
					i := rng.IntN(len(live))
					_, ok := s.Remove(live[i])
					require.True(t, ok)
					live = slices.Delete(live, i, i+1)
				case op < 8:
					AddComponent(s, live[rng.IntN(len(live))], k.vel, Velocity{DX: 1})
				default:
					RemoveComponent(s, live[rng.IntN(len(live))], k.pos)
				}
				checkIndexInvariant(t, s)

				q := []ComponentType[Unit]{comps[rng.IntN(2)], comps[rng.IntN(2)]}[:rng.IntN(3)]
				var want []EntityID
				for _, id := range live {
					rec := s.Get(id)
					if !slices.ContainsFunc(q, func(c ComponentType[Unit]) bool { return !c.present(rec) }) {
						want = append(want, id)
					}
				}
				slices.SortFunc(want, func(a, b EntityID) int { return int(a.Index) - int(b.Index) })
				got := collect(s.Query(q...).All())
				require.Equal(t, want, got, "step %d", step)
			}
		})
	}
}

// go test -run ^TestQueryForms$ . -count 1
func TestQueryForms(t *testing.T) {
	k := newUnitKind()
	s := New(k.schema, WithIndex(k.pos, IndexDense))
	ids := make([]EntityID, 0, 5)
	for i := range 5 {
		ids = append(ids, s.Insert(unit("u", k.pos.Value(Position{X: float64(i)}))))
	}
	s.Insert(unit("no position"))
	q := s.Query(k.pos)

	assert.Equal(t, 5, q.Count())
	assert.Equal(t, ids, slices.Collect(q.IDs()))
	assert.Equal(t, []ComponentID{k.pos.ID()}, q.Components())

	id, rec, ok := q.First()
	require.True(t, ok)
	assert.Equal(t, ids[0], id)
	assert.Equal(t, 0.0, k.pos.Get(rec).X)

	for _, rec := range q.AllMut() {
		k.pos.Get(rec).Y = 7
	}
	q.Each(func(_ EntityID, rec *Unit) { k.pos.Get(rec).X += 10 })
	for _, rec := range q.All() {
		assert.Equal(t, 7.0, k.pos.Get(rec).Y)
		assert.GreaterOrEqual(t, k.pos.Get(rec).X, 10.0)
	}

	n := 0
	for range q.All() {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)

	_, _, ok = s.Query(k.health).First()
	assert.False(t, ok)

	assert.Equal(t, 5, q.RemoveAll())
	assert.Equal(t, 1, s.Len())
	for _, id := range ids {
		assert.False(t, s.Contains(id))
	}
	checkIndexInvariant(t, s)
}

// go test -run ^TestQueryRejectsForeignComponent$ . -count 1
func TestQueryRejectsForeignComponent(t *testing.T) {
	s, _ := newUnitStore(t)
	other := NewSchema[Unit]()
	Declare(other, "A", func(u *Unit) *Slot[Position] { return &u.Position })
	Declare(other, "B", func(u *Unit) *Slot[Velocity] { return &u.Velocity })
	Declare(other, "C", func(u *Unit) *Slot[Health] { return &u.Health })
	Declare(other, "D", func(u *Unit) *Slot[Poisoned] { return &u.Poisoned })
	extra := Declare(other, "E", func(u *Unit) *Slot[string] { return nil })
	assert.Panics(t, func() { s.Query(extra) })
}
