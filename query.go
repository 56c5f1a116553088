package lazystore

import (
	"iter"

	"github.com/bits-and-blooms/bitset"
)

// Query is a conjunctive traversal over every record holding all of its
// components. It is cheap to build and holds no state between traversals, so
// one Query can be kept and run repeatedly; each run sees the store as it is
// at that moment.
//
// Records are always yielded in ascending slot position. Positions are
// recycled, so the order is not stable across inserts and removals.
type Query[E any] struct {
	store *Store[E]
	comps []ComponentType[E]
	ids   []ComponentID
	mask  Mask
}

// Query builds a traversal over records holding every component in comps.
// Building it does not touch the store; the work happens when one of its
// traversals runs.
//
// Parameters:
//   - comps: The required components. Duplicates are collapsed. With none,
//     the query matches every record.
//
// Returns:
//   - A reusable Query.
//
// Query panics if a component was declared on a different schema.
func (s *Store[E]) Query(comps ...ComponentType[E]) *Query[E] {
	q := &Query[E]{store: s}
	for _, c := range comps {
		id := c.ID()
		if int(id) >= s.schema.Len() {
			panic("lazystore: query component is not declared on the store's schema")
		}
		if q.mask.Has(id) {
			continue
		}
		q.mask.Set(id)
		q.comps = append(q.comps, c)
		q.ids = append(q.ids, id)
	}
	return q
}

// Components returns the deduplicated component IDs of the query.
func (q *Query[E]) Components() []ComponentID {
	return q.mask.IDs()
}

// candidates returns the vector of slot positions to visit and whether it
// came from at least one index. Without any indexed component every occupied
// slot is a candidate.
func (q *Query[E]) candidates() (*bitset.BitSet, bool) {
	if acc := q.store.index.conjunction(q.ids); acc != nil {
		return acc, true
	}
	return q.store.pool.occupied, false
}

// verify reports whether rec holds the components the policy requires the
// engine to re-check. stale is set when a failing component is indexed, that
// is when the index promised a component the record does not hold. Failing
// an unindexed component is ordinary filtering.
func (q *Query[E]) verify(rec *E) (ok, stale bool) {
	trusting := q.store.policy == PolicyTrusting
	ok = true
	for _, c := range q.comps {
		indexed := q.store.index.has(c.ID())
		if trusting && indexed {
			continue
		}
		if !c.present(rec) {
			ok = false
			if indexed {
				return false, true
			}
		}
	}
	return ok, false
}

// run drives one traversal. Callers hold the appropriate borrow.
func (q *Query[E]) run(yield func(EntityID, *E) bool) {
	s := q.store
	cand, indexed := q.candidates()
	cur := newCursor()
	skipped := 0
	defer func() {
		if skipped > 0 {
			s.logger.LogStaleMatches(q.names(), skipped)
		}
	}()
	for i, ok := cand.NextSet(0); ok; i, ok = cand.NextSet(cur.next) {
		cur.advance(i)
		pos := uint32(i)
		rec, id, live := s.pool.getAt(pos)
		if !live {
			if indexed && s.policy == PolicyTrusting {
				err := &ConsistencyError{Components: q.indexedIDs(), Position: pos}
				s.logger.LogConsistencyViolation(q.names(), err)
				panic(err)
			}
			skipped++
			continue
		}
		if match, stale := q.verify(rec); !match {
			if stale {
				skipped++
			}
			continue
		}
		if !yield(id, rec) {
			return
		}
	}
}

func (q *Query[E]) indexedIDs() []ComponentID {
	var out []ComponentID
	for _, id := range q.ids {
		if q.store.index.has(id) {
			out = append(out, id)
		}
	}
	return out
}

func (q *Query[E]) names() []string {
	out := make([]string, len(q.comps))
	for i, c := range q.comps {
		out[i] = c.Name()
	}
	return out
}

// All returns a read-only traversal. Several read-only traversals may run at
// once; Get stays allowed. Any structural mutation of the store while the
// traversal runs panics with ErrBorrowed.
//
// The records are handed out by pointer and must not be modified through
// them; use AllMut or Each for that.
func (q *Query[E]) All() iter.Seq2[EntityID, *E] {
	return func(yield func(EntityID, *E) bool) {
		q.store.borrow.acquireShared("Query.All")
		defer q.store.borrow.releaseShared()
		q.run(yield)
	}
}

// AllMut returns a traversal that may modify the yielded records in place.
// It borrows the store exclusively: starting another traversal, calling Get
// or mutating the store before the loop ends panics with ErrBorrowed.
//
// Changing component presence through the yielded pointer bypasses index
// maintenance; call Resync for that record afterwards.
func (q *Query[E]) AllMut() iter.Seq2[EntityID, *E] {
	return func(yield func(EntityID, *E) bool) {
		q.store.borrow.acquireExclusive("Query.AllMut")
		defer q.store.borrow.releaseExclusive()
		q.run(yield)
	}
}

// Each calls fn for every matching record with exclusive access to it. It is
// the callback form of AllMut.
func (q *Query[E]) Each(fn func(EntityID, *E)) {
	q.store.borrow.acquireExclusive("Query.Each")
	defer q.store.borrow.releaseExclusive()
	q.run(func(id EntityID, rec *E) bool {
		fn(id, rec)
		return true
	})
}

// IDs returns the identifiers of the matching records.
func (q *Query[E]) IDs() iter.Seq[EntityID] {
	return func(yield func(EntityID) bool) {
		q.store.borrow.acquireShared("Query.IDs")
		defer q.store.borrow.releaseShared()
		q.run(func(id EntityID, _ *E) bool {
			return yield(id)
		})
	}
}

// Count returns the number of matching records.
func (q *Query[E]) Count() int {
	q.store.borrow.acquireShared("Query.Count")
	defer q.store.borrow.releaseShared()
	n := 0
	q.run(func(EntityID, *E) bool {
		n++
		return true
	})
	return n
}

// First returns the matching record with the lowest slot position.
func (q *Query[E]) First() (EntityID, *E, bool) {
	q.store.borrow.acquireShared("Query.First")
	defer q.store.borrow.releaseShared()
	var (
		id  EntityID
		rec *E
	)
	q.run(func(i EntityID, r *E) bool {
		id, rec = i, r
		return false
	})
	return id, rec, rec != nil
}

// RemoveAll removes every matching record and returns how many were
// removed. Index bits of the removed records are cleared.
func (q *Query[E]) RemoveAll() int {
	s := q.store
	s.borrow.checkMutate("Query.RemoveAll")
	var removed []EntityID
	func() {
		s.borrow.acquireExclusive("Query.RemoveAll")
		defer s.borrow.releaseExclusive()
		q.run(func(id EntityID, _ *E) bool {
			s.removeAt(id.Index, s.pool.at(id.Index))
			removed = append(removed, id)
			return true
		})
	}()
	s.publishRemoved(removed)
	return len(removed)
}
