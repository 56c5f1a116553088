package lazystore

import "iter"

// Filter iterates over every record holding component A and hands the
// component to the caller directly. It is the typed form of Query: the
// traversal rules, ordering and borrow semantics are those of Query.Each.
//
// Under PolicyTrusting a stale index bit may point at a record that no
// longer holds A; filters cannot hand out a typed pointer for it and skip
// such records.
//
// Example:
//
//	f := lazystore.NewFilter(store, position)
//	f.Each(func(id lazystore.EntityID, p *Position) {
//	    p.X++
//	})
type Filter[E, A any] struct {
	query *Query[E]
	a     Component[E, A]
}

// NewFilter creates a Filter over records holding a.
func NewFilter[E, A any](s *Store[E], a Component[E, A]) *Filter[E, A] {
	return &Filter[E, A]{query: s.Query(a), a: a}
}

// Query returns the untyped query backing the filter.
func (f *Filter[E, A]) Query() *Query[E] {
	return f.query
}

// Each calls fn for every match with exclusive access to the component.
func (f *Filter[E, A]) Each(fn func(EntityID, *A)) {
	f.query.Each(func(id EntityID, rec *E) {
		if a := f.a.Get(rec); a != nil {
			fn(id, a)
		}
	})
}

// All returns the matches as a range-over-func sequence. It borrows the
// store exclusively, like Query.AllMut.
func (f *Filter[E, A]) All() iter.Seq2[EntityID, *A] {
	return func(yield func(EntityID, *A) bool) {
		for id, rec := range f.query.AllMut() {
			a := f.a.Get(rec)
			if a == nil {
				continue
			}
			if !yield(id, a) {
				return
			}
		}
	}
}

// Count returns the number of matching records.
func (f *Filter[E, A]) Count() int {
	return f.query.Count()
}

// RemoveAll removes every matching record and returns how many were removed.
func (f *Filter[E, A]) RemoveAll() int {
	return f.query.RemoveAll()
}

// Filter2 is the two-component form of Filter.
type Filter2[E, A, B any] struct {
	query *Query[E]
	a     Component[E, A]
	b     Component[E, B]
}

// NewFilter2 creates a Filter2 over records holding both a and b.
func NewFilter2[E, A, B any](s *Store[E], a Component[E, A], b Component[E, B]) *Filter2[E, A, B] {
	return &Filter2[E, A, B]{query: s.Query(a, b), a: a, b: b}
}

// Query returns the untyped query backing the filter.
func (f *Filter2[E, A, B]) Query() *Query[E] {
	return f.query
}

// Each calls fn for every match with exclusive access to both components.
func (f *Filter2[E, A, B]) Each(fn func(EntityID, *A, *B)) {
	f.query.Each(func(id EntityID, rec *E) {
		a, b := f.a.Get(rec), f.b.Get(rec)
		if a != nil && b != nil {
			fn(id, a, b)
		}
	})
}

// Count returns the number of matching records.
func (f *Filter2[E, A, B]) Count() int {
	return f.query.Count()
}

// RemoveAll removes every matching record and returns how many were removed.
func (f *Filter2[E, A, B]) RemoveAll() int {
	return f.query.RemoveAll()
}

// Filter3 is the three-component form of Filter.
type Filter3[E, A, B, C any] struct {
	query *Query[E]
	a     Component[E, A]
	b     Component[E, B]
	c     Component[E, C]
}

// NewFilter3 creates a Filter3 over records holding a, b and c.
func NewFilter3[E, A, B, C any](s *Store[E], a Component[E, A], b Component[E, B], c Component[E, C]) *Filter3[E, A, B, C] {
	return &Filter3[E, A, B, C]{query: s.Query(a, b, c), a: a, b: b, c: c}
}

// Query returns the untyped query backing the filter.
func (f *Filter3[E, A, B, C]) Query() *Query[E] {
	return f.query
}

// Each calls fn for every match with exclusive access to the components.
func (f *Filter3[E, A, B, C]) Each(fn func(EntityID, *A, *B, *C)) {
	f.query.Each(func(id EntityID, rec *E) {
		a, b, c := f.a.Get(rec), f.b.Get(rec), f.c.Get(rec)
		if a != nil && b != nil && c != nil {
			fn(id, a, b, c)
		}
	})
}

// Count returns the number of matching records.
func (f *Filter3[E, A, B, C]) Count() int {
	return f.query.Count()
}

// RemoveAll removes every matching record and returns how many were removed.
func (f *Filter3[E, A, B, C]) RemoveAll() int {
	return f.query.RemoveAll()
}
