package lazystore

import (
	"fmt"
	"iter"

	"github.com/edwinsyarief/lazystore/codec"
)

// Store is an in-memory, single-writer store of records of kind E. It owns
// the slot pool holding the records and the per-component index table
// derived from them.
//
// Insert, Remove, AddComponent, RemoveComponent and ChangeComponent are the
// only mutations that keep indices consistent. Presence changes made through
// a *E obtained from Get or a traversal are invisible to the indices until
// Resync or ResyncAll is called for the affected records.
//
// A Store is not safe for concurrent use.
type Store[E any] struct {
	schema      *Schema[E]
	pool        *pool[E]
	index       *indexTable
	logger      *Logger
	events      *EventBus
	codec       codec.Codec
	borrow      borrowState
	policy      Policy
	compression Compression
}

// New creates a store for the record kind described by schema. The schema
// is sealed: no component can be declared on it afterwards. Indices named by
// WithIndex or WithIndexNamed are built before New returns.
//
// Parameters:
//   - schema: The schema declaring the components of E.
//   - opts: Functional options such as WithIndex, WithPolicy or WithLogger.
//
// Returns:
//   - A pointer to the new, empty Store.
//
// New panics if an index option names a component the schema does not
// declare; NewFromConfig reports that as an error instead.
func New[E any](schema *Schema[E], opts ...Option) *Store[E] {
	s, err := newStore(schema, opts)
	if err != nil {
		panic(err)
	}
	return s
}

// NewFromConfig creates a store from a loaded Config. Explicit opts are
// applied after the config and take precedence.
func NewFromConfig[E any](schema *Schema[E], cfg *Config, opts ...Option) (*Store[E], error) {
	cfgOpts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	return newStore(schema, append(cfgOpts, opts...))
}

func newStore[E any](schema *Schema[E], opts []Option) (*Store[E], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	schema.Seal()
	s := &Store[E]{
		schema:      schema,
		pool:        newPool[E](o.capacity),
		index:       newIndexTable(),
		logger:      o.logger,
		events:      o.events,
		codec:       o.codec,
		policy:      o.policy,
		compression: o.compression,
	}
	for _, spec := range o.indexes {
		id := spec.id
		if spec.byName {
			var ok bool
			if id, ok = schema.Lookup(spec.name); !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, spec.name)
			}
		} else if int(id) >= schema.Len() {
			return nil, fmt.Errorf("%w: id %d", ErrUnknownComponent, id)
		}
		s.buildIndex(id, spec.encoding)
	}
	return s, nil
}

// Schema returns the schema of the store.
func (s *Store[E]) Schema() *Schema[E] {
	return s.schema
}

// Policy returns the stale-index policy the store was built with.
func (s *Store[E]) Policy() Policy {
	return s.policy
}

// Insert stores rec and returns its identifier. Every component rec holds
// is recorded in the indices that exist.
func (s *Store[E]) Insert(rec E) EntityID {
	s.borrow.checkMutate("Insert")
	id := s.insert(rec)
	if s.events != nil {
		Publish(s.events, EntityInserted{ID: id})
	}
	return id
}

func (s *Store[E]) insert(rec E) EntityID {
	id, grew := s.pool.insert(rec)
	if grew {
		s.index.resizeFor(s.pool.capacity())
	}
	s.resyncAt(id.Index, &s.pool.at(id.Index).value)
	return id
}

// Remove deletes the record addressed by id and returns it. A stale id is
// not an error: Remove returns false and changes nothing.
func (s *Store[E]) Remove(id EntityID) (E, bool) {
	s.borrow.checkMutate("Remove")
	sl := s.pool.lookup(id)
	if sl == nil {
		var zero E
		return zero, false
	}
	rec := s.removeAt(id.Index, sl)
	if s.events != nil {
		Publish(s.events, EntityRemoved{ID: id})
	}
	return rec, true
}

// removeAt clears every index bit of slot pos and releases it. Bits are
// cleared unconditionally so that stale bits left by out-of-band presence
// changes cannot survive the record.
func (s *Store[E]) removeAt(pos uint32, sl *slot[E]) E {
	for _, v := range s.index.vectors {
		v.remove(pos)
	}
	return s.pool.release(pos, sl)
}

func (s *Store[E]) publishRemoved(ids []EntityID) {
	if s.events == nil {
		return
	}
	for _, id := range ids {
		Publish(s.events, EntityRemoved{ID: id})
	}
}

// Get returns a pointer to the record addressed by id, or nil if id is
// stale. The pointer stays valid until the record is removed.
//
// Get panics with ErrBorrowed inside AllMut or Each.
func (s *Store[E]) Get(id EntityID) *E {
	s.borrow.checkRead("Get")
	return s.pool.get(id)
}

// Contains reports whether id refers to a live record.
func (s *Store[E]) Contains(id EntityID) bool {
	return s.pool.contains(id)
}

// Len returns the number of live records.
func (s *Store[E]) Len() int {
	return s.pool.len()
}

// All is shorthand for s.Query().All().
func (s *Store[E]) All() iter.Seq2[EntityID, *E] {
	return s.Query().All()
}

// Each is shorthand for s.Query().Each(fn).
func (s *Store[E]) Each(fn func(EntityID, *E)) {
	s.Query().Each(fn)
}

// AddComponent sets component c of the record addressed by id to v,
// replacing any previous value, and records it in c's index. It returns
// false if id is stale.
func AddComponent[E, T any](s *Store[E], id EntityID, c Component[E, T], v T) bool {
	s.borrow.checkMutate("AddComponent")
	sl := s.pool.lookup(id)
	if sl == nil {
		return false
	}
	had := c.Has(&sl.value)
	c.Set(&sl.value, v)
	s.index.noteAdded(id.Index, c.id)
	if s.events != nil {
		Publish(s.events, ComponentAdded{ID: id, Component: c.id, Name: c.name, Replaced: had})
	}
	return true
}

// RemoveComponent removes component c from the record addressed by id and
// returns the previous value. It returns false if id is stale or the record
// did not hold c.
func RemoveComponent[E, T any](s *Store[E], id EntityID, c Component[E, T]) (T, bool) {
	s.borrow.checkMutate("RemoveComponent")
	sl := s.pool.lookup(id)
	if sl == nil {
		var zero T
		return zero, false
	}
	v, ok := c.Remove(&sl.value)
	s.index.noteRemoved(id.Index, c.id)
	if ok && s.events != nil {
		Publish(s.events, ComponentRemoved{ID: id, Component: c.id, Name: c.name})
	}
	return v, ok
}

// ChangeComponent lets fn decide, from the whole record, whether component c
// is kept, replaced, mutated or dropped, and keeps c's index in step with
// the outcome. It returns false if id is stale.
//
// fn runs with exclusive access to the store: calling Get, Remove or any
// other mutation from fn panics with ErrBorrowed.
func ChangeComponent[E, T any](s *Store[E], id EntityID, c Component[E, T], fn func(*E) Change[T]) bool {
	s.borrow.checkMutate("ChangeComponent")
	sl := s.pool.lookup(id)
	if sl == nil {
		return false
	}
	had := c.Has(&sl.value)
	ch := decideChange(s, &sl.value, fn)
	c.apply(&sl.value, ch)
	has := c.Has(&sl.value)
	if has {
		s.index.noteAdded(id.Index, c.id)
	} else {
		s.index.noteRemoved(id.Index, c.id)
	}
	if s.events != nil {
		switch {
		case has && (!had || ch.kind == changeReplace):
			Publish(s.events, ComponentAdded{ID: id, Component: c.id, Name: c.name, Replaced: had})
		case had && !has:
			Publish(s.events, ComponentRemoved{ID: id, Component: c.id, Name: c.name})
		}
	}
	return true
}

// decideChange runs fn under an exclusive borrow, so fn cannot remove or
// reshape the record whose outcome it is deciding.
func decideChange[E, T any](s *Store[E], rec *E, fn func(*E) Change[T]) Change[T] {
	s.borrow.acquireExclusive("ChangeComponent")
	defer s.borrow.releaseExclusive()
	return fn(rec)
}

// BuildIndex builds, or rebuilds, the index of component c by scanning
// every record. Queries on c use it from then on, and the sanctioned
// mutations keep it current. Rebuilding repairs any drift left by presence
// changes made through a *E.
//
// Parameters:
//   - c: The component to index.
//   - enc: IndexDense for components most records hold, IndexSparse for rare
//     ones.
func (s *Store[E]) BuildIndex(c ComponentType[E], enc IndexEncoding) {
	s.borrow.checkMutate("BuildIndex")
	s.buildIndex(c.ID(), enc)
}

func (s *Store[E]) buildIndex(id ComponentID, enc IndexEncoding) {
	v := s.index.build(id, enc, s.pool.capacity(), s.presentPositions(id))
	s.logger.LogIndexBuilt(s.schema.Name(id), enc, v.cardinality())
}

// presentPositions yields the position of every live record holding id.
func (s *Store[E]) presentPositions(id ComponentID) iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		occ := s.pool.occupied
		for i, ok := occ.NextSet(0); ok; i, ok = occ.NextSet(i + 1) {
			if s.schema.Has(&s.pool.at(uint32(i)).value, id) && !yield(uint32(i)) {
				return
			}
		}
	}
}

// DropIndex discards the index of component c. Queries on c then check
// every record. It reports whether an index existed.
func (s *Store[E]) DropIndex(c ComponentType[E]) bool {
	s.borrow.checkMutate("DropIndex")
	if !s.index.drop(c.ID()) {
		return false
	}
	s.logger.LogIndexDropped(c.Name())
	return true
}

// HasIndex reports whether component c is indexed.
func (s *Store[E]) HasIndex(c ComponentType[E]) bool {
	return s.index.has(c.ID())
}

// IndexedComponents returns the IDs of the indexed components in ascending
// order.
func (s *Store[E]) IndexedComponents() []ComponentID {
	return s.index.indexed.IDs()
}

// Retain removes every record for which keep returns false, visiting
// records in ascending slot position. EntityRemoved events are published
// after the scan has finished.
//
// Parameters:
//   - keep: Called once per live record. It may modify the record it is given
//     but must not call back into the store; doing so panics with ErrBorrowed.
//
// Returns:
//   - The number of records removed.
func (s *Store[E]) Retain(keep func(EntityID, *E) bool) int {
	s.borrow.checkMutate("Retain")
	var removed []EntityID
	scanned := 0
	func() {
		s.borrow.acquireExclusive("Retain")
		defer s.borrow.releaseExclusive()
		occ := s.pool.occupied
		for i, ok := occ.NextSet(0); ok; i, ok = occ.NextSet(i + 1) {
			pos := uint32(i)
			sl := s.pool.at(pos)
			scanned++
			if keep(EntityID{Index: pos, Generation: sl.generation}, &sl.value) {
				continue
			}
			removed = append(removed, EntityID{Index: pos, Generation: sl.generation})
			s.removeAt(pos, sl)
		}
	}()
	s.logger.LogRetain(scanned, len(removed))
	s.publishRemoved(removed)
	return len(removed)
}

// Resync re-derives every index bit of the record addressed by id from its
// live presence. Use it after changing presence through a *E. It returns
// false if id is stale.
func (s *Store[E]) Resync(id EntityID) bool {
	s.borrow.checkMutate("Resync")
	sl := s.pool.lookup(id)
	if sl == nil {
		return false
	}
	s.resyncAt(id.Index, &sl.value)
	return true
}

func (s *Store[E]) resyncAt(pos uint32, rec *E) int {
	corrected := 0
	for cid, v := range s.index.vectors {
		has := s.schema.Has(rec, cid)
		if v.contains(pos) == has {
			continue
		}
		if has {
			v.add(pos)
		} else {
			v.remove(pos)
		}
		corrected++
	}
	return corrected
}

// ResyncAll re-derives every index from live presence and returns the
// number of bits that had to be corrected.
func (s *Store[E]) ResyncAll() int {
	s.borrow.checkMutate("ResyncAll")
	corrected := 0
	occ := s.pool.occupied
	for i, ok := occ.NextSet(0); ok; i, ok = occ.NextSet(i + 1) {
		corrected += s.resyncAt(uint32(i), &s.pool.at(uint32(i)).value)
	}
	for _, v := range s.index.vectors {
		var orphans []uint32
		for pos := range v.positions() {
			if !occ.Test(uint(pos)) {
				orphans = append(orphans, pos)
			}
		}
		for _, pos := range orphans {
			v.remove(pos)
		}
		corrected += len(orphans)
	}
	s.logger.LogResync(s.pool.len(), corrected)
	return corrected
}

// Clear removes every record. Outstanding ids go stale, indices stay
// registered and become empty. No events are published.
func (s *Store[E]) Clear() {
	s.borrow.checkMutate("Clear")
	s.pool.clear()
	s.index.clear(s.pool.capacity())
}

// IndexStats describes one index.
type IndexStats struct {
	Name        string
	Cardinality uint64
	ID          ComponentID
	Encoding    IndexEncoding
}

// Stats is a point-in-time summary of a store.
type Stats struct {
	Indexes   []IndexStats
	Records   int
	Slots     int
	Capacity  int
	FreeSlots int
	Policy    Policy
}

// Stats returns a summary of the store.
func (s *Store[E]) Stats() Stats {
	st := Stats{
		Records:   s.pool.len(),
		Slots:     int(s.pool.length),
		Capacity:  int(s.pool.capacity()),
		FreeSlots: len(s.pool.free),
		Policy:    s.policy,
	}
	for _, id := range s.index.indexed.IDs() {
		v := s.index.get(id)
		st.Indexes = append(st.Indexes, IndexStats{
			Name:        s.schema.Name(id),
			Cardinality: v.cardinality(),
			ID:          id,
			Encoding:    v.encoding(),
		})
	}
	return st
}
