package lazystore

import (
	"fmt"
	"iter"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
)

// IndexEncoding selects the bit vector representation of a component index.
type IndexEncoding uint8

const (
	// IndexDense stores one bit per slot position. It is the right choice for
	// components held by a sizeable share of records.
	IndexDense IndexEncoding = iota
	// IndexSparse stores a compressed Roaring bitmap. It suits components
	// held by few records in a large store.
	IndexSparse
)

// String returns the configuration name of the encoding.
func (e IndexEncoding) String() string {
	switch e {
	case IndexDense:
		return "dense"
	case IndexSparse:
		return "sparse"
	default:
		return fmt.Sprintf("IndexEncoding(%d)", uint8(e))
	}
}

// ParseIndexEncoding resolves a configuration name to an encoding.
func ParseIndexEncoding(s string) (IndexEncoding, error) {
	switch s {
	case "", "dense":
		return IndexDense, nil
	case "sparse", "roaring":
		return IndexSparse, nil
	default:
		return 0, fmt.Errorf("%w: unknown index encoding %q", ErrInvalidConfig, s)
	}
}

// bitVector is the per-component index storage. Bit p means "the record in
// slot p has this component".
type bitVector interface {
	add(pos uint32)
	remove(pos uint32)
	contains(pos uint32) bool
	cardinality() uint64
	grow(capacity uint32)
	// intersect clears every bit of acc that is not set in the vector.
	intersect(acc *bitset.BitSet)
	// materialize returns a dense copy of the vector.
	materialize() *bitset.BitSet
	positions() iter.Seq[uint32]
	encoding() IndexEncoding
}

type denseVector struct {
	bits *bitset.BitSet
}

func newDenseVector(capacity uint32) *denseVector {
	return &denseVector{bits: bitset.New(uint(capacity))}
}

func (v *denseVector) add(pos uint32)           { v.bits.Set(uint(pos)) }
func (v *denseVector) remove(pos uint32)        { v.bits.Clear(uint(pos)) }
func (v *denseVector) contains(pos uint32) bool { return v.bits.Test(uint(pos)) }
func (v *denseVector) cardinality() uint64      { return uint64(v.bits.Count()) }
func (v *denseVector) encoding() IndexEncoding  { return IndexDense }

func (v *denseVector) grow(capacity uint32) {
	if v.bits.Len() >= uint(capacity) {
		return
	}
	grown := bitset.New(uint(capacity))
	grown.InPlaceUnion(v.bits)
	v.bits = grown
}

func (v *denseVector) intersect(acc *bitset.BitSet) {
	acc.InPlaceIntersection(v.bits)
}

func (v *denseVector) materialize() *bitset.BitSet {
	return v.bits.Clone()
}

func (v *denseVector) positions() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		for i, ok := v.bits.NextSet(0); ok; i, ok = v.bits.NextSet(i + 1) {
			if !yield(uint32(i)) {
				return
			}
		}
	}
}

type sparseVector struct {
	rb *roaring.Bitmap
}

func newSparseVector() *sparseVector {
	return &sparseVector{rb: roaring.New()}
}

func (v *sparseVector) add(pos uint32)           { v.rb.Add(pos) }
func (v *sparseVector) remove(pos uint32)        { v.rb.Remove(pos) }
func (v *sparseVector) contains(pos uint32) bool { return v.rb.Contains(pos) }
func (v *sparseVector) cardinality() uint64      { return v.rb.GetCardinality() }
func (v *sparseVector) encoding() IndexEncoding  { return IndexSparse }

// grow is a no-op: roaring containers are allocated on demand.
func (v *sparseVector) grow(uint32) {}

func (v *sparseVector) intersect(acc *bitset.BitSet) {
	for i, ok := acc.NextSet(0); ok; i, ok = acc.NextSet(i + 1) {
		if !v.rb.Contains(uint32(i)) {
			acc.Clear(i)
		}
	}
}

func (v *sparseVector) materialize() *bitset.BitSet {
	out := bitset.New(0)
	it := v.rb.Iterator()
	for it.HasNext() {
		out.Set(uint(it.Next()))
	}
	return out
}

func (v *sparseVector) positions() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		it := v.rb.Iterator()
		for it.HasNext() {
			if !yield(it.Next()) {
				return
			}
		}
	}
}

// indexTable maps component IDs to their bit vectors. It is derived state:
// every vector can be discarded and rebuilt from the pool.
type indexTable struct {
	vectors map[ComponentID]bitVector
	indexed Mask
}

func newIndexTable() *indexTable {
	return &indexTable{vectors: make(map[ComponentID]bitVector, 8)}
}

// build replaces the vector for id with one holding exactly the given
// positions.
func (t *indexTable) build(id ComponentID, enc IndexEncoding, capacity uint32, positions iter.Seq[uint32]) bitVector {
	var v bitVector
	switch enc {
	case IndexSparse:
		v = newSparseVector()
	default:
		v = newDenseVector(capacity)
	}
	for pos := range positions {
		v.add(pos)
	}
	t.vectors[id] = v
	t.indexed.Set(id)
	return v
}

// drop discards the vector for id. It reports whether one existed.
func (t *indexTable) drop(id ComponentID) bool {
	if _, ok := t.vectors[id]; !ok {
		return false
	}
	delete(t.vectors, id)
	t.indexed.Unset(id)
	return true
}

func (t *indexTable) has(id ComponentID) bool {
	return t.indexed.Has(id)
}

func (t *indexTable) get(id ComponentID) bitVector {
	return t.vectors[id]
}

// noteAdded records that the record in slot pos gained component id. It is
// a no-op when id is not indexed.
func (t *indexTable) noteAdded(pos uint32, id ComponentID) {
	if v, ok := t.vectors[id]; ok {
		v.add(pos)
	}
}

// noteRemoved records that the record in slot pos lost component id.
func (t *indexTable) noteRemoved(pos uint32, id ComponentID) {
	if v, ok := t.vectors[id]; ok {
		v.remove(pos)
	}
}

// resizeFor grows every vector to hold at least capacity bits.
func (t *indexTable) resizeFor(capacity uint32) {
	for _, v := range t.vectors {
		v.grow(capacity)
	}
}

// clear empties every vector, keeping the set of indexed components.
func (t *indexTable) clear(capacity uint32) {
	for id, v := range t.vectors {
		t.build(id, v.encoding(), capacity, func(func(uint32) bool) {})
	}
}

// conjunction ANDs the vectors of the indexed components in ids, smallest
// first, into a fresh dense accumulator. It returns nil when none of ids is
// indexed, meaning every occupied slot is a candidate.
func (t *indexTable) conjunction(ids []ComponentID) *bitset.BitSet {
	vs := make([]bitVector, 0, len(ids))
	for _, id := range ids {
		if v, ok := t.vectors[id]; ok {
			vs = append(vs, v)
		}
	}
	if len(vs) == 0 {
		return nil
	}
	slices.SortStableFunc(vs, func(a, b bitVector) int {
		ca, cb := a.cardinality(), b.cardinality()
		switch {
		case ca < cb:
			return -1
		case ca > cb:
			return 1
		}
		return 0
	})
	acc := vs[0].materialize()
	for _, v := range vs[1:] {
		if acc.None() {
			break
		}
		v.intersect(acc)
	}
	return acc
}
