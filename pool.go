package lazystore

import (
	"math"

	"github.com/bits-and-blooms/bitset"
)

// chunkSize is the number of slots held by one chunk. Storage grows one chunk
// at a time and chunks are never moved, so a *E handed out by the pool stays
// valid for as long as the record is live.
const chunkSize = 1024

// retiredGeneration marks a slot that will never be recycled again because
// its generation counter is exhausted.
const retiredGeneration = math.MaxUint32

// slot holds one record and the generation of the position.
type slot[E any] struct {
	value      E
	generation uint32
	occupied   bool
}

// chunk holds fixed-size storage for chunkSize slots.
type chunk[E any] struct {
	slots [chunkSize]slot[E]
}

// pool is a generation-tagged, slot-recycling record store. It is the single
// source of truth for whether an EntityID currently refers to a live record.
type pool[E any] struct {
	chunks   []*chunk[E]
	free     []uint32       // stack of recycled slot positions
	occupied *bitset.BitSet // bit p set iff slot p holds a record
	length   uint32         // slot positions handed out so far
	live     int
}

func newPool[E any](initialCapacity int) *pool[E] {
	p := &pool[E]{
		occupied: bitset.New(uint(max(initialCapacity, 0))),
	}
	for range (initialCapacity + chunkSize - 1) / chunkSize {
		p.chunks = append(p.chunks, &chunk[E]{})
	}
	return p
}

// at returns the slot at pos. pos must be below length.
func (p *pool[E]) at(pos uint32) *slot[E] {
	return &p.chunks[pos/chunkSize].slots[pos%chunkSize]
}

// capacity returns the number of slot positions currently backed by storage.
func (p *pool[E]) capacity() uint32 {
	return uint32(len(p.chunks)) * chunkSize
}

// insert stores v and returns its id. grew reports whether new storage was
// allocated, so that dependent bit vectors can be resized.
func (p *pool[E]) insert(v E) (id EntityID, grew bool) {
	var pos uint32
	if n := len(p.free); n > 0 {
		pos = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		if p.length == p.capacity() {
			p.chunks = append(p.chunks, &chunk[E]{})
			grew = true
		}
		pos = p.length
		p.length++
		p.at(pos).generation = 1
	}
	s := p.at(pos)
	s.value = v
	s.occupied = true
	p.occupied.Set(uint(pos))
	p.live++
	return EntityID{Index: pos, Generation: s.generation}, grew
}

// lookup returns the slot for id when id is live.
func (p *pool[E]) lookup(id EntityID) *slot[E] {
	if id.Index >= p.length {
		return nil
	}
	s := p.at(id.Index)
	if !s.occupied || s.generation != id.Generation {
		return nil
	}
	return s
}

// remove deletes the record addressed by id and returns it. Stale ids are a
// no-op.
func (p *pool[E]) remove(id EntityID) (E, bool) {
	s := p.lookup(id)
	if s == nil {
		var zero E
		return zero, false
	}
	return p.release(id.Index, s), true
}

// release empties the slot at pos, bumps its generation and recycles it.
func (p *pool[E]) release(pos uint32, s *slot[E]) E {
	v := s.value
	var zero E
	s.value = zero
	s.occupied = false
	s.generation++
	p.occupied.Clear(uint(pos))
	p.live--
	if s.generation != retiredGeneration {
		p.free = append(p.free, pos)
	}
	return v
}

func (p *pool[E]) get(id EntityID) *E {
	if s := p.lookup(id); s != nil {
		return &s.value
	}
	return nil
}

func (p *pool[E]) contains(id EntityID) bool {
	return p.lookup(id) != nil
}

func (p *pool[E]) len() int {
	return p.live
}

// getAt resolves the record at a raw slot position without knowing its
// generation in advance. ok is false when the slot is empty.
func (p *pool[E]) getAt(pos uint32) (v *E, id EntityID, ok bool) {
	if pos >= p.length {
		return nil, EntityID{}, false
	}
	s := p.at(pos)
	if !s.occupied {
		return nil, EntityID{}, false
	}
	return &s.value, EntityID{Index: pos, Generation: s.generation}, true
}

// clear empties every slot, bumping generations so that outstanding ids go
// stale, and keeps the allocated storage.
func (p *pool[E]) clear() {
	p.free = p.free[:0]
	for pos := p.length; pos > 0; pos-- {
		s := p.at(pos - 1)
		if s.occupied {
			var zero E
			s.value = zero
			s.occupied = false
			s.generation++
		}
		if s.generation != retiredGeneration {
			p.free = append(p.free, pos-1)
		}
	}
	p.occupied.ClearAll()
	p.live = 0
}

// restore rebuilds the pool from persisted slot states. gens holds the
// generation of every slot position, values the record of every occupied
// one (nil for empty slots).
func (p *pool[E]) restore(gens []uint32, values []*E) {
	p.chunks = p.chunks[:0]
	for range (len(gens) + chunkSize - 1) / chunkSize {
		p.chunks = append(p.chunks, &chunk[E]{})
	}
	p.length = uint32(len(gens))
	p.occupied = bitset.New(uint(len(gens)))
	p.free = p.free[:0]
	p.live = 0
	for pos := len(gens) - 1; pos >= 0; pos-- {
		s := p.at(uint32(pos))
		s.generation = gens[pos]
		if values[pos] != nil {
			s.value = *values[pos]
			s.occupied = true
			p.occupied.Set(uint(pos))
			p.live++
			continue
		}
		if s.generation != retiredGeneration {
			p.free = append(p.free, uint32(pos))
		}
	}
}
