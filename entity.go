package lazystore

import "fmt"

// EntityID is a stable handle to a record in a Store. It combines the slot
// position the record lives in with the generation of that slot at insertion
// time, so that an id obtained before a removal can never address the record
// that later reuses the same slot.
type EntityID struct {
	// Index is the slot position inside the store's pool.
	Index uint32
	// Generation is the slot generation the id was issued for. It is never 0
	// for an id returned by the store.
	Generation uint32
}

// IsZero reports whether the id is the zero value. The zero id never refers
// to a live record.
func (id EntityID) IsZero() bool {
	return id.Index == 0 && id.Generation == 0
}

// String renders the id as index:generation.
func (id EntityID) String() string {
	return fmt.Sprintf("EntityID(%d:%d)", id.Index, id.Generation)
}
