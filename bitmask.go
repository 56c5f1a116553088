package lazystore

import "math/bits"

// Mask represents a set of up to 256 component IDs. Bit n is set when the
// component with ID n is part of the set. Masks describe which components a
// record currently holds and which components a query requests.
type Mask [4]uint64

// Set enables the bit corresponding to the given component ID.
func (m *Mask) Set(id ComponentID) {
	i := id >> 6 // (id / 64) to find the uint64 index
	o := id & 63 // (id % 64) to find the bit offset
	m[i] |= uint64(1) << uint64(o)
}

// Unset disables the bit corresponding to the given component ID.
func (m *Mask) Unset(id ComponentID) {
	i := id >> 6
	o := id & 63
	m[i] &= ^(uint64(1) << uint64(o))
}

// Has checks if a specific component ID is in the mask.
func (m Mask) Has(id ComponentID) bool {
	i := id >> 6
	o := id & 63
	return (m[i] & (uint64(1) << uint64(o))) != 0
}

// Contains checks if all the bits set in `sub` are also set in the receiver.
// A record whose active mask contains a query mask satisfies the query.
func (m Mask) Contains(sub Mask) bool {
	return (m[0]&sub[0]) == sub[0] &&
		(m[1]&sub[1]) == sub[1] &&
		(m[2]&sub[2]) == sub[2] &&
		(m[3]&sub[3]) == sub[3]
}

// IsEmpty reports whether no component is in the mask.
func (m Mask) IsEmpty() bool {
	return m[0]|m[1]|m[2]|m[3] == 0
}

// Len returns the number of components in the mask.
func (m Mask) Len() int {
	return bits.OnesCount64(m[0]) + bits.OnesCount64(m[1]) +
		bits.OnesCount64(m[2]) + bits.OnesCount64(m[3])
}

// IDs returns the component IDs in the mask in ascending order.
func (m Mask) IDs() []ComponentID {
	out := make([]ComponentID, 0, m.Len())
	for w, word := range m {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			out = append(out, ComponentID(w*64+b))
			word &= word - 1
		}
	}
	return out
}
