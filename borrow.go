package lazystore

import "fmt"

// borrowState tracks running traversals of a store. Shared traversals may
// overlap each other; an exclusive traversal excludes every other traversal
// and every structural mutation. It is the runtime stand-in for a borrow
// checker: the engine hands out *E pointers into pool storage, and two live
// mutable views of one record, or a mutation that reshapes what a running
// traversal is reading, would break the positional-uniqueness argument.
type borrowState struct {
	shared    int
	exclusive bool
}

func (b *borrowState) String() string {
	switch {
	case b.exclusive:
		return "exclusively"
	case b.shared > 0:
		return fmt.Sprintf("shared (%d)", b.shared)
	default:
		return "not"
	}
}

func (b *borrowState) acquireShared(op string) {
	if b.exclusive {
		panic(fmt.Errorf("%w: %s inside an exclusive traversal", ErrBorrowed, op))
	}
	b.shared++
}

func (b *borrowState) releaseShared() {
	b.shared--
}

func (b *borrowState) acquireExclusive(op string) {
	if b.exclusive || b.shared > 0 {
		panic(fmt.Errorf("%w: %s while store is %s borrowed", ErrBorrowed, op, b))
	}
	b.exclusive = true
}

func (b *borrowState) releaseExclusive() {
	b.exclusive = false
}

// checkRead panics if an exclusive traversal is running. Handing out a *E
// then could alias a record the traversal has already yielded.
func (b *borrowState) checkRead(op string) {
	if b.exclusive {
		panic(fmt.Errorf("%w: %s inside an exclusive traversal", ErrBorrowed, op))
	}
}

// checkMutate panics if any traversal is running.
func (b *borrowState) checkMutate(op string) {
	if b.exclusive || b.shared > 0 {
		panic(fmt.Errorf("%w: %s while store is %s borrowed", ErrBorrowed, op, b))
	}
}

// cursor walks the set bits of a candidate vector in ascending order and
// enforces that no position is handed out twice.
type cursor struct {
	next uint
	last int64
}

func newCursor() cursor {
	return cursor{last: -1}
}

// advance records pos as the next yielded position. Positions must strictly
// increase; anything else would let one traversal alias a record.
func (c *cursor) advance(pos uint) {
	if int64(pos) <= c.last {
		panic(fmt.Errorf("%w: %d after %d", ErrAliasing, pos, c.last))
	}
	c.last = int64(pos)
	c.next = pos + 1
}
