package lazystore

import (
	"errors"
	"fmt"
)

var (
	// ErrBorrowed is the panic cause when the store is mutated, or a
	// conflicting traversal is started, while a traversal is running.
	ErrBorrowed = errors.New("lazystore: store is borrowed by a running traversal")

	// ErrAliasing is the panic cause when a traversal would hand out the same
	// slot twice. It indicates a bug in the engine, never a data condition.
	ErrAliasing = errors.New("lazystore: traversal position did not strictly increase")

	// ErrInconsistentIndex is wrapped by ConsistencyError.
	ErrInconsistentIndex = errors.New("lazystore: index disagrees with pool")

	// ErrUnknownComponent is returned when a configured component name is not
	// declared on the schema.
	ErrUnknownComponent = errors.New("lazystore: unknown component")

	// ErrInvalidConfig is returned for malformed configuration values.
	ErrInvalidConfig = errors.New("lazystore: invalid config")

	// ErrCorruptSnapshot is returned when a snapshot cannot be decoded.
	ErrCorruptSnapshot = errors.New("lazystore: corrupt snapshot")

	// ErrChecksumMismatch is returned when a snapshot body does not match its
	// checksum.
	ErrChecksumMismatch = errors.New("lazystore: snapshot checksum mismatch")

	// ErrUnsupportedVersion is returned for snapshots written by an unknown
	// format version.
	ErrUnsupportedVersion = errors.New("lazystore: unsupported snapshot version")

	// ErrUnknownCodec is returned when a snapshot names a codec this build
	// does not provide.
	ErrUnknownCodec = errors.New("lazystore: unknown codec")
)

// ConsistencyError reports that an index claimed a slot was occupied while
// the pool holds no record there. Under PolicyTrusting the engine panics with
// this value: the caller bypassed the sanctioned mutation surface and
// continuing would return wrong answers.
type ConsistencyError struct {
	Components []ComponentID
	Position   uint32
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("lazystore: index for components %v has slot %d set but the slot is empty", e.Components, e.Position)
}

func (e *ConsistencyError) Unwrap() error { return ErrInconsistentIndex }
