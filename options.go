package lazystore

import (
	"fmt"

	"github.com/edwinsyarief/lazystore/codec"
)

// Policy decides how a traversal treats index bits that disagree with the
// records they point at. It is fixed per store at construction; every query
// on that store uses it.
type Policy uint8

const (
	// PolicyDefensive re-verifies every requested component on each matched
	// record and silently skips records that do not hold them, as well as
	// slots that turned out to be empty.
	PolicyDefensive Policy = iota
	// PolicyTrusting relies on index bits for indexed components. A set bit
	// pointing at an empty slot panics with *ConsistencyError. A record whose
	// presence was changed behind the index's back is yielded as matched.
	PolicyTrusting
)

// String returns the configuration name of the policy.
func (p Policy) String() string {
	switch p {
	case PolicyDefensive:
		return "defensive"
	case PolicyTrusting:
		return "trusting"
	default:
		return fmt.Sprintf("Policy(%d)", uint8(p))
	}
}

// ParsePolicy resolves a configuration name to a policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "defensive":
		return PolicyDefensive, nil
	case "trusting":
		return PolicyTrusting, nil
	default:
		return 0, fmt.Errorf("%w: unknown policy %q", ErrInvalidConfig, s)
	}
}

// indexSpec is an index requested at construction, by ID or by name.
type indexSpec struct {
	name     string
	id       ComponentID
	byName   bool
	encoding IndexEncoding
}

type options struct {
	logger      *Logger
	events      *EventBus
	codec       codec.Codec
	indexes     []indexSpec
	capacity    int
	policy      Policy
	compression Compression
}

func defaultOptions() options {
	return options{
		logger:   NopLogger(),
		codec:    codec.Default,
		capacity: chunkSize,
		policy:   PolicyDefensive,
	}
}

// Option configures a Store.
type Option func(*options)

// WithCapacity pre-allocates storage for n records.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithPolicy sets the stale-index policy of the store.
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithIndex registers an index for component c at construction. Records
// inserted later keep it in sync; it can still be dropped and rebuilt.
// c is normally a Component returned by Declare.
func WithIndex(c interface{ ID() ComponentID }, enc IndexEncoding) Option {
	return func(o *options) {
		o.indexes = append(o.indexes, indexSpec{id: c.ID(), encoding: enc})
	}
}

// WithIndexNamed registers an index by declared component name. Unknown
// names make NewFromConfig fail and New panic.
func WithIndexNamed(name string, enc IndexEncoding) Option {
	return func(o *options) {
		o.indexes = append(o.indexes, indexSpec{name: name, byName: true, encoding: enc})
	}
}

// WithLogger sets the logger. Passing nil disables logging.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NopLogger()
		}
		o.logger = l
	}
}

// WithEvents makes the store publish lifecycle events on bus.
func WithEvents(bus *EventBus) Option {
	return func(o *options) {
		o.events = bus
	}
}

// WithCodec sets the codec used to encode records in snapshots.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression sets the compression applied to snapshot bodies.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}
