// Package codec turns records into snapshot payloads and back.
//
// A snapshot stores the name of the codec that wrote it, and loading looks
// the codec up by that name. A name therefore identifies a wire format for
// good: never register two formats under one name.
package codec

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Codec encodes single records. Implementations must be safe for concurrent
// use.
type Codec interface {
	// Name is the stable identifier written into snapshot headers. It must
	// fit in 255 bytes.
	Name() string
	// Append encodes v and appends the encoding to dst.
	Append(dst []byte, v any) ([]byte, error)
	// Decode decodes data, as produced by Append, into v.
	Decode(data []byte, v any) error
}

// ErrDuplicate is returned by Register for a name already in use.
var ErrDuplicate = errors.New("codec: name already registered")

// Default is the codec used when none is configured.
var Default Codec = GoJSON{}

var (
	mu       sync.RWMutex
	registry = map[string]Codec{}
)

func init() {
	for _, c := range []Codec{JSON{}, GoJSON{}} {
		if err := Register(c); err != nil {
			panic(err)
		}
	}
}

// Register makes c available to Lookup, and so to snapshot loading and
// configuration files.
func Register(c Codec) error {
	name := c.Name()
	if name == "" || len(name) > 255 {
		return fmt.Errorf("codec: invalid name %q", name)
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	registry[name] = c
	return nil
}

// Lookup returns the registered codec called name.
func Lookup(name string) (Codec, bool) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := registry[name]
	return c, ok
}

// Names returns the registered codec names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return slices.Sorted(maps.Keys(registry))
}
