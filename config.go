package lazystore

import (
	"fmt"
	"io"

	"github.com/edwinsyarief/lazystore/codec"
	"gopkg.in/yaml.v3"
)

// Config is the file form of the store options:
//
//	policy: defensive
//	capacity: 4096
//	indexes:
//	  - component: Position
//	    encoding: dense
//	  - component: Poisoned
//	    encoding: sparse
//	snapshot:
//	  codec: go-json
//	  compression: zstd
//	log:
//	  level: info
type Config struct {
	Policy   string         `yaml:"policy"`
	Indexes  []IndexConfig  `yaml:"indexes"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Log      LogConfig      `yaml:"log"`
	Capacity int            `yaml:"capacity"`
}

// IndexConfig names a component to index.
type IndexConfig struct {
	Component string `yaml:"component"`
	Encoding  string `yaml:"encoding"`
}

// SnapshotConfig selects snapshot encoding.
type SnapshotConfig struct {
	Codec       string `yaml:"codec"`
	Compression string `yaml:"compression"`
}

// LogConfig selects the log level. An empty level disables logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig decodes a YAML config from r.
func LoadConfig(r io.Reader) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &c, nil
}

// Options validates the config and converts it into store options.
func (c *Config) Options() ([]Option, error) {
	var opts []Option

	policy, err := ParsePolicy(c.Policy)
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithPolicy(policy))

	if c.Capacity < 0 {
		return nil, fmt.Errorf("%w: negative capacity %d", ErrInvalidConfig, c.Capacity)
	}
	opts = append(opts, WithCapacity(c.Capacity))

	for _, ic := range c.Indexes {
		if ic.Component == "" {
			return nil, fmt.Errorf("%w: index entry without component", ErrInvalidConfig)
		}
		enc, err := ParseIndexEncoding(ic.Encoding)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithIndexNamed(ic.Component, enc))
	}

	if c.Snapshot.Codec != "" {
		cd, ok := codec.Lookup(c.Snapshot.Codec)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, c.Snapshot.Codec)
		}
		opts = append(opts, WithCodec(cd))
	}
	comp, err := ParseCompression(c.Snapshot.Compression)
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithCompression(comp))

	if c.Log.Level != "" {
		l, err := NewLogger(c.Log.Level)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithLogger(l))
	}
	return opts, nil
}
