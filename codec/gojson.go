package codec

import gojson "github.com/goccy/go-json"

// GoJSON encodes records with github.com/goccy/go-json. It writes the same
// format as JSON, faster.
type GoJSON struct{}

func (GoJSON) Name() string { return "go-json" }

func (GoJSON) Append(dst []byte, v any) ([]byte, error) {
	b, err := gojson.Marshal(v)
	if err != nil {
		return dst, err
	}
	return append(dst, b...), nil
}

func (GoJSON) Decode(data []byte, v any) error { return gojson.Unmarshal(data, v) }
