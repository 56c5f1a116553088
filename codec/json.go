package codec

import "encoding/json"

// JSON encodes records with encoding/json. Its output is read by any JSON
// tool, and by GoJSON.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Append(dst []byte, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return dst, err
	}
	return append(dst, b...), nil
}

func (JSON) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }
