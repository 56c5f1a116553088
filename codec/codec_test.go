package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string   `json:"name"`
	Tags  []string `json:"tags"`
	Score float64  `json:"score"`
}

// upper is a stand-in for a user codec.
type upper struct{ JSON }

func (upper) Name() string { return "test-upper" }

// go test -run ^TestRegistry$ ./codec -count 1
func TestRegistry(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, name, c.Name())
	}
	_, ok := Lookup("msgpack")
	assert.False(t, ok)

	if err := Register(upper{}); err != nil {
		require.ErrorIs(t, err, ErrDuplicate, "registered by an earlier run")
	}
	assert.ErrorIs(t, Register(upper{}), ErrDuplicate)
	assert.ErrorIs(t, Register(JSON{}), ErrDuplicate)
	c, ok := Lookup("test-upper")
	require.True(t, ok)
	assert.Equal(t, upper{}, c)
	assert.Equal(t, []string{"go-json", "json", "test-upper"}, Names())
}

// go test -run ^TestAppendKeepsPrefix$ ./codec -count 1
func TestAppendKeepsPrefix(t *testing.T) {
	in := payload{Name: "unit", Tags: []string{"a"}, Score: 2}
	for _, c := range []Codec{JSON{}, GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			buf, err := c.Append([]byte("hdr"), in)
			require.NoError(t, err)
			assert.Equal(t, "hdr", string(buf[:3]))

			var out payload
			require.NoError(t, c.Decode(buf[3:], &out))
			assert.Equal(t, in, out)
		})
	}
}

// go test -run ^TestCodecsAreInterchangeable$ ./codec -count 1
func TestCodecsAreInterchangeable(t *testing.T) {
	in := payload{Name: "unit", Tags: []string{"a", "b"}, Score: 1.5}

	data, err := GoJSON{}.Append(nil, in)
	require.NoError(t, err)
	var out payload
	require.NoError(t, JSON{}.Decode(data, &out))
	assert.Equal(t, in, out)

	data, err = JSON{}.Append(nil, in)
	require.NoError(t, err)
	out = payload{}
	require.NoError(t, GoJSON{}.Decode(data, &out))
	assert.Equal(t, in, out)
}

// go test -run ^TestAppendUnsupportedValue$ ./codec -count 1
func TestAppendUnsupportedValue(t *testing.T) {
	for _, c := range []Codec{JSON{}, GoJSON{}} {
		dst := []byte("x")
		got, err := c.Append(dst, make(chan int))
		assert.Error(t, err, c.Name())
		assert.Equal(t, dst, got)
	}
}
