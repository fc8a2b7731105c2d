package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dummyCodec struct{}

func (dummyCodec) Name() string                           { return "dummy" }
func (dummyCodec) Decode(_ *bytes.Buffer) ([]byte, error) { return []byte{1, 2, 3}, nil }
func (dummyCodec) Encode(_ []byte, _ *bytes.Buffer) error { return nil }

func TestRegistry_Default(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	def := r.Default()
	require.NotNil(t, def)

	_, ok := def.(*RawCodec)
	require.True(t, ok)
	assert.Equal(t, NameRaw, def.Name())
}

func TestRegistry_BuiltinLengthPrefixed(t *testing.T) {
	t.Parallel()

	r := NewRegistryWithMaxFrameSize(64)
	got, ok := r.Get(NameLengthPrefixed)
	require.True(t, ok)

	lp, ok := got.(*LengthPrefixedCodec)
	require.True(t, ok)
	assert.Equal(t, 64, lp.MaxFrameSize())
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(dummyCodec{})

	got, ok := r.Get("dummy")
	require.True(t, ok)

	frame, err := got.Decode(new(bytes.Buffer))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, frame)

	assert.Equal(t, []string{"dummy", NameLengthPrefixed, NameRaw}, r.Names())
}

func TestRegistry_GetUnknown(t *testing.T) {
	t.Parallel()

	_, ok := NewRegistry().Get("netstring")
	assert.False(t, ok)
}
