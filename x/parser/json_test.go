package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONParser_Parse_Operation(t *testing.T) {
	t.Parallel()

	p := NewJSONParser()
	frame := []byte(`{"operation":"start"}`)

	require.True(t, p.IsMessage(frame))
	msg, err := p.Parse(frame)
	require.NoError(t, err)
	assert.Equal(t, "start", msg.Operation)
	assert.False(t, msg.IsSentinel())
}

func TestJSONParser_Parse_Truncated(t *testing.T) {
	t.Parallel()

	p := NewJSONParser()
	frame := []byte(`{`)

	require.True(t, p.IsMessage(frame))
	msg, err := p.Parse(frame)
	require.ErrorIs(t, err, ErrMalformed)
	assert.True(t, msg.IsSentinel())
	assert.Equal(t, Sentinel(), msg)
}

func TestJSONParser_Parse_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame []byte
		want  error
	}{
		{name: "invalid utf8", frame: []byte{'{', 0xff, 0xfe, '}'}, want: ErrInvalidUTF8},
		{name: "missing operation", frame: []byte(`{"op":"start"}`), want: ErrMissingOperation},
		{name: "operation not a string", frame: []byte(`{"operation":7}`), want: ErrMalformed},
		{name: "concatenated objects", frame: []byte(`{"operation":"a"}{"operation":"b"}`), want: ErrMalformed},
		{name: "array", frame: []byte(`[1,2]`), want: ErrMalformed},
	}

	p := NewJSONParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := p.Parse(tt.frame)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, msg.IsSentinel())
		})
	}
}

func TestJSONParser_IsMessage(t *testing.T) {
	t.Parallel()

	p := NewJSONParser()
	assert.True(t, p.IsMessage([]byte("  \n{\"operation\":\"x\"}")))
	assert.True(t, p.IsMessage([]byte("[1]")))
	assert.True(t, p.IsMessage([]byte(`"operation":"start"}`)))
	assert.True(t, p.IsMessage([]byte("\xff\xfe{")))
	assert.False(t, p.IsMessage([]byte(" \t\r\n")))
	assert.False(t, p.IsMessage(nil))
}
