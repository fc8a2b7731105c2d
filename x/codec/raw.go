package codec

import (
	"bytes"
)

// NameRaw selects RawCodec.
const NameRaw = "raw"

// RawCodec treats whatever bytes are buffered at decode time as one frame.
// It imposes no boundary of its own: a frame may hold a partial message, one
// message or several, depending on how the bytes arrived.
type RawCodec struct{}

// NewRawCodec creates a raw pass-through codec
func NewRawCodec() *RawCodec {
	return &RawCodec{}
}

func (*RawCodec) Name() string { return NameRaw }

// Decode takes every available byte as a single frame and empties buf.
func (*RawCodec) Decode(buf *bytes.Buffer) ([]byte, error) {
	if buf.Len() == 0 {
		return nil, nil
	}

	frame := make([]byte, buf.Len())
	copy(frame, buf.Bytes())
	buf.Reset()

	return frame, nil
}

// Encode appends data to out verbatim.
func (*RawCodec) Encode(data []byte, out *bytes.Buffer) error {
	_, err := out.Write(data)
	return err
}
