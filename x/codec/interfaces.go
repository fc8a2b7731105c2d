package codec

import (
	"bytes"
)

// FrameDecoder carves a connection buffer into frames.
//
// Decode returns at most one frame per call. A nil frame with a nil error means
// more input is needed; it is never a stream end. Returned frames are freshly
// allocated and do not alias buf.
type FrameDecoder interface {
	Decode(buf *bytes.Buffer) ([]byte, error)
}

// FrameEncoder serializes outbound bytes into out.
type FrameEncoder interface {
	Encode(data []byte, out *bytes.Buffer) error
}

// Codec is a named decoder/encoder pair. Implementations hold no per-connection
// state and are safe for concurrent use.
type Codec interface {
	FrameDecoder
	FrameEncoder
	Name() string
}

// Registry manages the framing codecs selectable by name
type Registry interface {
	Register(codec Codec)
	Get(name string) (Codec, bool)
	Default() Codec
	Names() []string
}
