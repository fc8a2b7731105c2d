package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// NameLengthPrefixed selects LengthPrefixedCodec.
const NameLengthPrefixed = "length_prefixed"

const lengthPrefixSize = 4

var (
	ErrEmptyFrame    = errors.New("codec: empty frame")
	ErrFrameTooLarge = errors.New("codec: frame exceeds max size")
)

// LengthPrefixedCodec frames records with a 4-byte big-endian length prefix
type LengthPrefixedCodec struct {
	maxFrameSize int
}

// NewLengthPrefixedCodec creates a length-prefixed codec
func NewLengthPrefixedCodec(maxFrameSize int) *LengthPrefixedCodec {
	return &LengthPrefixedCodec{maxFrameSize: maxFrameSize}
}

func (*LengthPrefixedCodec) Name() string { return NameLengthPrefixed }

// MaxFrameSize returns the maximum payload size accepted in either direction
func (c *LengthPrefixedCodec) MaxFrameSize() int {
	return c.maxFrameSize
}

// Decode returns the next complete record payload, or nil until one is buffered.
func (c *LengthPrefixedCodec) Decode(buf *bytes.Buffer) ([]byte, error) {
	if buf.Len() < lengthPrefixSize {
		return nil, nil
	}

	length := binary.BigEndian.Uint32(buf.Bytes()[:lengthPrefixSize])
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if uint64(length) > uint64(c.maxFrameSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, c.maxFrameSize)
	}

	if buf.Len() < lengthPrefixSize+int(length) {
		return nil, nil
	}

	buf.Next(lengthPrefixSize)
	frame := make([]byte, length)
	copy(frame, buf.Next(int(length)))

	return frame, nil
}

// Encode writes a length prefix followed by data
func (c *LengthPrefixedCodec) Encode(data []byte, out *bytes.Buffer) error {
	dataLen := len(data)
	if dataLen == 0 {
		return ErrEmptyFrame
	}
	if dataLen > c.maxFrameSize || uint64(dataLen) > math.MaxUint32 {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, dataLen, c.maxFrameSize)
	}

	var prefix [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(dataLen)) //nolint: gosec // bounds checked above

	out.Grow(lengthPrefixSize + dataLen)
	out.Write(prefix[:])
	out.Write(data)

	return nil
}
