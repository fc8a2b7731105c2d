// Package parser defines the protocol parser capability and the ordered
// registry shared by every connection.
//
// A Parser sniffs a frame with IsMessage and decodes it with Parse. Parsers
// are shared across connections and must be safe for concurrent use; any
// internal bookkeeping is the parser's own responsibility and must not be
// held across the IsMessage/Parse boundary.
package parser

import (
	"errors"
)

var (
	ErrMalformed        = errors.New("parser: malformed payload")
	ErrInvalidUTF8      = errors.New("parser: payload is not valid UTF-8")
	ErrMissingOperation = errors.New("parser: operation field missing")
	ErrUnknownParser    = errors.New("parser: unknown parser")
	ErrNilParser        = errors.New("parser: nil parser")
	ErrParserPanic      = errors.New("parser: panic during invocation")
)

// Parser is one wire format's detect/decode capability.
type Parser interface {
	// IsMessage reports whether frame looks like this protocol. It must be
	// cheap and free of observable side effects.
	IsMessage(frame []byte) bool

	// Parse decodes frame. On malformed input it returns Sentinel() together
	// with a non-nil error; it never panics on bad input.
	Parse(frame []byte) (Message, error)
}

// Message is the structured result of a successful decode.
type Message struct {
	Operation string `json:"operation" yaml:"operation"`
	// Payload carries raw record bytes for parsers that do not interpret them.
	Payload []byte `json:"-" yaml:"-"`
}

// Sentinel returns the placeholder message substituted for failed decodes.
func Sentinel() Message {
	return Message{}
}

// IsSentinel reports whether m is the placeholder message.
func (m Message) IsSentinel() bool {
	return m.Operation == "" && len(m.Payload) == 0
}

// Result records one parser's handling of one frame.
type Result struct {
	Index    int
	Parser   string
	Detected bool
	Message  Message
	Err      error
}

// Decoded reports whether the parser claimed the frame and decoded it cleanly.
func (r Result) Decoded() bool {
	return r.Detected && r.Err == nil
}
