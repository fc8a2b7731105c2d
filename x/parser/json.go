package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// NameJSON selects JSONParser.
const NameJSON = "json"

// JSONParser decodes UTF-8 JSON objects carrying an "operation" string.
type JSONParser struct{}

func NewJSONParser() *JSONParser {
	return &JSONParser{}
}

func (*JSONParser) String() string { return NameJSON }

// IsMessage claims every frame that is not blank. Shape and encoding are
// checked by Parse so that a bad frame always yields a failure.
func (*JSONParser) IsMessage(frame []byte) bool {
	return len(bytes.TrimSpace(frame)) > 0
}

func (*JSONParser) Parse(frame []byte) (Message, error) {
	if !utf8.Valid(frame) {
		return Sentinel(), ErrInvalidUTF8
	}

	var raw struct {
		Operation *string `json:"operation"`
	}
	if err := json.Unmarshal(frame, &raw); err != nil {
		return Sentinel(), fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if raw.Operation == nil {
		return Sentinel(), ErrMissingOperation
	}

	return Message{Operation: *raw.Operation}, nil
}
