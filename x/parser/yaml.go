package parser

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// NameYAML selects YAMLParser.
const NameYAML = "yaml"

var yamlDocumentMarker = []byte("---")

// YAMLParser decodes YAML documents that open with an explicit "---" marker.
// Only the first document of a frame is read.
type YAMLParser struct{}

func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

func (*YAMLParser) String() string { return NameYAML }

func (*YAMLParser) IsMessage(frame []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(frame, " \t\r\n"), yamlDocumentMarker)
}

func (*YAMLParser) Parse(frame []byte) (Message, error) {
	if !utf8.Valid(frame) {
		return Sentinel(), ErrInvalidUTF8
	}

	var raw struct {
		Operation *string `yaml:"operation"`
	}
	if err := yaml.Unmarshal(frame, &raw); err != nil {
		return Sentinel(), fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if raw.Operation == nil {
		return Sentinel(), ErrMissingOperation
	}

	return Message{Operation: *raw.Operation}, nil
}
