package parser

import (
	"fmt"
	"strconv"
)

type entry struct {
	parser Parser
	label  string
}

// Registry is an ordered, immutable list of parsers. It is built once and
// shared by reference; order is the dispatch order.
type Registry struct {
	entries []entry
}

// NewRegistry builds a registry holding parsers in the given order.
func NewRegistry(parsers ...Parser) (*Registry, error) {
	entries := make([]entry, 0, len(parsers))
	for i, p := range parsers {
		if p == nil {
			return nil, fmt.Errorf("%w at position %d", ErrNilParser, i)
		}
		entries = append(entries, entry{parser: p, label: label(i, p)})
	}
	return &Registry{entries: entries}, nil
}

// NewRegistryFromNames builds a registry from parser names such as
// "kafka" or "json", in the given order.
func NewRegistryFromNames(names []string) (*Registry, error) {
	parsers := make([]Parser, 0, len(names))
	for _, name := range names {
		p, err := New(name)
		if err != nil {
			return nil, err
		}
		parsers = append(parsers, p)
	}
	return NewRegistry(parsers...)
}

// Len returns the number of registered parsers
func (r *Registry) Len() int {
	return len(r.entries)
}

// Parser returns the parser at position i
func (r *Registry) Parser(i int) Parser {
	return r.entries[i].parser
}

// Label returns the "<index>:<name>" label of the parser at position i
func (r *Registry) Label(i int) string {
	return r.entries[i].label
}

// Labels returns every parser label in registry order
func (r *Registry) Labels() []string {
	labels := make([]string, len(r.entries))
	for i, e := range r.entries {
		labels[i] = e.label
	}
	return labels
}

func label(i int, p Parser) string {
	name := fmt.Sprintf("%T", p)
	if s, ok := p.(fmt.Stringer); ok {
		name = s.String()
	}
	return strconv.Itoa(i) + ":" + name
}

// Names lists the parser names accepted by New
func Names() []string {
	return []string{NameJSON, NameKafka, NameProtobuf, NameYAML}
}

// New creates a parser by name
func New(name string) (Parser, error) {
	switch name {
	case NameJSON:
		return NewJSONParser(), nil
	case NameKafka:
		return NewKafkaParser(), nil
	case NameProtobuf:
		return NewProtobufParser(), nil
	case NameYAML:
		return NewYAMLParser(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownParser, name)
	}
}
