package parser

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// NameProtobuf selects ProtobufParser.
const NameProtobuf = "protobuf"

// structFieldsNumber is google.protobuf.Struct's "fields" map field.
const structFieldsNumber protowire.Number = 1

// ProtobufParser decodes google.protobuf.Struct messages carrying an
// "operation" string value.
type ProtobufParser struct{}

func NewProtobufParser() *ProtobufParser {
	return &ProtobufParser{}
}

func (*ProtobufParser) String() string { return NameProtobuf }

// IsMessage checks that the frame opens with a Struct "fields" entry tag.
func (*ProtobufParser) IsMessage(frame []byte) bool {
	num, typ, n := protowire.ConsumeTag(frame)
	if n < 0 {
		return false
	}
	return num == structFieldsNumber && typ == protowire.BytesType
}

func (*ProtobufParser) Parse(frame []byte) (Message, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(frame, &s); err != nil {
		return Sentinel(), fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	v, ok := s.GetFields()["operation"]
	if !ok {
		return Sentinel(), ErrMissingOperation
	}
	op, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return Sentinel(), fmt.Errorf("%w: operation is %T", ErrMalformed, v.GetKind())
	}

	return Message{Operation: op.StringValue}, nil
}
