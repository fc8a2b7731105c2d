package parser

import (
	"bytes"
	"encoding/binary"
	"sync/atomic"
)

// NameKafka selects KafkaParser.
const NameKafka = "kafka"

// kafkaHeaderSize covers size, api_key, api_version and correlation_id.
const kafkaHeaderSize = 12

var kafkaAPIKeys = map[int16]string{
	0:  "produce",
	1:  "fetch",
	2:  "list_offsets",
	3:  "metadata",
	8:  "offset_commit",
	9:  "offset_fetch",
	10: "find_coordinator",
	11: "join_group",
	12: "heartbeat",
	13: "leave_group",
	14: "sync_group",
	15: "describe_groups",
	16: "list_groups",
	18: "api_versions",
	19: "create_topics",
	20: "delete_topics",
}

// KafkaParser treats every frame as an opaque record and keeps the raw bytes.
// It performs no structural validation; when the frame happens to hold a
// whole Kafka request the operation is named after its API key.
type KafkaParser struct {
	frames atomic.Uint64
	bytes  atomic.Uint64
}

func NewKafkaParser() *KafkaParser {
	return &KafkaParser{}
}

func (*KafkaParser) String() string { return NameKafka }

func (*KafkaParser) IsMessage([]byte) bool { return true }

func (p *KafkaParser) Parse(frame []byte) (Message, error) {
	p.frames.Add(1)
	p.bytes.Add(uint64(len(frame)))

	return Message{
		Operation: kafkaOperation(frame),
		Payload:   bytes.Clone(frame),
	}, nil
}

// KafkaStats is a snapshot of the records seen by a KafkaParser.
type KafkaStats struct {
	Frames uint64 `json:"frames"`
	Bytes  uint64 `json:"bytes"`
}

func (p *KafkaParser) Stats() KafkaStats {
	return KafkaStats{Frames: p.frames.Load(), Bytes: p.bytes.Load()}
}

func kafkaOperation(frame []byte) string {
	if len(frame) < kafkaHeaderSize {
		return ""
	}

	size := int32(binary.BigEndian.Uint32(frame[0:4])) //nolint: gosec // wire value is signed
	if int64(size) != int64(len(frame)-4) {
		return ""
	}

	apiKey := int16(binary.BigEndian.Uint16(frame[4:6]))     //nolint: gosec // wire value is signed
	apiVersion := int16(binary.BigEndian.Uint16(frame[6:8])) //nolint: gosec // wire value is signed
	if apiVersion < 0 {
		return ""
	}

	return kafkaAPIKeys[apiKey]
}
