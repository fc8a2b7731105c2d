package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"
)

// kafkaAPIVersions is the API key of an ApiVersions request.
const kafkaAPIVersions = 18

type operationDoc struct {
	Operation string `json:"operation" yaml:"operation"`
}

// buildPayload renders one frame body of the given kind carrying operation.
// The raw kind sends data unchanged.
func buildPayload(kind, operation string, data []byte) ([]byte, error) {
	switch kind {
	case "json":
		return json.Marshal(operationDoc{Operation: operation})
	case "yaml":
		body, err := yaml.Marshal(operationDoc{Operation: operation})
		if err != nil {
			return nil, err
		}
		return append([]byte("---\n"), body...), nil
	case "protobuf":
		s, err := structpb.NewStruct(map[string]any{"operation": operation})
		if err != nil {
			return nil, err
		}
		return proto.Marshal(s)
	case "kafka":
		return kafkaRequest(kafkaAPIVersions, 0, 1, "ingress-client"), nil
	case "raw":
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported payload kind %q", kind)
	}
}

// kafkaRequest builds a size-prefixed request header with an empty body.
func kafkaRequest(apiKey, apiVersion int16, correlationID int32, clientID string) []byte {
	body := make([]byte, 0, 10+len(clientID))
	body = binary.BigEndian.AppendUint16(body, uint16(apiKey))        //nolint: gosec // wire value is signed
	body = binary.BigEndian.AppendUint16(body, uint16(apiVersion))    //nolint: gosec // wire value is signed
	body = binary.BigEndian.AppendUint32(body, uint32(correlationID)) //nolint: gosec // wire value is signed
	body = binary.BigEndian.AppendUint16(body, uint16(len(clientID))) //nolint: gosec // client ids are short
	body = append(body, clientID...)

	frame := binary.BigEndian.AppendUint32(nil, uint32(len(body))) //nolint: gosec // bounded by clientID
	return append(frame, body...)
}
