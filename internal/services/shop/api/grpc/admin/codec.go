package admin

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Admin messages travel as google.protobuf.Struct so any gRPC client can
// call the service without generated stubs. Typed Go messages are mapped
// onto the Struct through their JSON field names.

// FromStruct decodes msg into dst, rejecting fields dst does not declare.
func FromStruct(msg *structpb.Struct, dst any) error {
	if msg == nil {
		msg = &structpb.Struct{}
	}
	data, err := protojson.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// ToStruct encodes src, a struct with JSON tags, as a Struct.
func ToStruct(src any) (*structpb.Struct, error) {
	data, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("unmarshal struct: %w", err)
	}
	return msg, nil
}
