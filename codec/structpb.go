package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// StructPB encodes map[string]any as a protobuf google.protobuf.Struct.
// Values must be JSON-like (nil, bool, numbers, string, []any, map[string]any);
// numbers decode as float64.
type StructPB struct{}

var _ Codec[map[string]any] = StructPB{}

func (StructPB) Encode(v map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(v)
	if err != nil {
		return nil, fmt.Errorf("structpb encode: %w", err)
	}
	return proto.Marshal(s)
}

func (StructPB) Decode(b []byte) (map[string]any, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("structpb decode: %w", err)
	}
	return s.AsMap(), nil
}
