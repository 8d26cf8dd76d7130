package rulrpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Codec is the content subtype both ends must use.
const Codec = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	if raw, ok := v.(*json.RawMessage); ok {
		if raw == nil || len(*raw) == 0 {
			return []byte("null"), nil
		}
		return *raw, nil
	}
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if raw, ok := v.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rulrpc: decode %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return Codec }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
