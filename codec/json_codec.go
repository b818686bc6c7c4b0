package codec

import (
	"encoding/json"
)

// JSONCodec uses encoding/json. Header field names are fixed by the wire format,
// so the struct tags on message.Header are the contract.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
