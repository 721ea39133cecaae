package service

import (
	"github.com/goccy/go-json"
)

// JSONCodec serializes RPC messages as plain JSON. Messages are ordinary Go
// structs, so the RPC surface shares its shapes with the REST API.
type JSONCodec struct{}

// Name matches the connect protocol's "json" content subtype.
func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}
