// ABOUTME: JSON wire codec for the deployment RPC surface
// ABOUTME: Registered globally; calls opt in via the json content subtype

package deploy

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content subtype for deployment calls. Both ends of
// the connection resolve the codec by this name.
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec marshals RPC messages as plain JSON. The deployment service
// speaks JSON rather than protobuf so manifests stay inspectable on the wire
// and server implementations need no generated stubs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}
