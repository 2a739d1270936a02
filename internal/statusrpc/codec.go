package statusrpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered once at package init so both the status
// server and any client dialing it exchange plain JSON frames instead
// of requiring generated protobuf bindings — this surface has exactly
// two simple, internal message shapes, not a cross-team wire contract
// that would justify a .proto/protoc build step.
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
