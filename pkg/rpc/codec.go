package rpc

import "encoding/json"

// jsonCodec implements grpc's encoding.Codec over plain JSON, so the
// gossip service can run on real grpc-go transport without a .proto
// file or protoc-generated message types.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "json"
}
