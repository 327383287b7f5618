package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName 客户端通过 grpc.CallContentSubtype(CodecName) 选用
const CodecName = "json"

// jsonCodec 以 JSON 作为 gRPC 消息编码
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
