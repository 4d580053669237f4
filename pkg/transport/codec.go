package transport

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/cuemby/oneclient/pkg/wire"
	"google.golang.org/grpc/encoding"
)

// codecName is registered with grpc as an alternative to the default proto
// codec. The wire envelopes in pkg/wire are plain structs rather than
// protoc-generated messages (no protoc run happens in this environment, see
// DESIGN.md), so frames are encoded with encoding/gob instead of protobuf.
// gRPC's stream multiplexing, flow control and TLS are unaffected by the
// choice of codec.
const codecName = "oneclient-gob"

func init() {
	encoding.RegisterCodec(gobCodec{})
}

type gobCodec struct{}

func (gobCodec) Name() string { return codecName }

func (gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	switch msg := v.(type) {
	case *wire.ClientMessage:
		if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
			return nil, fmt.Errorf("marshal client message: %w", err)
		}
	case *wire.ServerMessage:
		if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
			return nil, fmt.Errorf("marshal server message: %w", err)
		}
	default:
		return nil, fmt.Errorf("oneclient-gob: unsupported type %T", v)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v any) error {
	dec := gob.NewDecoder(bytes.NewReader(data))
	switch msg := v.(type) {
	case *wire.ClientMessage:
		return dec.Decode(msg)
	case *wire.ServerMessage:
		return dec.Decode(msg)
	default:
		return fmt.Errorf("oneclient-gob: unsupported type %T", v)
	}
}
