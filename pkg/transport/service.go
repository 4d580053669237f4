package transport

import (
	"context"

	"github.com/cuemby/oneclient/pkg/wire"
	"google.golang.org/grpc"
)

// serviceName and methodName identify the single bidirectional-streaming RPC
// the core needs: a free-form frame pipe onto which the streaming transport
// layer multiplexes its own ordered logical streams. Declared by hand
// against grpc's generic streaming API rather than generated from a .proto
// file (see codec.go).
const (
	serviceName    = "oneclient.Provider"
	connectMethod  = "/oneclient.Provider/Connect"
)

// ConnectStream is the server-side view of one physical connection: a
// bidirectional pipe of wire envelopes.
type ConnectStream interface {
	Send(*wire.ServerMessage) error
	Recv() (*wire.ClientMessage, error)
	Context() context.Context
}

// ProviderHandler is implemented by whatever embeds the transport pool on
// the provider side (out of scope for the client core, but declared here so
// the service descriptor below has a concrete handler type).
type ProviderHandler interface {
	Connect(ConnectStream) error
}

type serverStreamWrapper struct {
	grpc.ServerStream
}

func (s *serverStreamWrapper) Send(m *wire.ServerMessage) error {
	return s.ServerStream.SendMsg(m)
}

func (s *serverStreamWrapper) Recv() (*wire.ClientMessage, error) {
	msg := new(wire.ClientMessage)
	if err := s.ServerStream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func connectStreamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(ProviderHandler).Connect(&serverStreamWrapper{stream})
}

// ServiceDesc is registered on the provider side via
// grpc.Server.RegisterService(&ServiceDesc, handler).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ProviderHandler)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       connectStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "pkg/transport/service.go",
}

// clientStream wraps the low-level grpc.ClientStream with the envelope
// types used throughout the core.
type clientStream struct {
	grpc.ClientStream
}

func newClientStream(ctx context.Context, cc grpc.ClientConnInterface) (*clientStream, error) {
	desc := &grpc.StreamDesc{
		StreamName:    "Connect",
		ServerStreams: true,
		ClientStreams: true,
	}
	s, err := cc.NewStream(ctx, desc, connectMethod, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	return &clientStream{ClientStream: s}, nil
}

func (c *clientStream) send(msg *wire.ClientMessage) error {
	return c.ClientStream.SendMsg(msg)
}

func (c *clientStream) recv() (*wire.ServerMessage, error) {
	msg := new(wire.ServerMessage)
	if err := c.ClientStream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}
