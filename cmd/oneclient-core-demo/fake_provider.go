package main

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/cuemby/oneclient/pkg/auth"
	"github.com/cuemby/oneclient/pkg/log"
	"github.com/cuemby/oneclient/pkg/transport"
	"github.com/cuemby/oneclient/pkg/wire"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

// fakeProvider is a minimal in-process stand-in for a real Onedata
// provider, used only by this demo binary to exercise pkg/clientcontext
// end-to-end without a real cluster. It answers every handshake with
// HandshakeOK, echoes subscription requests back as installed, and answers
// a fileLocation fetch with a location valid for 60 seconds.
type fakeProvider struct {
	logger  zerolog.Logger
	nextSub atomic.Uint64
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{logger: log.WithComponent("demo.fakeprovider")}
}

// Connect implements transport.ProviderHandler.
func (p *fakeProvider) Connect(stream transport.ConnectStream) error {
	for {
		msg, err := stream.Recv()
		if err != nil {
			return err
		}

		switch {
		case msg.Handshake != nil:
			if err := stream.Send(&wire.ServerMessage{Handshake: &wire.HandshakeResponse{
				SessionID:       msg.Handshake.SessionID,
				Status:          wire.HandshakeOK,
				ProtocolVersion: auth.ProtocolVersion,
			}}); err != nil {
				return err
			}
		case msg.Subscribe != nil:
			if err := p.handleSubscribe(stream, msg.Subscribe); err != nil {
				return err
			}
		case msg.SubscribeCancel != nil:
			p.logger.Debug().Uint64("id", msg.SubscribeCancel.ID).Msg("subscription cancelled")
		case msg.ReadEvent != nil:
			p.logger.Info().Str("file_id", msg.ReadEvent.FileID).Int64("size", msg.ReadEvent.Size).Msg("received read event batch")
		case msg.WriteEvent != nil:
			p.logger.Info().Str("file_id", msg.WriteEvent.FileID).Int64("size", msg.WriteEvent.Size).Msg("received write event batch")
		case msg.EndOfStream != nil:
			p.logger.Debug().Uint64("stream_id", msg.EndOfStream.StreamID).Msg("stream closed")
		}
	}
}

func (p *fakeProvider) handleSubscribe(stream transport.ConnectStream, req *wire.SubscriptionRequest) error {
	if req.Kind == wire.SubscriptionFileLocation {
		return stream.Send(&wire.ServerMessage{FileLocation: &wire.FileLocationPush{
			FileID:          req.FileID,
			StorageID:       "demo-storage",
			StorageFileID:   "demo-storage-file-" + req.FileID,
			ValidForSeconds: 60,
		}})
	}

	return stream.Send(&wire.ServerMessage{Subscription: &wire.EventSubscriptionUpdate{
		ID:        p.nextSub.Add(1),
		Kind:      req.Kind,
		FileID:    req.FileID,
		Counter:   req.Counter,
		TimeMs:    req.TimeMs,
		SizeBytes: req.SizeBytes,
	}})
}

// startFakeProvider listens on an OS-assigned localhost port and serves it
// in the background. Returns the chosen address and a stop function.
func startFakeProvider() (addr string, stop func(), err error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("start fake provider: %w", err)
	}

	srv := grpc.NewServer()
	srv.RegisterService(&transport.ServiceDesc, newFakeProvider())

	go func() {
		_ = srv.Serve(lis)
	}()

	return lis.Addr().String(), srv.GracefulStop, nil
}
