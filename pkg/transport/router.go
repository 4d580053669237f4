package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cuemby/oneclient/pkg/log"
	"github.com/cuemby/oneclient/pkg/wire"
)

// Handlers is the set of callbacks the rest of the core registers to receive
// demultiplexed inbound pushes. Each field is optional; a nil field means
// that push kind is ignored.
type Handlers struct {
	OnSubscriptionUpdate  func(*wire.EventSubscriptionUpdate)
	OnFileLocation        func(*wire.FileLocationPush)
	OnFileAttrChanged     func(*wire.FileAttrChangedPush)
	OnPermissionChanged   func(*wire.PermissionChangedPush)
	OnHandshakeResponse   func(*wire.HandshakeResponse)
}

// Router owns every outbound Stream opened on a Pool and demultiplexes
// inbound ServerMessages: MessageRequest/MessageAcknowledgement frames are
// routed to the Stream they name, everything else is fanned out to the
// registered Handlers.
type Router struct {
	pool Pool

	mu      sync.RWMutex
	streams map[uint64]*Stream
	nextID  atomic.Uint64

	handlers Handlers
}

// NewRouter wires itself as pool's inbound handler.
func NewRouter(pool Pool, handlers Handlers) *Router {
	r := &Router{
		pool:     pool,
		streams:  make(map[uint64]*Stream),
		handlers: handlers,
	}
	pool.SetInboundHandler(r.dispatch)
	return r
}

// SendHandshake sends req on a dedicated, unbuffered handshake "stream 0"
// pseudo-channel: the handshake itself needs no replay semantics (a failed
// send is retried wholesale by the Handshaker), so it goes straight to the
// pool rather than through a Stream's sequence buffer.
func (r *Router) SendHandshake(ctx context.Context, req *wire.HandshakeRequest) error {
	return r.pool.Send(ctx, &wire.ClientMessage{Handshake: req})
}

// OpenStream allocates a new outbound logical stream.
func (r *Router) OpenStream() *Stream {
	id := r.nextID.Add(1)
	s := NewStream(id, r.pool)
	r.mu.Lock()
	r.streams[id] = s
	r.mu.Unlock()
	return s
}

// CloseStream sends the end-of-stream marker and deregisters the stream.
func (r *Router) CloseStream(ctx context.Context, s *Stream) {
	s.Close(ctx)
	r.mu.Lock()
	delete(r.streams, s.id)
	r.mu.Unlock()
}

func (r *Router) dispatch(msg *wire.ServerMessage) {
	switch {
	case msg.MessageRequest != nil:
		req := msg.MessageRequest
		if s := r.lookup(req.StreamID); s != nil {
			s.HandleRequest(context.Background(), req.Lo, req.Hi)
		}
	case msg.MessageAcknowledgement != nil:
		ack := msg.MessageAcknowledgement
		if s := r.lookup(ack.StreamID); s != nil {
			s.HandleAck(ack.Seq)
		}
	case msg.Handshake != nil:
		if r.handlers.OnHandshakeResponse != nil {
			r.handlers.OnHandshakeResponse(msg.Handshake)
		}
	case msg.Subscription != nil:
		if r.handlers.OnSubscriptionUpdate != nil {
			r.handlers.OnSubscriptionUpdate(msg.Subscription)
		}
	case msg.FileLocation != nil:
		if r.handlers.OnFileLocation != nil {
			r.handlers.OnFileLocation(msg.FileLocation)
		}
	case msg.FileAttrChanged != nil:
		if r.handlers.OnFileAttrChanged != nil {
			r.handlers.OnFileAttrChanged(msg.FileAttrChanged)
		}
	case msg.PermissionChanged != nil:
		if r.handlers.OnPermissionChanged != nil {
			r.handlers.OnPermissionChanged(msg.PermissionChanged)
		}
	default:
		log.WithComponent("transport.router").Warn().Msg("received server message with no recognized payload")
	}
}

func (r *Router) lookup(id uint64) *Stream {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.streams[id]
}

// ResetAll clears every open stream's buffer and sequence counter. Called
// after a reconnect.
func (r *Router) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.streams {
		s.Reset()
	}
}
