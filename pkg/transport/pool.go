package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cuemby/oneclient/pkg/log"
	"github.com/cuemby/oneclient/pkg/metrics"
	"github.com/cuemby/oneclient/pkg/wire"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

// Pool is the unordered connection pool: many physical connections, each
// with its own I/O goroutine, dispatching sends
// round-robin and fanning inbound frames in to a single handler. Ordering
// and reliability are the Stream's job, not the Pool's.
type Pool interface {
	// Send dispatches msg over one of the pooled connections. Fire-and-forget:
	// a non-nil error means the message was not handed to the network and the
	// caller (a Stream) is responsible for keeping it buffered for replay.
	Send(ctx context.Context, msg *wire.ClientMessage) error
	// SetInboundHandler installs the callback invoked for every ServerMessage
	// received on any pooled connection. Frames received before a handler is
	// installed are dropped.
	SetInboundHandler(func(*wire.ServerMessage))
	// Close tears down every pooled connection.
	Close() error
}

// GRPCPool is a Pool backed by one or more bidirectional gRPC streams
// opened on a single underlying connection, generalized to several logical
// I/O streams multiplexed over the pool.
type GRPCPool struct {
	cc      grpc.ClientConnInterface
	streams []*clientStream
	next    atomic.Uint64

	mu      sync.RWMutex
	handler func(*wire.ServerMessage)

	logger  zerolog.Logger
	closeWG sync.WaitGroup
	cancel  context.CancelFunc
}

// NewGRPCPool opens size bidirectional streams on cc and starts one
// receive-loop goroutine per stream.
func NewGRPCPool(ctx context.Context, cc grpc.ClientConnInterface, size int) (*GRPCPool, error) {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &GRPCPool{
		cc:     cc,
		cancel: cancel,
		logger: log.WithComponent("transport.pool"),
	}

	for i := 0; i < size; i++ {
		s, err := newClientStream(ctx, cc)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("open pooled stream %d: %w", i, err)
		}
		p.streams = append(p.streams, s)
	}

	for _, s := range p.streams {
		p.closeWG.Add(1)
		go p.receiveLoop(s)
	}

	metrics.PoolConnectionsActive.Set(float64(len(p.streams)))
	return p, nil
}

func (p *GRPCPool) SetInboundHandler(h func(*wire.ServerMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

func (p *GRPCPool) receiveLoop(s *clientStream) {
	defer p.closeWG.Done()
	for {
		msg, err := s.recv()
		if err != nil {
			p.logger.Debug().Err(err).Msg("pooled connection receive loop ended")
			return
		}
		p.mu.RLock()
		h := p.handler
		p.mu.RUnlock()
		if h != nil {
			h(msg)
		}
	}
}

func (p *GRPCPool) Send(ctx context.Context, msg *wire.ClientMessage) error {
	if len(p.streams) == 0 {
		return fmt.Errorf("transport: pool has no connections")
	}
	idx := p.next.Add(1) % uint64(len(p.streams))
	s := p.streams[idx]
	if err := s.send(msg); err != nil {
		return fmt.Errorf("transport: send on pooled connection: %w", err)
	}
	return nil
}

func (p *GRPCPool) Close() error {
	p.cancel()
	for _, s := range p.streams {
		_ = s.ClientStream.CloseSend()
	}
	p.closeWG.Wait()
	metrics.PoolConnectionsActive.Set(0)
	return nil
}
