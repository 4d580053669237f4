package transport

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/cuemby/oneclient/pkg/log"
	"github.com/cuemby/oneclient/pkg/metrics"
	"github.com/cuemby/oneclient/pkg/wire"
	"github.com/rs/zerolog"
)

// bufferedMessage is one sent-but-not-yet-acknowledged frame; the buffer is
// always iterated/trimmed in sequence order.
type bufferedMessage struct {
	seq uint64
	msg *wire.ClientMessage
}

// Stream is one outbound logical message sequence multiplexed over a Pool.
// It owns a monotonically increasing sequence counter and retains every
// sent message until the peer acknowledges or implicitly supersedes it.
type Stream struct {
	id   uint64
	pool Pool

	mu     sync.Mutex
	seq    uint64
	buffer []bufferedMessage // kept sorted by seq ascending

	logger zerolog.Logger
}

// NewStream creates a stream bound to id, sending through pool.
func NewStream(id uint64, pool Pool) *Stream {
	return &Stream{
		id:     id,
		pool:   pool,
		logger: log.WithComponent("transport.stream").With().Uint64("stream_id", id).Logger(),
	}
}

// Send assigns the next sequence number, retains a copy for replay, and
// fire-and-forgets the physical send. A pool error never reaches the
// caller: the message simply stays buffered until requested or acked.
func (s *Stream) Send(ctx context.Context, msg *wire.ClientMessage) {
	s.mu.Lock()
	seq := s.seq
	s.seq++
	msg.Stream = &wire.MessageStreamInfo{StreamID: s.id, SequenceNumber: seq}
	s.buffer = append(s.buffer, bufferedMessage{seq: seq, msg: msg})
	s.reportBufferDepthLocked()
	s.mu.Unlock()

	if err := s.pool.Send(ctx, msg); err != nil {
		s.logger.Debug().Err(err).Uint64("seq", seq).Msg("send failed, message stays buffered for replay")
	}
}

// HandleRequest resends every buffered message with lo <= seq <= hi, in
// ascending sequence order, and drops (treats as implicitly acknowledged)
// anything with seq < lo.
func (s *Stream) HandleRequest(ctx context.Context, lo, hi uint64) {
	s.mu.Lock()
	s.dropLocked(lo)
	var toResend []*wire.ClientMessage
	for _, b := range s.buffer {
		if b.seq >= lo && b.seq <= hi {
			toResend = append(toResend, b.msg)
		}
	}
	s.reportBufferDepthLocked()
	s.mu.Unlock()

	if len(toResend) > 0 {
		metrics.StreamRepliesTotal.WithLabelValues(strconv.FormatUint(s.id, 10)).Add(float64(len(toResend)))
	}
	for _, msg := range toResend {
		if err := s.pool.Send(ctx, msg); err != nil {
			s.logger.Debug().Err(err).Msg("replay send failed, message stays buffered")
		}
	}
}

// HandleAck drops every buffered message with seq <= ackSeq.
func (s *Stream) HandleAck(ackSeq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(ackSeq + 1)
	s.reportBufferDepthLocked()
}

// dropLocked removes every buffered entry with seq < floor. Caller holds mu.
func (s *Stream) dropLocked(floor uint64) {
	i := sort.Search(len(s.buffer), func(i int) bool { return s.buffer[i].seq >= floor })
	s.buffer = s.buffer[i:]
}

// reportBufferDepthLocked publishes the current buffer depth gauge. Caller holds mu.
func (s *Stream) reportBufferDepthLocked() {
	metrics.StreamBufferDepth.WithLabelValues(strconv.FormatUint(s.id, 10)).Set(float64(len(s.buffer)))
}

// Close emits an end-of-stream marker at the next sequence number.
func (s *Stream) Close(ctx context.Context) {
	s.mu.Lock()
	seq := s.seq
	s.seq++
	s.mu.Unlock()

	msg := &wire.ClientMessage{
		Stream:      &wire.MessageStreamInfo{StreamID: s.id, SequenceNumber: seq},
		EndOfStream: &wire.EndOfStreamMarker{StreamID: s.id},
	}
	if err := s.pool.Send(ctx, msg); err != nil {
		s.logger.Debug().Err(err).Msg("end-of-stream send failed")
	}
}

// Reset empties the buffer and zeroes the sequence counter. Used after
// reconnect or session reestablishment.
func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = nil
	s.seq = 0
	s.reportBufferDepthLocked()
}

// bufferLen reports the number of unacknowledged messages, for metrics/tests.
func (s *Stream) bufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}
