package transport

import (
	"context"
	"sync"
	"testing"

	"github.com/cuemby/oneclient/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePool records every message handed to Send, in order, without ever
// touching a network connection.
type fakePool struct {
	mu   sync.Mutex
	sent []*wire.ClientMessage
}

func (f *fakePool) Send(_ context.Context, msg *wire.ClientMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakePool) SetInboundHandler(func(*wire.ServerMessage)) {}
func (f *fakePool) Close() error                                { return nil }

func (f *fakePool) seqs() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Stream.SequenceNumber)
	}
	return out
}

func TestStream_SendAssignsSequenceInOrder(t *testing.T) {
	pool := &fakePool{}
	s := NewStream(1, pool)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.Send(ctx, &wire.ClientMessage{WriteEvent: &wire.WriteEvent{FileID: "f"}})
	}

	assert.Equal(t, []uint64{0, 1, 2}, pool.seqs())
	assert.Equal(t, 3, s.bufferLen())
}

// TestStream_HandleRequestReplaysRangeAndDropsBelowLo exercises scenario E6:
// send 5 messages, then a MessageRequest(lo=2, hi=4); expect 2,3,4 resent in
// order, 0 and 1 dropped, 5th (seq=4) retained afterwards since it was never acked.
func TestStream_HandleRequestReplaysRangeAndDropsBelowLo(t *testing.T) {
	pool := &fakePool{}
	s := NewStream(7, pool)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.Send(ctx, &wire.ClientMessage{WriteEvent: &wire.WriteEvent{FileID: "f"}})
	}
	require.Equal(t, 5, s.bufferLen())

	s.HandleRequest(ctx, 2, 4)

	// Original 5 sends + 3 replays (seq 2,3,4).
	require.Len(t, pool.sent, 8)
	replaySeqs := pool.seqs()[5:]
	assert.Equal(t, []uint64{2, 3, 4}, replaySeqs)

	// seq 0 and 1 were implicitly acknowledged and dropped; 2,3,4 remain buffered.
	assert.Equal(t, 3, s.bufferLen())
}

func TestStream_HandleAckDropsUpToAndIncludingSeq(t *testing.T) {
	pool := &fakePool{}
	s := NewStream(1, pool)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.Send(ctx, &wire.ClientMessage{WriteEvent: &wire.WriteEvent{FileID: "f"}})
	}

	s.HandleAck(2)

	assert.Equal(t, 2, s.bufferLen())
}

func TestStream_CloseEmitsEndOfStreamAtNextSeq(t *testing.T) {
	pool := &fakePool{}
	s := NewStream(1, pool)
	ctx := context.Background()
	s.Send(ctx, &wire.ClientMessage{WriteEvent: &wire.WriteEvent{FileID: "f"}})

	s.Close(ctx)

	require.Len(t, pool.sent, 2)
	last := pool.sent[1]
	require.NotNil(t, last.EndOfStream)
	assert.Equal(t, uint64(1), last.Stream.SequenceNumber)
}

func TestStream_ResetClearsBufferAndSequence(t *testing.T) {
	pool := &fakePool{}
	s := NewStream(1, pool)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.Send(ctx, &wire.ClientMessage{WriteEvent: &wire.WriteEvent{FileID: "f"}})
	}

	s.Reset()

	assert.Equal(t, 0, s.bufferLen())
	s.Send(ctx, &wire.ClientMessage{WriteEvent: &wire.WriteEvent{FileID: "f"}})
	assert.Equal(t, []uint64{0, 1, 2, 0}, pool.seqs())
}
