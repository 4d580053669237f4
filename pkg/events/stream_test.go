package events

import (
	"sync"
	"testing"
	"time"

	"github.com/cuemby/oneclient/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriteStream(t *testing.T, sched *scheduler.Scheduler) (*EventStream[WriteEvent], *capturingEmitter[WriteEvent]) {
	emitter := &capturingEmitter[WriteEvent]{}
	s := NewEventStream("write", func(e WriteEvent) string { return e.FileID },
		func(e WriteEvent) uint64 { return e.Counter },
		func(e WriteEvent) uint64 { return uint64(e.Size) },
		mergeWrite, emitter.emit, sched)
	return s, emitter
}

type capturingEmitter[E any] struct {
	mu    sync.Mutex
	batch [][]E
}

func (c *capturingEmitter[E]) emit(events []E) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batch = append(c.batch, events)
}

func (c *capturingEmitter[E]) batches() [][]E {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batch
}

func TestEventStream_NoSubscriptionNeverEmits(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Workers: 1})
	defer sched.Stop()
	s, emitter := newTestWriteStream(t, sched)

	for i := 0; i < 1000; i++ {
		s.Push(WriteEvent{FileID: "f1", Counter: 1, Size: 1})
	}

	assert.Empty(t, emitter.batches())
}

func TestEventStream_CounterThresholdTriggersEmission(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Workers: 1})
	defer sched.Stop()
	s, emitter := newTestWriteStream(t, sched)

	s.AddSubscription(Subscription{ID: 1, Counter: 3})

	s.Push(WriteEvent{FileID: "f1", Counter: 1, Size: 1})
	s.Push(WriteEvent{FileID: "f1", Counter: 1, Size: 1})
	assert.Empty(t, emitter.batches())

	s.Push(WriteEvent{FileID: "f1", Counter: 1, Size: 1})
	require.Len(t, emitter.batches(), 1)
	assert.Len(t, emitter.batches()[0], 1) // one merged event for f1, Null aggregator still (only 1 sub)
}

func TestEventStream_SecondCounterSubscriptionUpgradesAggregator(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Workers: 1})
	defer sched.Stop()
	s, emitter := newTestWriteStream(t, sched)

	s.AddSubscription(Subscription{ID: 1, Counter: 10})
	s.AddSubscription(Subscription{ID: 2, Counter: 2})

	s.Push(WriteEvent{FileID: "f1", Counter: 1, Size: 5, FileSize: 100})
	s.Push(WriteEvent{FileID: "f1", Counter: 1, Size: 7, FileSize: 120})

	require.Len(t, emitter.batches(), 1)
	batch := emitter.batches()[0]
	require.Len(t, batch, 1, "fileId aggregator merges same-file events into one")
	assert.Equal(t, uint64(2), batch[0].Counter)
	assert.Equal(t, int64(12), batch[0].Size)
	assert.Equal(t, int64(120), batch[0].FileSize)
}

func TestEventStream_RemoveSubscriptionDowngradesAggregator(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Workers: 1})
	defer sched.Stop()
	s, emitter := newTestWriteStream(t, sched)

	s.AddSubscription(Subscription{ID: 1, Counter: 10})
	s.AddSubscription(Subscription{ID: 2, Counter: 2})
	s.RemoveSubscription(2)

	// Only one subscription remains (counter=10): stream is back to Null
	// aggregation, so two distinct pushes stay distinct.
	s.Push(WriteEvent{FileID: "f1", Counter: 1, Size: 1})
	s.Push(WriteEvent{FileID: "f1", Counter: 1, Size: 1})
	s.Flush()

	require.Len(t, emitter.batches(), 1)
	assert.Len(t, emitter.batches()[0], 2)
}

func TestEventStream_SizeThresholdTriggersEmission(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Workers: 1})
	defer sched.Stop()
	s, emitter := newTestWriteStream(t, sched)

	s.AddSubscription(Subscription{ID: 1, SizeBytes: 100})

	s.Push(WriteEvent{FileID: "f1", Counter: 1, Size: 60})
	assert.Empty(t, emitter.batches())
	s.Push(WriteEvent{FileID: "f1", Counter: 1, Size: 60})
	require.Len(t, emitter.batches(), 1)
}

func TestEventStream_PeriodicTimerEmitsOnTimeThreshold(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Workers: 1})
	defer sched.Stop()
	s, emitter := newTestWriteStream(t, sched)

	s.AddSubscription(Subscription{ID: 1, TimeMs: 20, Counter: 1_000_000})
	s.Push(WriteEvent{FileID: "f1", Counter: 1, Size: 1})

	require.Eventually(t, func() bool {
		return len(emitter.batches()) >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestEventStream_FlushEmitsWhateverIsPending(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Workers: 1})
	defer sched.Stop()
	s, emitter := newTestWriteStream(t, sched)

	s.AddSubscription(Subscription{ID: 1, Counter: 1_000_000})
	s.Push(WriteEvent{FileID: "f1", Counter: 1, Size: 1})
	assert.Empty(t, emitter.batches())

	s.Flush()
	require.Len(t, emitter.batches(), 1)
}

func TestNewTruncateEvent_MergesAsFileSizeOnlyChange(t *testing.T) {
	trunc := NewTruncateEvent("f1", 50, 1)
	merged := mergeWrite(WriteEvent{FileID: "f1", Counter: 1, Size: 10, FileSize: 100, Blocks: []Block{{Offset: 0, Size: 80}}}, trunc)

	assert.Equal(t, int64(50), merged.FileSize)
	assert.Equal(t, uint64(2), merged.Counter)
	require.Len(t, merged.Blocks, 1)
	assert.Equal(t, int64(50), merged.Blocks[0].Size, "block clamped to the new, smaller file size")
}
