package events

import (
	"sync"
	"sync/atomic"

	"github.com/cuemby/oneclient/pkg/log"
	"github.com/cuemby/oneclient/pkg/metrics"
	"github.com/cuemby/oneclient/pkg/scheduler"
	"github.com/cuemby/oneclient/pkg/wire"
	"github.com/rs/zerolog"
)

// State is the event engine's activity state, surfaced for metrics/tests.
type State int32

const (
	StateIdle State = iota
	StateActive
)

// Manager owns the read and write event streams and reports idle/active
// state transitions. A single file-I/O-driving goroutine calls
// PushRead/PushWrite/PushTruncate; provider-pushed subscription updates
// arrive through HandleSubscriptionUpdate, which routes them to the matching
// stream's AddSubscription/RemoveSubscription.
type Manager struct {
	Reads  *EventStream[ReadEvent]
	Writes *EventStream[WriteEvent]

	state  atomic.Int32
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewManager builds a Manager whose streams emit through sendRead/sendWrite
// (typically small adapters converting to wire.ClientMessage and handing to
// a transport.Stream).
func NewManager(sendRead Emitter[ReadEvent], sendWrite Emitter[WriteEvent], sched *scheduler.Scheduler) *Manager {
	m := &Manager{logger: log.WithComponent("events.manager")}

	m.Reads = NewEventStream("read", func(e ReadEvent) string { return e.FileID },
		func(e ReadEvent) uint64 { return e.Counter },
		func(e ReadEvent) uint64 { return uint64(e.Size) },
		mergeRead, sendRead, sched)

	m.Writes = NewEventStream("write", func(e WriteEvent) string { return e.FileID },
		func(e WriteEvent) uint64 { return e.Counter },
		func(e WriteEvent) uint64 { return uint64(e.Size) },
		mergeWrite, sendWrite, sched)

	return m
}

// PushRead records a read of size bytes at the given blocks for fileID and
// marks the engine active.
func (m *Manager) PushRead(fileID string, size int64, blocks []Block) {
	m.markActive()
	m.Reads.Push(ReadEvent{FileID: fileID, Counter: 1, Size: size, Blocks: blocks})
}

// PushWrite records a write.
func (m *Manager) PushWrite(fileID string, size, fileSize int64, blocks []Block) {
	m.markActive()
	m.Writes.Push(WriteEvent{FileID: fileID, Counter: 1, Size: size, FileSize: fileSize, Blocks: blocks})
}

// PushTruncate records a truncation as a size-only write event.
func (m *Manager) PushTruncate(fileID string, fileSize int64) {
	m.markActive()
	m.Writes.Push(NewTruncateEvent(fileID, fileSize, 1))
}

func (m *Manager) markActive() {
	if m.state.Swap(int32(StateActive)) == int32(StateIdle) {
		metrics.EventEngineActive.Set(1)
		m.logger.Debug().Msg("event engine transitioned idle -> active")
	}
}

// MarkIdle transitions the engine back to idle. Nothing in the core calls it
// on its own: once a push has marked the engine active, it stays active
// until MarkIdle is called.
func (m *Manager) MarkIdle() {
	if m.state.Swap(int32(StateIdle)) == int32(StateActive) {
		metrics.EventEngineActive.Set(0)
		m.logger.Debug().Msg("event engine transitioned active -> idle")
	}
}

// CurrentState reports the engine's activity state.
func (m *Manager) CurrentState() State {
	return State(m.state.Load())
}

// HandleSubscriptionUpdate installs or removes a subscription on the
// appropriate stream based on its Kind, or applies a cancellation.
func (m *Manager) HandleSubscriptionUpdate(update *wire.EventSubscriptionUpdate) {
	sub := Subscription{ID: update.ID, Counter: update.Counter, TimeMs: update.TimeMs, SizeBytes: update.SizeBytes}

	var stream interface {
		AddSubscription(Subscription)
		RemoveSubscription(uint64)
	}
	switch update.Kind {
	case wire.SubscriptionReadEvents:
		stream = m.Reads
	case wire.SubscriptionWriteEvents:
		stream = m.Writes
	default:
		return
	}

	if update.Cancelled {
		stream.RemoveSubscription(update.ID)
		return
	}
	stream.AddSubscription(sub)
}

// Flush drains both streams immediately, used during shutdown.
func (m *Manager) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads.Flush()
	m.Writes.Flush()
}
