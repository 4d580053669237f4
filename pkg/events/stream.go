package events

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cuemby/oneclient/pkg/log"
	"github.com/cuemby/oneclient/pkg/metrics"
	"github.com/cuemby/oneclient/pkg/scheduler"
	"github.com/rs/zerolog"
)

// Emitter sends a batch of aggregated events of type E to the provider.
// Implemented by the transport layer (via a small wire-conversion shim);
// faked out in tests.
type Emitter[E any] func(events []E)

// Subscription is one server-pushed emission rule for an EventStream.
type Subscription struct {
	ID        uint64
	Counter   uint64 // 0 = unset
	TimeMs    uint64 // 0 = unset
	SizeBytes uint64 // 0 = unset
}

// EventStream aggregates and emits one event type (ReadEvent or
// WriteEvent), grounded on eventStream.h's EventStream<EventType,
// SubscriptionType> template.
type EventStream[E any] struct {
	name        string
	keyFunc     func(E) string
	counterFunc func(E) uint64
	sizeFunc    func(E) uint64
	mergeFunc   func(a, b E) E

	emit   Emitter[E]
	sched  *scheduler.Scheduler
	logger zerolog.Logger

	mu                sync.Mutex
	aggregator        aggregator[E]
	counterThresholds *thresholdMultiset
	sizeThresholds    *thresholdMultiset
	timeThresholds    *thresholdMultiset
	totalCounter      uint64
	totalSize         uint64
	subs              map[uint64]Subscription
	counterSubCount   int // real counter-bearing subscriptions, excluding the multiset's sentinel
	periodicCancel    scheduler.CancelFunc
}

// NewEventStream constructs an EventStream for event type E.
func NewEventStream[E any](
	name string,
	keyFunc func(E) string,
	counterFunc func(E) uint64,
	sizeFunc func(E) uint64,
	mergeFunc func(a, b E) E,
	emit Emitter[E],
	sched *scheduler.Scheduler,
) *EventStream[E] {
	return &EventStream[E]{
		name:              name,
		keyFunc:           keyFunc,
		counterFunc:       counterFunc,
		sizeFunc:          sizeFunc,
		mergeFunc:         mergeFunc,
		emit:              emit,
		sched:             sched,
		logger:            log.WithComponent("events." + name),
		aggregator:        newNullAggregator[E](),
		counterThresholds: newThresholdMultiset(math.MaxUint64),
		sizeThresholds:    newThresholdMultiset(math.MaxUint64),
		timeThresholds:    newThresholdMultiset(math.MaxUint64),
		subs:              make(map[uint64]Subscription),
	}
}

// Push aggregates e and emits immediately if the resulting state satisfies
// any registered emission rule.
func (s *EventStream[E]) Push(e E) {
	metrics.EventsPushedTotal.WithLabelValues(s.name).Inc()
	start := time.Now()

	s.mu.Lock()
	s.aggregator.add(e)
	s.totalCounter += s.counterFunc(e)
	s.totalSize += s.sizeFunc(e)
	satisfied := s.isEmissionRuleSatisfiedLocked()
	var drained []E
	if satisfied {
		drained = s.drainLocked()
	}
	s.mu.Unlock()

	if drained != nil {
		metrics.EventEmissionLatency.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
		metrics.EventsEmittedTotal.WithLabelValues(s.name).Add(float64(len(drained)))
		s.emit(drained)
	}
}

func (s *EventStream[E]) isEmissionRuleSatisfiedLocked() bool {
	return s.totalCounter >= s.counterThresholds.Min() || s.totalSize >= s.sizeThresholds.Min()
}

func (s *EventStream[E]) drainLocked() []E {
	drained := s.aggregator.drain()
	s.totalCounter = 0
	s.totalSize = 0
	return drained
}

// AddSubscription installs sub's thresholds, emits immediately if the
// emission rule is now satisfied, and reschedules the periodic timer if
// sub's time threshold is lower than any previously registered one.
// Grounded on eventStream.h's addSubscription.
func (s *EventStream[E]) AddSubscription(sub Subscription) {
	s.mu.Lock()

	s.subs[sub.ID] = sub
	if sub.Counter != 0 {
		s.counterThresholds.Insert(sub.Counter)
		s.counterSubCount++
	}
	if sub.SizeBytes != 0 {
		s.sizeThresholds.Insert(sub.SizeBytes)
	}

	s.upgradeAggregatorLocked()

	timeChanged := false
	if sub.TimeMs != 0 {
		prevMin := s.timeThresholds.Min()
		s.timeThresholds.Insert(sub.TimeMs)
		timeChanged = s.timeThresholds.Min() < prevMin
	}

	satisfied := s.isEmissionRuleSatisfiedLocked()
	var drained []E
	if satisfied {
		drained = s.drainLocked()
	}
	minTimeMs := s.timeThresholds.Min()
	s.mu.Unlock()

	if drained != nil {
		metrics.EventsEmittedTotal.WithLabelValues(s.name).Add(float64(len(drained)))
		s.emit(drained)
	}
	if timeChanged {
		s.reschedulePeriodic(minTimeMs)
	}
}

// RemoveSubscription reverses AddSubscription's threshold registration and
// downgrades the aggregator back to Null once at most one counter-bearing
// subscription remains.
func (s *EventStream[E]) RemoveSubscription(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return
	}
	delete(s.subs, id)

	if sub.Counter != 0 {
		s.counterThresholds.Remove(sub.Counter)
		s.counterSubCount--
	}
	if sub.SizeBytes != 0 {
		s.sizeThresholds.Remove(sub.SizeBytes)
	}
	if sub.TimeMs != 0 {
		s.timeThresholds.Remove(sub.TimeMs)
	}

	s.downgradeAggregatorLocked()
}

// upgradeAggregatorLocked swaps in a FileId aggregator once a second real
// counter-bearing subscription is registered. counterSubCount tracks only
// real subscriptions; counterThresholds.Size() is one higher because the
// multiset is seeded with a sentinel, so it can't be compared directly.
func (s *EventStream[E]) upgradeAggregatorLocked() {
	if s.counterSubCount >= 2 {
		if _, already := s.aggregator.(*fileIDAggregator[E]); !already {
			pending := s.aggregator.drain()
			agg := newFileIDAggregator(s.keyFunc, s.mergeFunc)
			for _, e := range pending {
				agg.add(e)
			}
			s.aggregator = agg
		}
	}
}

func (s *EventStream[E]) downgradeAggregatorLocked() {
	if s.counterSubCount <= 1 {
		if _, isNull := s.aggregator.(*nullAggregator[E]); !isNull {
			pending := s.aggregator.drain()
			agg := newNullAggregator[E]()
			for _, e := range pending {
				agg.add(e)
			}
			s.aggregator = agg
		}
	}
}

// reschedulePeriodic arms the periodic emission timer at intervalMs,
// cancelling any previous one.
func (s *EventStream[E]) reschedulePeriodic(intervalMs uint64) {
	s.mu.Lock()
	if s.periodicCancel != nil {
		s.periodicCancel()
		s.periodicCancel = nil
	}
	s.mu.Unlock()

	if intervalMs == 0 || intervalMs == math.MaxUint64 {
		return
	}
	interval := time.Duration(intervalMs) * time.Millisecond
	s.mu.Lock()
	s.periodicCancel = s.sched.ScheduleEvery(interval, func(ctx context.Context) {
		s.Flush()
	})
	s.mu.Unlock()
}

// Flush drains and emits whatever is currently aggregated, regardless of
// whether an emission rule is satisfied. Used by the owning context's
// shutdown sequence to flush before tearing down the transport.
func (s *EventStream[E]) Flush() {
	s.mu.Lock()
	drained := s.drainLocked()
	s.mu.Unlock()
	if len(drained) > 0 {
		metrics.EventsEmittedTotal.WithLabelValues(s.name).Add(float64(len(drained)))
		s.emit(drained)
	}
}
