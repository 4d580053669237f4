package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_RunsAfterDelay(t *testing.T) {
	s := New(Config{Workers: 2})
	defer s.Stop()

	done := make(chan struct{})
	s.Schedule(10*time.Millisecond, func(ctx context.Context) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run in time")
	}
}

func TestSchedule_CancelPreventsRun(t *testing.T) {
	s := New(Config{Workers: 2})
	defer s.Stop()

	var ran atomic.Bool
	cancel := s.Schedule(50*time.Millisecond, func(ctx context.Context) {
		ran.Store(true)
	})
	cancel()
	cancel() // idempotent

	time.Sleep(150 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestSchedule_PanicRecovered(t *testing.T) {
	s := New(Config{Workers: 1})
	defer s.Stop()

	done := make(chan struct{})
	s.Schedule(5*time.Millisecond, func(ctx context.Context) {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("panicking task never completed")
	}

	// scheduler must still be usable afterwards
	done2 := make(chan struct{})
	s.Schedule(5*time.Millisecond, func(ctx context.Context) {
		close(done2)
	})
	select {
	case <-done2:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not recover from panic")
	}
}

func TestScheduleEvery_RunsRepeatedlyUntilCancelled(t *testing.T) {
	s := New(Config{Workers: 2})
	defer s.Stop()

	var count atomic.Int32
	cancel := s.ScheduleEvery(10*time.Millisecond, func(ctx context.Context) {
		count.Add(1)
	})

	time.Sleep(120 * time.Millisecond)
	cancel()
	seen := count.Load()
	require.GreaterOrEqual(t, seen, int32(3))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, seen, count.Load())
}
