package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/oneclient/pkg/log"
	"github.com/cuemby/oneclient/pkg/metrics"
	"github.com/rs/zerolog"
)

// Task is a unit of deferred work. The context is the scheduler's own: Stop
// cancels it, including for a task that is already running, and then waits
// for running tasks to return.
type Task func(ctx context.Context)

// CancelFunc cancels a scheduled task. Safe to call more than once and safe
// to call after the task has already run.
type CancelFunc func()

// Config tunes the worker pool size.
type Config struct {
	// Workers is the number of goroutines draining the ready queue. Defaults
	// to 4 if zero.
	Workers int
}

// Scheduler is a bounded-worker-pool deferred task queue.
type Scheduler struct {
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	ready chan Task
	wg    sync.WaitGroup

	mu      sync.Mutex
	pending map[*pendingTask]struct{}
}

type pendingTask struct {
	timer     *time.Timer
	cancelled bool
}

// New starts a Scheduler with the given worker pool size.
func New(cfg Config) *Scheduler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		logger:  log.WithComponent("scheduler"),
		ctx:     ctx,
		cancel:  cancel,
		ready:   make(chan Task),
		pending: make(map[*pendingTask]struct{}),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case task, ok := <-s.ready:
			if !ok {
				return
			}
			s.run(task)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("scheduled task panicked, recovered")
		}
	}()
	defer metrics.ScheduledTasksRunTotal.Inc()
	task(s.ctx)
}

// Schedule arms task to run after delay. Returns a CancelFunc that prevents
// the task from running if called before the timer fires.
func (s *Scheduler) Schedule(delay time.Duration, task Task) CancelFunc {
	pt := &pendingTask{}

	pt.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		cancelled := pt.cancelled
		delete(s.pending, pt)
		s.mu.Unlock()
		if cancelled {
			return
		}
		select {
		case s.ready <- task:
		case <-s.ctx.Done():
		}
	})

	s.mu.Lock()
	s.pending[pt] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			pt.cancelled = true
			delete(s.pending, pt)
			s.mu.Unlock()
			pt.timer.Stop()
		})
	}
}

// ScheduleEvery arms task to run repeatedly every interval, starting after
// the first interval elapses, until the returned CancelFunc is called.
// Used for the event engine's periodic emission timers.
func (s *Scheduler) ScheduleEvery(interval time.Duration, task Task) CancelFunc {
	stopped := make(chan struct{})
	var cancelOnce sync.Once
	var mu sync.Mutex
	var cancelCurrent CancelFunc

	var arm func()
	arm = func() {
		mu.Lock()
		cancelCurrent = s.Schedule(interval, func(ctx context.Context) {
			select {
			case <-stopped:
				return
			default:
			}
			task(ctx)
			arm()
		})
		mu.Unlock()
	}
	arm()

	return func() {
		cancelOnce.Do(func() {
			close(stopped)
			mu.Lock()
			if cancelCurrent != nil {
				cancelCurrent()
			}
			mu.Unlock()
		})
	}
}

// Stop cancels every pending task and waits for in-flight tasks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for pt := range s.pending {
		pt.cancelled = true
		pt.timer.Stop()
	}
	s.pending = make(map[*pendingTask]struct{})
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
