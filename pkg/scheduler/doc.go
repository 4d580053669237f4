/*
Package scheduler provides the deferred-task queue used throughout the
oneclient core for periodic and delayed work: the event engine's periodic
emission timers, the metadata cache's expiry sweeps and location renewals,
and the auth session's token-refresh timers all go through one Scheduler
rather than each owning its own goroutine-and-ticker.

# Architecture

The scheduler runs a bounded pool of worker goroutines pulling from a single
ready queue. Schedule(delay, task) arms a timer; when it fires the task is
handed to the worker pool rather than run on the timer's own goroutine, so a
slow task never blocks the next timer from firing.

	Schedule(delay, task) ─▶ time.AfterFunc ─▶ ready queue ─▶ worker pool

Cancel is idempotent and race-safe: cancelling a task that already started
running has no effect on that running invocation, and cancelling a task
twice is a no-op both times.

# Usage

	sched := scheduler.New(scheduler.Config{Workers: 4})
	defer sched.Stop()

	cancel := sched.Schedule(30*time.Second, func(context.Context) {
		renewLocation(fileID)
	})
	// later, if the location is evicted first:
	cancel()

A panicking task is recovered and logged; it never brings down the
scheduler or other in-flight tasks.
*/
package scheduler
