// Package scheduler runs periodic refresh tasks. Each task gets its own
// goroutine; a failing run never stops the loop, it only shortens the sleep
// before the next attempt to the task's backoff.
package scheduler

import (
	"context"
	"sync"
	"time"

	"vault-refresh-agent/pkg/logger"
	"vault-refresh-agent/pkg/telemetry"
)

// Task is a named periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	// Backoff replaces Interval as the sleep after a failed run. Zero means
	// failures wait the full interval like successes.
	Backoff time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler owns the refresh goroutines and their bounded shutdown.
type Scheduler struct {
	wg       sync.WaitGroup
	runs     telemetry.Int64Counter
	duration telemetry.Int64Histogram
}

// New creates a Scheduler.
func New() *Scheduler {
	meter := telemetry.GetMeter("")
	runs, _ := telemetry.NewInt64Counter(meter, "refresh_runs_total", "Refresh task executions")
	duration, _ := telemetry.NewInt64Histogram(meter, "refresh_run_duration_ms", "Refresh task execution time", "ms")
	return &Scheduler{runs: runs, duration: duration}
}

// Start launches the task loop. The first run happens immediately. After a
// successful run the loop sleeps the task interval; after a failed run it
// sleeps only the backoff, so a failing task retries on the backoff cadence
// rather than waiting out a long interval.
func (s *Scheduler) Start(ctx context.Context, task Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger.Info("refresh task started", "task", task.Name, "interval", task.Interval.String())

		for {
			err := s.runOnce(ctx, task)

			delay := task.Interval
			if err != nil && task.Backoff > 0 {
				delay = task.Backoff
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				logger.Info("refresh task stopped", "task", task.Name)
				return
			}
		}
	}()
}

func (s *Scheduler) runOnce(ctx context.Context, task Task) error {
	tracer := telemetry.GetTracer("")
	runCtx, span := tracer.Start(ctx, "refresh."+task.Name)
	defer span.End()

	start := time.Now()
	err := task.Run(runCtx)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		logger.Warn("refresh task failed", "task", task.Name, "error", err)
	}
	telemetry.AddInt64Counter(ctx, s.runs, 1,
		telemetry.StringAttribute("task", task.Name),
		telemetry.StringAttribute("outcome", outcome))
	telemetry.RecordInt64Histogram(ctx, s.duration, elapsed.Milliseconds(),
		telemetry.StringAttribute("task", task.Name))

	return err
}

// Wait blocks until every task loop has exited or the timeout elapses. It
// reports whether all loops finished in time.
func (s *Scheduler) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
