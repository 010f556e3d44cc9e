// Package background runs best-effort tasks that must never block the caller:
// storage cleanup after a file is removed from a draft and capacity counter
// corrections after a roster recount. Failures are logged, never retried.
package background

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const defaultTimeout = 15 * time.Second

// Task is a unit of best-effort work.
type Task func(ctx context.Context) error

// Scheduler accepts best-effort tasks.
type Scheduler interface {
	Go(ctx context.Context, name string, task Task)
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Runner executes tasks on their own goroutine, detached from the caller's
// cancellation but bounded by a timeout.
type Runner struct {
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	failures atomic.Int64
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{timeout: cfg.Timeout, logger: cfg.Logger}
}

// Go schedules task and returns immediately. Values carried by ctx are kept;
// its deadline and cancellation are not. Tasks scheduled after Close are
// dropped with a warning.
func (r *Runner) Go(ctx context.Context, name string, task Task) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("background task dropped after shutdown", "task", name)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	go func() {
		defer r.wg.Done()
		defer cancel()

		start := time.Now()
		if err := r.run(taskCtx, task); err != nil {
			r.failures.Add(1)
			r.logger.Warn("background task failed",
				"task", name,
				"error", err,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return
		}
		r.logger.Debug("background task done", "task", name, "duration_ms", time.Since(start).Milliseconds())
	}()
}

func (r *Runner) run(ctx context.Context, task Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return task(ctx)
}

// Wait blocks until every scheduled task has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close stops accepting tasks and waits for running ones, or until ctx is
// done.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining background tasks: %w", ctx.Err())
	}
}

// Failures returns how many tasks have failed since start.
func (r *Runner) Failures() int64 {
	return r.failures.Load()
}

// Inline runs tasks synchronously on the caller's goroutine. Failures are
// logged like Runner's. Useful in tests that assert on side effects.
type Inline struct{}

func (Inline) Go(ctx context.Context, name string, task Task) {
	if err := task(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("background task failed", "task", name, "error", err)
	}
}
