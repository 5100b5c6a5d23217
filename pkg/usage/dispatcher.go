package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dmitrymomot/quotagate/pkg/logger"
	"github.com/dmitrymomot/quotagate/pkg/metrics"
)

// Dispatcher defaults.
const (
	DefaultConcurrency = 64
	DefaultTaskTimeout = 10 * time.Second
)

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Dispatcher runs tasks in the background, detached from the cancellation
// of the request that spawned them but keeping its values. Concurrency is
// bounded; excess tasks wait for a slot without blocking the caller.
type Dispatcher struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithConcurrency bounds the number of tasks running at once.
func WithConcurrency(n int64) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithTaskTimeout bounds each task's run time.
func WithTaskTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithDispatcherLogger sets the logger for failed tasks.
func WithDispatcherLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// WithDispatcherMetrics tracks tasks in flight.
func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sem:     semaphore.NewWeighted(DefaultConcurrency),
		timeout: DefaultTaskTimeout,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With(logger.Component("usage_dispatcher"))
	return d
}

// Go schedules task. ctx supplies values such as the request ID; its
// cancellation does not stop the task. Errors are logged, never returned.
func (d *Dispatcher) Go(ctx context.Context, name string, task Task) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	d.metrics.TaskStarted()
	detached := context.WithoutCancel(ctx)

	go func() {
		defer d.wg.Done()
		defer d.metrics.TaskFinished()

		if err := d.sem.Acquire(detached, 1); err != nil {
			d.log.ErrorContext(detached, "background task not started", logger.Event(name), logger.Error(err))
			return
		}
		defer d.sem.Release(1)

		tctx, cancel := context.WithTimeout(detached, d.timeout)
		defer cancel()

		start := time.Now()
		if err := task(tctx); err != nil {
			d.log.ErrorContext(tctx, "background task failed",
				logger.Event(name), logger.Duration(time.Since(start)), logger.Error(err))
		}
	}()

	return nil
}

// Close stops accepting tasks and waits for scheduled ones to finish or ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
