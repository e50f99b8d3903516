// Package deferred runs work scheduled after an interaction response has
// been sent.
//
// Delivery is best effort: a full queue drops the task, and tasks still
// queued when Shutdown's grace period ends are abandoned. Nothing is
// persisted or retried.
package deferred

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/interflow/internal/metrics"
)

// Task is one unit of deferred work.
type Task func(ctx context.Context) error

// Defaults.
const (
	DefaultWorkers     = 8
	DefaultQueueSize   = 256
	DefaultTaskTimeout = 2 * time.Minute
)

// ErrClosed is returned by Submit after Shutdown.
var ErrClosed = errors.New("deferred executor closed")

// ErrQueueFull is returned by Submit when the queue has no room.
var ErrQueueFull = errors.New("deferred queue full")

type job struct {
	name string
	task Task
}

// Option configures an Executor.
type Option func(*Executor)

// WithTaskTimeout bounds each task.
func WithTaskTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithMetrics counts task outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// Executor is a fixed worker pool fed by a bounded queue.
//
// Thread-safety: Submit and Shutdown may be called from any goroutine.
type Executor struct {
	queue   chan job
	timeout time.Duration
	metrics *metrics.Metrics

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New starts workers goroutines draining a queue of queueSize tasks.
func New(workers, queueSize int, opts ...Option) *Executor {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}
	base, cancel := context.WithCancel(context.Background())
	e := &Executor{
		queue:   make(chan job, queueSize),
		timeout: DefaultTaskTimeout,
		base:    base,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.wg.Add(workers)
	for range workers {
		go e.work()
	}
	return e
}

// Submit enqueues t without blocking.
func (e *Executor) Submit(name string, t Task) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.metrics.Deferred("dropped")
		return ErrClosed
	}
	select {
	case e.queue <- job{name: name, task: t}:
		return nil
	default:
		e.metrics.Deferred("dropped")
		slog.Warn("deferred task dropped", "task", name, "reason", "queue full")
		return ErrQueueFull
	}
}

func (e *Executor) work() {
	defer e.wg.Done()
	for j := range e.queue {
		e.run(j)
	}
}

func (e *Executor) run(j job) {
	if e.base.Err() != nil {
		e.metrics.Deferred("dropped")
		slog.Warn("deferred task dropped", "task", j.name, "reason", "shutdown")
		return
	}

	ctx, cancel := context.WithTimeout(e.base, e.timeout)
	defer cancel()

	start := time.Now()
	err := safeRun(ctx, j.task)
	if err != nil {
		e.metrics.Deferred("failed")
		slog.Warn("deferred task failed", "task", j.name, "duration", time.Since(start), "error", err)
		return
	}
	e.metrics.Deferred("succeeded")
	slog.Debug("deferred task done", "task", j.name, "duration", time.Since(start))
}

func safeRun(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t(ctx)
}

// Shutdown stops accepting tasks and waits for queued ones. When ctx ends
// first, running tasks are cancelled, the rest are dropped, and ctx.Err()
// is returned.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}
