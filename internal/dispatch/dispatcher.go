// Package dispatch serializes reply generation: one FIFO worker runs queued
// tasks one at a time, and every backend call is spaced by a minimum interval.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/showroombot/internal/retry"
)

var (
	ErrQueueFull = errors.New("dispatch queue full")
	ErrStopped   = errors.New("dispatcher stopped")
)

var tracer = otel.Tracer("showroombot/dispatch")

// Task is one unit of serialized work.
type Task func(ctx context.Context) error

type job struct {
	id   string
	name string
	run  Task
	done chan error
}

// Config tunes a Dispatcher.
type Config struct {
	MinInterval time.Duration // spacing between backend calls; 0 disables
	QueueSize   int
	Retry       retry.Policy
	Classify    retry.Classifier
}

// Dispatcher owns the single worker and the call limiter.
type Dispatcher struct {
	queue    chan job
	limiter  *rate.Limiter
	retry    retry.Policy
	classify retry.Classifier

	depth   atomic.Int64
	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
}

func New(cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &Dispatcher{
		queue:    make(chan job, cfg.QueueSize),
		limiter:  rate.NewLimiter(limit, 1),
		retry:    cfg.Retry,
		classify: cfg.Classify,
		done:     make(chan struct{}),
	}
}

// Run processes queued tasks in order until ctx is cancelled. A failing or
// panicking task is logged and the next task still runs.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			d.stopped = true
			d.mu.Unlock()
			d.drain()
			return nil
		case j := <-d.queue:
			d.depth.Add(-1)
			err := d.runJob(ctx, j)
			if j.done != nil {
				j.done <- err
			}
		}
	}
}

// Enqueue appends a task to the FIFO chain without waiting for it.
func (d *Dispatcher) Enqueue(name string, task Task) error {
	return d.enqueue(job{id: uuid.NewString(), name: name, run: task})
}

// Submit enqueues a task and waits for its result.
func (d *Dispatcher) Submit(ctx context.Context, name string, task Task) error {
	j := job{id: uuid.NewString(), name: name, run: task, done: make(chan error, 1)}
	if err := d.enqueue(j); err != nil {
		return err
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call runs one backend call under the spacing limiter, retrying per the
// configured policy. It is meant to be invoked from inside a Task.
func (d *Dispatcher) Call(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	policy := d.retry
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, err error, wait time.Duration) {
			slog.Warn("backend call failed, retrying", "attempt", attempt, "wait", wait, "error", err)
		}
	}
	return retry.Do(ctx, policy, d.classify, func(ctx context.Context) (string, error) {
		if err := d.limiter.Wait(ctx); err != nil {
			return "", err
		}
		ctx, span := tracer.Start(ctx, "dispatch.call")
		defer span.End()
		out, err := fn(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return out, err
	})
}

// QueueDepth returns the number of tasks waiting to run.
func (d *Dispatcher) QueueDepth() int {
	return int(d.depth.Load())
}

// Done is closed when Run returns.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

func (d *Dispatcher) enqueue(j job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.queue <- j:
		d.depth.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) runJob(ctx context.Context, j job) (err error) {
	ctx, span := tracer.Start(ctx, "dispatch.task")
	span.SetAttributes(attribute.String("task.id", j.id), attribute.String("task.name", j.name))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
			slog.Error("dispatch task panicked", "task", j.name, "id", j.id, "panic", r, "stack", string(debug.Stack()))
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			slog.Warn("dispatch task failed", "task", j.name, "id", j.id, "error", err)
		} else {
			slog.Debug("dispatch task done", "task", j.name, "id", j.id, "elapsed", time.Since(start))
		}
	}()
	return j.run(ctx)
}

func (d *Dispatcher) drain() {
	for {
		select {
		case j := <-d.queue:
			d.depth.Add(-1)
			if j.done != nil {
				j.done <- ErrStopped
			}
		default:
			return
		}
	}
}
