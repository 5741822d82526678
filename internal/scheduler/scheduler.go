// Package scheduler runs named jobs on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// JobFunc is the work run on each tick.
type JobFunc func(ctx context.Context) error

type job struct {
	name    string
	expr    string
	fn      JobFunc
	running sync.Mutex
}

// Scheduler fires each job at its next cron tick in the configured timezone.
// A tick that arrives while the previous run of the same job is still going
// is skipped.
type Scheduler struct {
	loc  *time.Location
	jobs []*job

	now   func() time.Time
	until func(t time.Time) time.Duration
}

func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{loc: loc, now: time.Now, until: time.Until}
}

// Add registers a job. The expression is validated immediately.
// Descriptors such as "@hourly" and "@daily" are accepted.
func (s *Scheduler) Add(name, expr string, fn JobFunc) error {
	if !gronx.New().IsValid(expr) {
		return fmt.Errorf("job %s: invalid cron expression %q", name, expr)
	}
	s.jobs = append(s.jobs, &job{name: name, expr: expr, fn: fn})
	return nil
}

// Next returns when the named job fires next.
func (s *Scheduler) Next(name string) (time.Time, error) {
	for _, j := range s.jobs {
		if j.name == name {
			return s.nextTick(j)
		}
	}
	return time.Time{}, fmt.Errorf("job %s not found", name)
}

// Run blocks until ctx is cancelled, firing jobs on their schedules.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j *job) {
			defer wg.Done()
			s.loop(ctx, j)
		}(j)
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	for {
		next, err := s.nextTick(j)
		if err != nil {
			slog.Error("scheduler: cannot compute next tick", "job", j.name, "error", err)
			return
		}
		slog.Debug("scheduler: next run", "job", j.name, "at", next.Format(time.RFC3339))

		timer := time.NewTimer(s.until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !j.running.TryLock() {
			slog.Warn("scheduler: previous run still active, skipping tick", "job", j.name)
			continue
		}
		go func() {
			defer j.running.Unlock()
			s.runOnce(ctx, j)
		}()
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j *job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler: job panicked", "job", j.name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	if err := j.fn(ctx); err != nil {
		slog.Warn("scheduler: job failed", "job", j.name, "error", err, "elapsed", time.Since(start))
		return
	}
	slog.Info("scheduler: job done", "job", j.name, "elapsed", time.Since(start).Round(time.Millisecond))
}

func (s *Scheduler) nextTick(j *job) (time.Time, error) {
	return gronx.NextTickAfter(j.expr, s.now().In(s.loc), false)
}
