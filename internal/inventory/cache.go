package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/showroombot/internal/retry"
)

// ErrRefreshInProgress is returned when a refresh is already running.
var ErrRefreshInProgress = errors.New("inventory refresh already in progress")

// Snapshot is an immutable listing set. Readers may hold it indefinitely.
type Snapshot struct {
	Vehicles  []Vehicle
	FetchedAt time.Time
}

// UpdateFunc observes a successful refresh. prev is nil on the first load.
type UpdateFunc func(ctx context.Context, prev, next []Vehicle)

// Cache serves the last good snapshot and replaces it whole on refresh.
type Cache struct {
	src        Source
	policy     retry.Policy
	snap       atomic.Pointer[Snapshot]
	refreshing atomic.Bool

	mu        sync.Mutex
	listeners []UpdateFunc
}

func NewCache(src Source, policy retry.Policy) *Cache {
	return &Cache{src: src, policy: policy}
}

// OnUpdate registers fn to run after every successful refresh.
func (c *Cache) OnUpdate(fn UpdateFunc) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Snapshot returns the current snapshot, or nil if nothing was ever loaded.
func (c *Cache) Snapshot() *Snapshot { return c.snap.Load() }

// Vehicles returns the current listings (empty when unavailable).
func (c *Cache) Vehicles() []Vehicle {
	if s := c.snap.Load(); s != nil {
		return s.Vehicles
	}
	return nil
}

// Count returns the number of listings in the current snapshot.
func (c *Cache) Count() int { return len(c.Vehicles()) }

// Refresh fetches a new snapshot with retries. On failure the previous
// snapshot stays in place; ErrUnavailable is wrapped in the error when
// there is none.
func (c *Cache) Refresh(ctx context.Context) (int, error) {
	if !c.refreshing.CompareAndSwap(false, true) {
		return c.Count(), ErrRefreshInProgress
	}
	defer c.refreshing.Store(false)

	policy := c.policy
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, err error, wait time.Duration) {
			slog.Warn("inventory fetch failed, retrying", "attempt", attempt, "wait", wait, "error", err)
		}
	}
	vehicles, err := retry.Do(ctx, policy, retry.Always, c.src.Fetch)
	if err != nil {
		prev := c.snap.Load()
		if prev == nil {
			slog.Error("inventory fetch failed, no snapshot available", "error", err)
			return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		slog.Warn("inventory fetch failed, serving stale snapshot",
			"count", len(prev.Vehicles), "age", time.Since(prev.FetchedAt).Round(time.Second), "error", err)
		return len(prev.Vehicles), err
	}

	next := &Snapshot{Vehicles: vehicles, FetchedAt: time.Now()}
	prev := c.snap.Swap(next)
	slog.Info("inventory refreshed", "count", len(vehicles))

	var prevVehicles []Vehicle
	if prev != nil {
		prevVehicles = prev.Vehicles
	}
	c.mu.Lock()
	listeners := append([]UpdateFunc(nil), c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(ctx, prevVehicles, vehicles)
	}
	return len(vehicles), nil
}
