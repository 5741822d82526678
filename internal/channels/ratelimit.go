package channels

import (
	"sync"
	"time"
)

const (
	// maxTrackedSenders caps the number of tracked senders so a spam wave of
	// fresh numbers cannot grow the table without bound.
	maxTrackedSenders = 4096

	// floodWindow is the sliding window duration for message counting.
	floodWindow = 60 * time.Second

	// floodMaxMessages is the max messages per sender within a window.
	floodMaxMessages = 30
)

type floodEntry struct {
	windowStart time.Time
	count       int
}

// SenderRateLimiter drops customers who flood the bot with messages.
// Every accepted message eventually costs a backend call, so a single
// runaway chat must not monopolize the dispatcher queue.
// Safe for concurrent use.
type SenderRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*floodEntry
	max     int
	window  time.Duration
	now     func() time.Time
}

// NewSenderRateLimiter creates a bounded per-sender limiter.
func NewSenderRateLimiter() *SenderRateLimiter {
	return &SenderRateLimiter{
		entries: make(map[string]*floodEntry),
		max:     floodMaxMessages,
		window:  floodWindow,
		now:     time.Now,
	}
}

// Allow returns true if the sender is within limits.
// Automatically prunes stale entries and enforces a hard cap on tracked senders.
func (r *SenderRateLimiter) Allow(sender string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if len(r.entries) >= maxTrackedSenders {
		for k, e := range r.entries {
			if now.Sub(e.windowStart) >= r.window {
				delete(r.entries, k)
			}
		}
		for len(r.entries) >= maxTrackedSenders {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[sender]
	if !ok || now.Sub(e.windowStart) >= r.window {
		r.entries[sender] = &floodEntry{windowStart: now, count: 1}
		return true
	}

	e.count++
	return e.count <= r.max
}
