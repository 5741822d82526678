// Package dedup remembers recently processed message ids so transport
// redeliveries are dropped.
package dedup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/showroombot/internal/store"
)

const DefaultCapacity = 500

// Cache is a bounded insertion-ordered id set. The oldest id is evicted first.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    []string
	index    map[string]struct{}
	backend  store.DedupStore // nil keeps the window in memory only
}

func New(capacity int, backend store.DedupStore) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		index:    make(map[string]struct{}, capacity),
		backend:  backend,
	}
}

// Load restores the persisted window, keeping only the newest capacity ids.
func (c *Cache) Load(ctx context.Context) error {
	if c.backend == nil {
		return nil
	}
	ids, err := c.backend.LoadIDs(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.addLocked(id)
	}
	slog.Info("dedup window loaded", "count", len(c.order))
	return nil
}

// Seen reports whether id was already recorded, recording it when not.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[id]; ok {
		return true
	}
	c.addLocked(id)
	c.persistLocked()
	return false
}

// Len returns the number of ids in the window.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

func (c *Cache) addLocked(id string) {
	if _, ok := c.index[id]; ok {
		return
	}
	c.order = append(c.order, id)
	c.index[id] = struct{}{}
	for len(c.order) > c.capacity {
		delete(c.index, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *Cache) persistLocked() {
	if c.backend == nil {
		return
	}
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.backend.SaveIDs(ctx, ids); err != nil {
		slog.Warn("dedup persist failed", "error", err)
	}
}
