package dedup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/showroombot/internal/store/file"
)

func TestSeenRecordsOnce(t *testing.T) {
	c := New(10, nil)
	if c.Seen("abc123") {
		t.Fatal("first delivery reported as seen")
	}
	if !c.Seen("abc123") {
		t.Fatal("redelivery not detected")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestEvictsOldestFirst(t *testing.T) {
	c := New(3, nil)
	for _, id := range []string{"a", "b", "c", "d"} {
		c.Seen(id)
	}
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}

	tests := []struct {
		id   string
		seen bool
	}{
		{"b", true},
		{"c", true},
		{"d", true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := c.Seen(tt.id); got != tt.seen {
				t.Errorf("Seen(%q) = %v, want %v", tt.id, got, tt.seen)
			}
		})
	}
	// "a" was evicted, so it counts as new again.
	if c.Seen("a") {
		t.Error("evicted id should not be reported as seen")
	}
}

func TestPersistedWindowSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_ids.json")
	backend, err := file.NewDedupStore(path)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	first := New(5, backend)
	for i := 0; i < 7; i++ {
		first.Seen(fmt.Sprintf("m%d", i))
	}

	second := New(5, backend)
	if err := second.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if second.Len() != 5 {
		t.Fatalf("Len() after load = %d, want 5", second.Len())
	}
	if !second.Seen("m6") || !second.Seen("m2") {
		t.Error("recent ids should survive restart")
	}
	if second.Seen("m1") {
		t.Error("m1 was evicted before restart")
	}
}

type failingStore struct{}

func (failingStore) SaveIDs(context.Context, []string) error { return errors.New("read-only") }
func (failingStore) LoadIDs(context.Context) ([]string, error) { return nil, nil }

func TestPersistFailureDoesNotBreakSeen(t *testing.T) {
	c := New(5, failingStore{})
	if c.Seen("x") {
		t.Fatal("first call should report unseen")
	}
	if !c.Seen("x") {
		t.Fatal("in-memory window must still work when persistence fails")
	}
}
