package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddRejectsInvalidExpr(t *testing.T) {
	s := New(time.UTC)
	if err := s.Add("bad", "not a cron", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for invalid expression")
	}
	if err := s.Add("hourly", "@hourly", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Add(@hourly) error = %v", err)
	}
}

func TestNextTickUsesLocation(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skip("tzdata not available")
	}
	s := New(ist)
	// 2026-03-10 02:00 UTC is 07:30 IST, so 09:00 IST is later the same day.
	s.now = func() time.Time { return time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC) }
	if err := s.Add("followups", "0 9 * * *", func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}

	next, err := s.Next("followups")
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	want := time.Date(2026, 3, 10, 9, 0, 0, 0, ist)
	if !next.Equal(want) {
		t.Errorf("Next() = %v, want %v", next, want)
	}
}

func TestNextUnknownJob(t *testing.T) {
	if _, err := New(time.UTC).Next("missing"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestRunFiresAndStops(t *testing.T) {
	s := New(time.UTC)
	var runs atomic.Int32
	s.until = func(time.Time) time.Duration { return 10 * time.Millisecond }
	if err := s.Add("tick", "* * * * *", func(context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
	if runs.Load() == 0 {
		t.Fatal("job never ran")
	}
}
