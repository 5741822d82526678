package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errLimited = errors.New("rate limited")
	errFatal   = errors.New("bad request")
)

func classify(err error) Decision {
	if errors.Is(err, errLimited) {
		return Decision{Retry: true}
	}
	return Decision{}
}

func recordingPolicy(delays ...time.Duration) (*Policy, *[]time.Duration) {
	var waits []time.Duration
	p := &Policy{
		Delays: delays,
		Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}
	return p, &waits
}

func TestDo_SucceedsWithinBudget(t *testing.T) {
	p, waits := recordingPolicy(5*time.Second, 10*time.Second, 20*time.Second, 30*time.Second)

	calls := 0
	got, err := Do(context.Background(), *p, classify, func(context.Context) (string, error) {
		calls++
		if calls < 4 {
			return "", errLimited
		}
		return "reply", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "reply" || calls != 4 {
		t.Errorf("Do() = %q after %d calls, want reply after 4", got, calls)
	}

	var total time.Duration
	for _, w := range *waits {
		total += w
	}
	if total != 35*time.Second {
		t.Errorf("total backoff = %v, want 35s", total)
	}
}

func TestDo_Exhausted(t *testing.T) {
	p, _ := recordingPolicy(time.Second, time.Second)
	calls := 0
	_, err := Do(context.Background(), *p, classify, func(context.Context) (int, error) {
		calls++
		return 0, errLimited
	})
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if ex.Attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d calls = %d, want 3", ex.Attempts, calls)
	}
	if !errors.Is(err, errLimited) {
		t.Error("exhausted error should wrap the last failure")
	}
}

func TestDo_FatalStopsImmediately(t *testing.T) {
	p, waits := recordingPolicy(time.Second, time.Second)
	calls := 0
	_, err := Do(context.Background(), *p, classify, func(context.Context) (int, error) {
		calls++
		return 0, errFatal
	})
	if !errors.Is(err, errFatal) {
		t.Fatalf("err = %v, want %v", err, errFatal)
	}
	if calls != 1 || len(*waits) != 0 {
		t.Errorf("calls = %d waits = %d, want 1 and 0", calls, len(*waits))
	}
}

func TestDo_AfterOverridesSchedule(t *testing.T) {
	p, waits := recordingPolicy(30 * time.Second)
	calls := 0
	_, _ = Do(context.Background(), *p, func(error) Decision {
		return Decision{Retry: true, After: 3 * time.Second}
	}, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errLimited
		}
		return 1, nil
	})
	if len(*waits) != 1 || (*waits)[0] != 3*time.Second {
		t.Errorf("waits = %v, want [3s]", *waits)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Delays: []time.Duration{time.Hour}}

	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, Always, func(context.Context) (int, error) { return 0, errLimited })
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
}
