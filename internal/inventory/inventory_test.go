package inventory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/showroombot/internal/retry"
)

const card = `
<div class="main-car">
  <div><a href="/luxury-used-cars/%[1]s/%[2]d/"><img class="car-image %[3]s" src="x.jpg"></a></div>
  <div class="car-text">
    <div class="row"><span class="type">Hot Deal</span><span class="comment">%[4]s</span></div>
    <h3><a href="/luxury-used-cars/%[1]s/%[2]d/">%[5]s</a></h3>
    <span class="carbg">KA 09</span>
    <span class="carbg">  Diesel </span>
    <span class="carbg">97399
      km</span>
    <span class="posted_by">%[6]s</span>
  </div>
</div>`

func listingPage(cards ...string) string {
	// Pad so the page clears the minimum size check.
	return "<html><body><!--" + strings.Repeat("x", 1000) + "-->" + strings.Join(cards, "") + "</body></html>"
}

func TestParseListings(t *testing.T) {
	page := listingPage(
		fmt.Sprintf(card, "bmw-x1", 1, "", "2020", "BMW X1 sDrive20d", "? 29,75,000"),
		fmt.Sprintf(card, "audi-q5", 2, "carstatus", "2019", "Audi Q5", "₹ 35,00,000"),
		fmt.Sprintf(card, "benz-gla", 3, "", "2021", "Mercedes GLA 200", "Rs. 31,50,000"),
		fmt.Sprintf(card, "volvo-xc60", 4, "", "2018", "Volvo XC60", ""),
	)

	got, err := ParseListings(strings.NewReader(page), "https://example.com/", "/luxury-used-cars/")
	if err != nil {
		t.Fatalf("ParseListings() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d vehicles, want 3 (sold card skipped): %+v", len(got), got)
	}

	first := got[0]
	if first.Model != "BMW X1 sDrive20d" || first.Year != "2020" {
		t.Errorf("unexpected vehicle: %+v", first)
	}
	if first.URL != "https://example.com/luxury-used-cars/bmw-x1/1/" {
		t.Errorf("URL = %q", first.URL)
	}
	if first.Details != "KA 09 · Diesel · 97399 km" {
		t.Errorf("Details = %q", first.Details)
	}
	if first.Price != "₹ 29,75,000" {
		t.Errorf("Price = %q", first.Price)
	}
	if got[1].Price != "₹ 31,50,000" {
		t.Errorf("Rs. price not normalized: %q", got[1].Price)
	}
	if got[2].Price != "Contact for price" {
		t.Errorf("empty price = %q", got[2].Price)
	}
}

func TestParseListingsSkipsForeignLinks(t *testing.T) {
	page := `<div class="main-car"><a href="/blog/post"><img class="car-image"></a>
		<div class="car-text"><h3><a>Blog</a></h3></div></div>`
	got, err := ParseListings(strings.NewReader(page), "https://example.com", "/luxury-used-cars/")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no vehicles, got %+v", got)
	}
}

func TestVehicleLine(t *testing.T) {
	v := Vehicle{Model: "BMW X1", Year: "2020", Price: "₹ 29,75,000", Details: "Diesel", URL: "https://x/1"}
	want := "- BMW X1 (2020): ₹ 29,75,000 | Diesel | More info: https://x/1"
	if got := v.Line(); got != want {
		t.Errorf("Line() = %q, want %q", got, want)
	}
}

func TestHTTPSource(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		wantN   int
		wantErr bool
	}{
		{"ok", listingPage(fmt.Sprintf(card, "bmw-x1", 1, "", "2020", "BMW X1", "₹ 1")), 200, 1, false},
		{"too short", "<html>blocked</html>", 200, 0, true},
		{"no cars", listingPage(), 200, 0, true},
		{"http error", listingPage(), 406, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("User-Agent") == "" {
					t.Error("missing browser User-Agent")
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			src := NewHTTPSource(srv.URL, "https://example.com", "/luxury-used-cars/", time.Second)
			got, err := src.Fetch(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Fetch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.wantN {
				t.Errorf("Fetch() returned %d vehicles, want %d", len(got), tt.wantN)
			}
		})
	}
}

type scriptedSource struct {
	mu      sync.Mutex
	results []func() ([]Vehicle, error)
	calls   int
}

func (s *scriptedSource) Fetch(context.Context) ([]Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i]()
}

func ok(vs ...Vehicle) func() ([]Vehicle, error) {
	return func() ([]Vehicle, error) { return vs, nil }
}

func fail() ([]Vehicle, error) { return nil, errors.New("blocked") }

func noSleep(context.Context, time.Duration) error { return nil }

func TestCacheInitialFailureIsUnavailable(t *testing.T) {
	src := &scriptedSource{results: []func() ([]Vehicle, error){fail}}
	c := NewCache(src, retry.Policy{Delays: []time.Duration{1, 1, 1}, Sleep: noSleep})

	_, err := c.Refresh(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if c.Snapshot() != nil || c.Count() != 0 {
		t.Error("no snapshot expected")
	}
	if src.calls != 4 {
		t.Errorf("calls = %d, want 4 (1 + 3 retries)", src.calls)
	}
}

func TestCacheKeepsStaleSnapshot(t *testing.T) {
	var fleet []Vehicle
	for i := 0; i < 33; i++ {
		fleet = append(fleet, Vehicle{Model: fmt.Sprintf("car %d", i), URL: fmt.Sprintf("u%d", i)})
	}
	src := &scriptedSource{results: []func() ([]Vehicle, error){ok(fleet...), fail}}
	c := NewCache(src, retry.Policy{Delays: []time.Duration{1, 1, 1}, Sleep: noSleep})

	if n, err := c.Refresh(context.Background()); err != nil || n != 33 {
		t.Fatalf("first refresh = %d, %v", n, err)
	}
	n, err := c.Refresh(context.Background())
	if err == nil {
		t.Fatal("expected error from failed refresh")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Error("stale snapshot exists, should not be unavailable")
	}
	if n != 33 || c.Count() != 33 {
		t.Errorf("count after failure = %d / %d, want 33", n, c.Count())
	}
}

func TestCacheNotifiesListeners(t *testing.T) {
	a := Vehicle{Model: "A", URL: "a"}
	b := Vehicle{Model: "B", URL: "b"}
	src := &scriptedSource{results: []func() ([]Vehicle, error){ok(a), ok(a, b)}}
	c := NewCache(src, retry.Policy{})

	var added [][]Vehicle
	var firstPrev []Vehicle
	calls := 0
	c.OnUpdate(func(_ context.Context, prev, next []Vehicle) {
		if calls == 0 {
			firstPrev = prev
		}
		calls++
		added = append(added, NewListings(prev, next))
	})

	c.Refresh(context.Background())
	c.Refresh(context.Background())

	if calls != 2 {
		t.Fatalf("listener calls = %d, want 2", calls)
	}
	if firstPrev != nil {
		t.Error("prev should be nil on first load")
	}
	if len(added[1]) != 1 || added[1][0].URL != "b" {
		t.Errorf("new listings = %+v, want [b]", added[1])
	}
}

type blockingSource struct {
	started chan struct{}
	release chan struct{}
}

func (s *blockingSource) Fetch(context.Context) ([]Vehicle, error) {
	close(s.started)
	<-s.release
	return []Vehicle{{Model: "A", URL: "a"}}, nil
}

func TestCacheSingleFlightRefresh(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	c := NewCache(src, retry.Policy{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		done <- err
	}()
	<-src.started

	if _, err := c.Refresh(context.Background()); !errors.Is(err, ErrRefreshInProgress) {
		t.Errorf("concurrent refresh err = %v, want ErrRefreshInProgress", err)
	}
	if c.Snapshot() != nil {
		t.Error("readers must not see a partial snapshot")
	}
	close(src.release)
	if err := <-done; err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if c.Count() != 1 {
		t.Errorf("Count() = %d, want 1", c.Count())
	}
}
