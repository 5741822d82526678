package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserSource renders the listing page in headless Chromium. Used when the
// site serves bot-block pages to plain HTTP clients.
type BrowserSource struct {
	URL         string
	BaseURL     string
	ListingPath string
	Timeout     time.Duration
	Bin         string // Chromium binary; empty lets the launcher find or download one
}

func NewBrowserSource(url, baseURL, listingPath string, timeout time.Duration) *BrowserSource {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &BrowserSource{URL: url, BaseURL: baseURL, ListingPath: listingPath, Timeout: timeout}
}

// Fetch launches a fresh browser per call so a wedged renderer never outlives one refresh.
func (s *BrowserSource) Fetch(ctx context.Context) ([]Vehicle, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	l := launcher.New().Headless(true).Context(ctx)
	if s.Bin != "" {
		l = l.Bin(s.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer l.Kill()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: s.URL})
	if err != nil {
		return nil, fmt.Errorf("open inventory page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("load inventory page: %w", err)
	}
	content, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read inventory page: %w", err)
	}
	return parsePage([]byte(content), s.BaseURL, s.ListingPath)
}
