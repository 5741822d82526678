package inventory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// minPageSize is the smallest body treated as a real listing page.
// Anything shorter is a block page or an error stub.
const minPageSize = 1000

var browserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
	"Accept-Language":           "en-IN,en;q=0.9",
	"Cache-Control":             "no-cache",
	"Pragma":                    "no-cache",
	"Sec-Ch-Ua":                 `"Chromium";v="122", "Not(A:Brand";v="24", "Google Chrome";v="122"`,
	"Sec-Ch-Ua-Mobile":          "?0",
	"Sec-Ch-Ua-Platform":        `"Windows"`,
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "same-origin",
	"Upgrade-Insecure-Requests": "1",
}

// HTTPSource fetches the listing page with plain HTTP and browser-like headers.
type HTTPSource struct {
	URL         string
	BaseURL     string
	ListingPath string
	Client      *http.Client
}

func NewHTTPSource(url, baseURL, listingPath string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPSource{
		URL:         url,
		BaseURL:     baseURL,
		ListingPath: listingPath,
		Client:      &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]Vehicle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
	if s.BaseURL != "" {
		req.Header.Set("Referer", s.BaseURL+"/")
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch inventory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch inventory: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read inventory page: %w", err)
	}
	return parsePage(body, s.BaseURL, s.ListingPath)
}

// parsePage applies the shared size and emptiness checks for every source.
func parsePage(body []byte, baseURL, listingPath string) ([]Vehicle, error) {
	if len(body) < minPageSize {
		return nil, fmt.Errorf("inventory page too short (%d bytes), likely blocked", len(body))
	}
	vehicles, err := ParseListings(bytes.NewReader(body), baseURL, listingPath)
	if err != nil {
		return nil, fmt.Errorf("parse inventory page: %w", err)
	}
	if len(vehicles) == 0 {
		return nil, fmt.Errorf("no vehicles parsed, page structure may have changed")
	}
	return vehicles, nil
}
