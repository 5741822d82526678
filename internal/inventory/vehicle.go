// Package inventory keeps the live vehicle listing snapshot used in replies
// and car alerts.
package inventory

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable means no snapshot has ever been fetched successfully.
var ErrUnavailable = errors.New("inventory unavailable")

// Vehicle is one available listing. Sold listings never make it into a snapshot.
type Vehicle struct {
	Model   string `json:"model"`
	Year    string `json:"year,omitempty"`
	Price   string `json:"price"`
	Details string `json:"details,omitempty"`
	URL     string `json:"url"`
}

// Line renders the vehicle as one inventory line for the system prompt.
func (v Vehicle) Line() string {
	return fmt.Sprintf("- %s (%s): %s | %s | More info: %s", v.Model, v.Year, v.Price, v.Details, v.URL)
}

// Source fetches the current listings. Implementations return an error
// rather than an empty list when the page could not be read.
type Source interface {
	Fetch(ctx context.Context) ([]Vehicle, error)
}

// NewListings returns vehicles in next whose URL is not in prev.
func NewListings(prev, next []Vehicle) []Vehicle {
	seen := make(map[string]struct{}, len(prev))
	for _, v := range prev {
		seen[v.URL] = struct{}{}
	}
	var out []Vehicle
	for _, v := range next {
		if _, ok := seen[v.URL]; !ok {
			out = append(out, v)
		}
	}
	return out
}
