package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/showroombot/internal/retry"
)

// HTTPError is a non-2xx response from a provider endpoint.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration // parsed Retry-After header, 0 when absent
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// IsRateLimited reports whether err is a 429 or a quota exhaustion message.
func IsRateLimited(err error) bool {
	var he *HTTPError
	if !errors.As(err, &he) {
		return false
	}
	if he.Status == http.StatusTooManyRequests {
		return true
	}
	body := strings.ToLower(he.Body)
	return strings.Contains(body, "resource_exhausted") || strings.Contains(body, "quota")
}

// IsOverloaded reports whether err is a 503 from the provider.
func IsOverloaded(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusServiceUnavailable
}

// Classifier returns the retry classification used for reply generation:
// rate limits follow the staged schedule (or Retry-After when sent),
// overload waits a fixed overloadDelay, anything else is fatal.
func Classifier(overloadDelay time.Duration) retry.Classifier {
	return func(err error) retry.Decision {
		var he *HTTPError
		if !errors.As(err, &he) {
			return retry.Decision{}
		}
		switch {
		case IsOverloaded(err):
			return retry.Decision{Retry: true, After: overloadDelay}
		case IsRateLimited(err):
			return retry.Decision{Retry: true, After: he.RetryAfter}
		}
		return retry.Decision{}
	}
}

// ParseRetryAfter parses a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
