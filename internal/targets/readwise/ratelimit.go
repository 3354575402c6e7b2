package readwise

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// RequestsPerMinute is the Readwise highlight API limit.
	RequestsPerMinute = 240

	// HeaderRetryAfter is the retry-after header (seconds).
	HeaderRetryAfter = "Retry-After"

	// defaultRetryAfter applies when a 429 carries no Retry-After.
	defaultRetryAfter = 60 * time.Second
)

// RateLimiter throttles requests proactively and honours Retry-After.
type RateLimiter struct {
	mu      sync.Mutex
	bucket  *rate.Limiter
	retryAt time.Time
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests per minute.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = RequestsPerMinute
	}
	return &RateLimiter{
		bucket: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		now:    time.Now,
	}
}

// Wait blocks until a request may be sent.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	wait := r.retryAt.Sub(r.now())
	r.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return r.bucket.Wait(ctx)
}

// CheckRateLimit returns a RateLimitError for 429 responses and pauses
// later requests until the Retry-After time.
func (r *RateLimiter) CheckRateLimit(resp *http.Response) error {
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	retryAt := r.now().Add(parseRetryAfter(resp.Header.Get(HeaderRetryAfter)))
	if retryAt.After(r.retryAt) {
		r.retryAt = retryAt
	}
	return &RateLimitError{RetryAt: retryAt}
}

// parseRetryAfter reads delta-seconds. HTTP dates are rare here and fall
// back to the default.
func parseRetryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultRetryAfter
}
