package readwise

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/custodia-labs/rmsync/internal/core/domain"
)

// Readwise-specific errors.
var (
	// ErrTextTooShort indicates page text too short to be worth a highlight.
	ErrTextTooShort = errors.New("readwise: text too short")

	// ErrEmptyResponse indicates Readwise accepted a highlight without returning its id.
	ErrEmptyResponse = errors.New("readwise: response did not include a highlight id")
)

// RateLimitError is a 429 response with the time requests may resume.
type RateLimitError struct {
	RetryAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("readwise: rate limit exceeded, retry at %s", e.RetryAt.Format(time.RFC3339))
}

// Unwrap lets callers match domain.ErrRateLimited.
func (e *RateLimitError) Unwrap() error {
	return domain.ErrRateLimited
}

// APIError is a non-2xx Readwise response.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("readwise: API error %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// IsNotFound checks if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsRateLimited checks if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	var rateLimitErr *RateLimitError
	return errors.As(err, &rateLimitErr)
}

// IsUnauthorized checks if the access token was rejected.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}
