package notion

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jomei/notionapi"

	"github.com/custodia-labs/rmsync/internal/core/domain"
)

// Notion-specific errors.
var (
	// ErrDatabaseNotConfigured indicates no database ID was provided.
	ErrDatabaseNotConfigured = errors.New("notion: database id not configured")

	// ErrEmptyResponse indicates Notion accepted a request but returned no object.
	ErrEmptyResponse = errors.New("notion: empty response")
)

// APIError is a failed Notion API call.
type APIError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion: %s: %d %s: %s", e.Op, e.Status, e.Code, e.Message)
}

// Unwrap maps 429 responses onto domain.ErrRateLimited.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusTooManyRequests {
		return domain.ErrRateLimited
	}
	return nil
}

// IsNotFound reports whether the referenced object no longer exists.
// Notion answers edits of archived blocks with a validation error, which is
// treated the same way.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusNotFound {
		return true
	}
	return apiErr.Status == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "archived")
}

// IsRateLimited reports whether Notion rejected the request with 429.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests
}

// IsUnauthorized reports whether the integration token was rejected.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// wrapError converts notionapi errors into *APIError.
func wrapError(err error, op string) error {
	if err == nil {
		return nil
	}
	var nErr *notionapi.Error
	if errors.As(err, &nErr) {
		return &APIError{Op: op, Status: nErr.Status, Code: string(nErr.Code), Message: nErr.Message}
	}
	// notionapi reports exhausted 429 retries with its own error type.
	if strings.Contains(err.Error(), "429") {
		return &APIError{Op: op, Status: http.StatusTooManyRequests, Code: "rate_limited", Message: err.Error()}
	}
	return fmt.Errorf("notion: %s: %w", op, err)
}
