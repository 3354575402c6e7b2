package domain

import "errors"

// Sentinel errors shared by services and adapters. Adapters wrap them with
// fmt.Errorf so callers can match with errors.Is.
var (
	// ErrNotFound is returned for unknown records, tasks or notebooks.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput flags a request the caller must fix before retrying.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates a target cannot handle an item type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrSyncInProgress indicates a sync is already running for the target.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrRateLimited indicates the target's API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrTargetNotConfigured indicates no client is registered for a target name.
	ErrTargetNotConfigured = errors.New("target not configured")

	// ErrAuthRequired indicates a target has no credentials configured.
	ErrAuthRequired = errors.New("authentication required")
)
