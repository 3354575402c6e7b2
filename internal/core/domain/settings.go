package domain

import "time"

// Defaults applied when configuration leaves a value unset.
const (
	DefaultMaxItems        = 50
	DefaultDispatchDelay   = 350 * time.Millisecond
	DefaultDebounce        = 30 * time.Second
	DefaultMaxRetryBackoff = time.Hour
)

// Settings is the resolved application configuration.
type Settings struct {
	Sync      SyncSettings
	Reconcile ReconcileSettings
	Watch     WatchSettings
	Scheduler SchedulerConfig
	Notion    NotionSettings
	Readwise  ReadwiseSettings
}

// SyncSettings controls a sync run.
type SyncSettings struct {
	// MaxItems caps the number of units dispatched per run.
	MaxItems int

	// Delay is the wait between consecutive target calls.
	Delay time.Duration

	// Retry decides when failed units are re-admitted.
	Retry RetryPolicy
}

// ReconcileSettings controls gap reconciliation.
type ReconcileSettings struct {
	// ShareBudget makes each remote listing call consume one slot of the
	// run's MaxItems and be followed by the dispatch delay.
	ShareBudget bool
}

// WatchSettings controls the inbox watcher.
type WatchSettings struct {
	Inbox    string
	Debounce time.Duration
}

// NotionSettings holds Notion credentials and destinations.
type NotionSettings struct {
	Token          string
	DatabaseID     string
	TodoDatabaseID string
}

// Configured reports whether the Notion target can be built.
func (s NotionSettings) Configured() bool {
	return s.Token != "" && s.DatabaseID != ""
}

// ReadwiseSettings holds Readwise credentials.
type ReadwiseSettings struct {
	Token string
}

// Configured reports whether the Readwise target can be built.
func (s ReadwiseSettings) Configured() bool {
	return s.Token != ""
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		Sync: SyncSettings{
			MaxItems: DefaultMaxItems,
			Delay:    DefaultDispatchDelay,
		},
		Reconcile: ReconcileSettings{ShareBudget: true},
		Watch:     WatchSettings{Debounce: DefaultDebounce},
		Scheduler: DefaultSchedulerConfig(),
	}
}

// RetryPolicy decides whether failed units are dispatched again.
// The zero value retries forever without backoff.
type RetryPolicy struct {
	// MaxRetries is the retry ceiling; 0 means unlimited.
	MaxRetries int

	// Backoff is the base delay after the first failure, doubled per retry.
	// 0 disables backoff.
	Backoff time.Duration

	// MaxBackoff caps the computed delay.
	MaxBackoff time.Duration
}

// Exhausted reports whether an error record has reached the ceiling.
func (p RetryPolicy) Exhausted(r SyncRecord) bool {
	return r.Status == SyncStatusError && p.MaxRetries > 0 && r.RetryCount >= p.MaxRetries
}

// NextAttempt returns the earliest time an error record may be retried.
func (p RetryPolicy) NextAttempt(r SyncRecord) time.Time {
	if r.Status != SyncStatusError || p.Backoff <= 0 || r.RetryCount <= 0 {
		return r.UpdatedAt
	}

	limit := p.MaxBackoff
	if limit <= 0 {
		limit = DefaultMaxRetryBackoff
	}

	delay := p.Backoff
	for i := 1; i < r.RetryCount && delay < limit; i++ {
		delay *= 2
	}
	if delay > limit {
		delay = limit
	}
	return r.UpdatedAt.Add(delay)
}

// Due reports whether an error record may be retried at now.
func (p RetryPolicy) Due(r SyncRecord, now time.Time) bool {
	return !now.Before(p.NextAttempt(r))
}
