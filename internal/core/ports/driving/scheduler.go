package driving

import "context"

// Scheduler fires target sync and gap reconciliation on their intervals.
type Scheduler interface {
	// Start blocks until ctx is done or Stop is called.
	Start(ctx context.Context) error

	// Stop waits for in-flight tasks before returning.
	Stop() error
}
