package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/rmsync/internal/core/domain"
)

// SyncService runs synchronisation against external targets and exposes
// the ledger to operators.
type SyncService interface {
	// Run detects changes for pending owners, builds the queue and
	// dispatches it. A run always completes with a report unless setup fails.
	Run(ctx context.Context, opts RunOptions) (*RunResult, error)

	// Backfill compares local content with the target and pushes missing units.
	Backfill(ctx context.Context, opts BackfillOptions) (*BackfillResult, error)

	// Stats summarises the ledger.
	Stats(ctx context.Context) (*domain.LedgerStats, error)

	// Records lists ledger rows.
	Records(ctx context.Context, filter domain.LedgerFilter) ([]domain.SyncRecord, error)

	// ResetRetries re-admits exhausted units of a target (all when empty).
	ResetRetries(ctx context.Context, target string) (int, error)

	// Cleanup deletes failed records past a retry count and age.
	Cleanup(ctx context.Context, maxRetries int, olderThan time.Duration) (int, error)

	// Runs returns recent run history.
	Runs(ctx context.Context, limit int) ([]domain.RunRecord, error)

	// Targets lists configured target names.
	Targets() []string
}

// RunOptions configures a sync run. Zero values fall back to settings.
type RunOptions struct {
	Target   string
	MaxItems int
	Delay    time.Duration
}

// RunResult is the outcome of a sync run.
type RunResult struct {
	RunID   string
	Target  string
	Owners  int
	Changes domain.ChangeSet
	Backlog int
	Queued  int
	Report  domain.DispatchReport
}

// BackfillOptions configures a backfill. OwnerID empty means every notebook.
type BackfillOptions struct {
	Target   string
	OwnerID  string
	DryRun   bool
	MaxItems int
	Delay    time.Duration

	// EnqueueOnly marks gaps pending for the next run without dispatching.
	EnqueueOnly bool
}

// BackfillResult is the outcome of a backfill.
type BackfillResult struct {
	RunID  string
	Target string
	Gaps   []domain.OwnerGaps

	// ListCalls is the number of remote listing calls made.
	ListCalls int

	// ListErrors holds owners whose remote listing failed.
	ListErrors []domain.ItemError

	// Skipped is the number of owners not reconciled because the shared
	// budget ran out.
	Skipped int

	// Queued is the number of units dispatched (0 for dry runs).
	Queued int
	Report domain.DispatchReport
}

// MissingCount returns the total number of gaps found.
func (r *BackfillResult) MissingCount() int {
	n := 0
	for _, g := range r.Gaps {
		n += len(g.Missing)
	}
	return n
}
