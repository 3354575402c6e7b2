package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/rmsync/internal/core/domain"
)

// SyncLedgerStore persists SyncRecords uniquely keyed by
// (target, item type, item id). Every write is a single transaction.
type SyncLedgerStore interface {
	// Get retrieves the record for a unit against a target.
	// Returns domain.ErrNotFound if no record exists.
	Get(ctx context.Context, target string, itemType domain.ItemType, itemID string) (*domain.SyncRecord, error)

	// MarkPending creates a pending record for a unit, or moves a success
	// record back to pending. Error records keep their status.
	MarkPending(ctx context.Context, target string, unit domain.SyncableUnit, at time.Time) error

	// RecordSuccess stores a confirmed dispatch: status success, the unit's
	// hash, the external ref and synced_at. Error message is cleared and
	// retry count is preserved.
	RecordSuccess(ctx context.Context, target string, unit domain.SyncableUnit, externalRef string, at time.Time) error

	// RecordFailure stores a failed dispatch: status error, retry count
	// incremented and the message kept.
	RecordFailure(ctx context.Context, target string, unit domain.SyncableUnit, message string, at time.Time) error

	// List returns records matching the filter ordered by owner, then sequence descending.
	List(ctx context.Context, filter domain.LedgerFilter) ([]domain.SyncRecord, error)

	// Stats summarises the ledger. now anchors the 24h activity window.
	Stats(ctx context.Context, now time.Time) (*domain.LedgerStats, error)

	// ResetRetries zeroes retry counts of error records for a target
	// (all targets when empty). Returns the number of records touched.
	ResetRetries(ctx context.Context, target string) (int, error)

	// CleanupFailed deletes error records with at least maxRetries failures
	// last updated before olderThan. Returns the number deleted.
	CleanupFailed(ctx context.Context, maxRetries int, olderThan time.Time) (int, error)
}

// RunStore keeps sync run history.
type RunStore interface {
	// RecordRun stores a finished run.
	RecordRun(ctx context.Context, run domain.RunRecord) error

	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)
}

// MappingStore caches the remote container of an owner per target,
// e.g. the Notion page or Readwise book of a notebook.
type MappingStore interface {
	// GetMapping returns domain.ErrNotFound when no mapping exists.
	GetMapping(ctx context.Context, target, ownerID string) (string, error)

	// SaveMapping creates or replaces a mapping.
	SaveMapping(ctx context.Context, target, ownerID, externalID string) error
}
