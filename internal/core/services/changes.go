package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
)

// ChangeDetector classifies candidate units against the sync ledger.
// It never writes to the ledger.
type ChangeDetector struct {
	ledger driven.SyncLedgerStore
	policy domain.RetryPolicy
	now    func() time.Time
}

// NewChangeDetector creates a detector reading from ledger.
func NewChangeDetector(ledger driven.SyncLedgerStore, policy domain.RetryPolicy) *ChangeDetector {
	return &ChangeDetector{
		ledger: ledger,
		policy: policy,
		now:    time.Now,
	}
}

// Detect splits units into new, changed and unchanged for target.
//
// A unit with no record is new. A record whose synced hash differs, or
// whose status is not success, makes the unit changed. Only a success
// record with a matching hash is unchanged. Failed units past the retry
// ceiling or inside their backoff window are held back.
func (d *ChangeDetector) Detect(
	ctx context.Context,
	target string,
	units []domain.SyncableUnit,
) (domain.ChangeSet, error) {
	var set domain.ChangeSet
	now := d.now()

	for _, unit := range units {
		rec, err := d.ledger.Get(ctx, target, unit.ItemType, unit.ItemID)
		if errors.Is(err, domain.ErrNotFound) {
			set.New = append(set.New, unit)
			continue
		}
		if err != nil {
			return domain.ChangeSet{}, fmt.Errorf("get sync record %s: %w", unit.Key(), err)
		}

		switch {
		case rec.Status == domain.SyncStatusError && d.policy.Exhausted(*rec):
			set.Exhausted = append(set.Exhausted, unit)
		case rec.Status == domain.SyncStatusError && !d.policy.Due(*rec, now):
			set.Deferred = append(set.Deferred, unit)
		case rec.Status == domain.SyncStatusSuccess && rec.SyncedContentHash == unit.ContentHash:
			set.Unchanged = append(set.Unchanged, unit)
		default:
			set.Changed = append(set.Changed, unit)
		}
	}

	return set, nil
}
