package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
	"github.com/custodia-labs/rmsync/internal/logger"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Dispatcher pushes a queue to a target one unit at a time and records
// each outcome in the ledger.
type Dispatcher struct {
	ledger driven.SyncLedgerStore
	sleep  Sleeper
	now    func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSleeper replaces the inter-call wait.
func WithSleeper(s Sleeper) DispatcherOption {
	return func(d *Dispatcher) {
		d.sleep = s
	}
}

// WithClock replaces the time source used for ledger timestamps.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// NewDispatcher creates a dispatcher writing to ledger.
func NewDispatcher(ledger driven.SyncLedgerStore, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		ledger: ledger,
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch processes queue strictly in order against target.
//
// Every unit gets one upsert call, with the stored external ref when there
// is one. The dispatcher waits delay between consecutive calls, never after
// the last one. A failing unit is recorded as an error and the run moves
// on; the report counts both outcomes. Cancelling ctx stops the run before
// the next call and leaves the remaining units pending.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	queue []domain.SyncableUnit,
	target driven.TargetClient,
	delay time.Duration,
) domain.DispatchReport {
	var report domain.DispatchReport
	name := target.Name()

	for i, unit := range queue {
		if i > 0 {
			if err := d.sleep(ctx, delay); err != nil {
				logger.Warn("dispatch to %s stopped after %d of %d units: %v", name, i, len(queue), err)
				break
			}
		}
		if ctx.Err() != nil {
			logger.Warn("dispatch to %s stopped after %d of %d units: %v", name, i, len(queue), ctx.Err())
			break
		}

		if err := d.dispatchOne(ctx, name, unit, target); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, domain.ItemError{ItemID: unit.ItemID, Message: err.Error()})
			logger.Warn("sync %s to %s failed: %v", unit.Key(), name, err)
			continue
		}

		report.Synced++
		logger.Debug("synced %s to %s", unit.Key(), name)
	}

	return report
}

// dispatchOne performs the upsert for a unit and writes the outcome.
func (d *Dispatcher) dispatchOne(
	ctx context.Context,
	name string,
	unit domain.SyncableUnit,
	target driven.TargetClient,
) error {
	var ref string
	rec, err := d.ledger.Get(ctx, name, unit.ItemType, unit.ItemID)
	switch {
	case err == nil:
		ref = rec.ExternalRef
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("get sync record: %w", err)
	}

	newRef, upsertErr := target.Upsert(ctx, unit, ref)
	if upsertErr != nil {
		if recErr := d.ledger.RecordFailure(ctx, name, unit, upsertErr.Error(), d.now()); recErr != nil {
			return fmt.Errorf("%w (record failure: %w)", upsertErr, recErr)
		}
		return upsertErr
	}

	if newRef == "" {
		newRef = ref
	}
	if err := d.ledger.RecordSuccess(ctx, name, unit, newRef, d.now()); err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	return nil
}

// sleepContext waits for d unless ctx ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
