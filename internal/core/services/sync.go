package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
	"github.com/custodia-labs/rmsync/internal/core/ports/driving"
	"github.com/custodia-labs/rmsync/internal/logger"
)

// Ensure SyncOrchestrator implements the interface.
var _ driving.SyncService = (*SyncOrchestrator)(nil)

// SyncOrchestrator runs sync and backfill operations against targets.
type SyncOrchestrator struct {
	content  driven.ContentStore
	ledger   driven.SyncLedgerStore
	runs     driven.RunStore
	targets  driven.TargetRegistry
	settings domain.Settings

	sleep Sleeper
	now   func() time.Time
	newID func() string

	mu     sync.Mutex
	active map[string]bool
}

// NewSyncOrchestrator creates a new sync orchestrator.
// runs is optional; without it run history is not kept.
func NewSyncOrchestrator(
	content driven.ContentStore,
	ledger driven.SyncLedgerStore,
	runs driven.RunStore,
	targets driven.TargetRegistry,
	settings domain.Settings,
) *SyncOrchestrator {
	return &SyncOrchestrator{
		content:  content,
		ledger:   ledger,
		runs:     runs,
		targets:  targets,
		settings: settings,
		sleep:    sleepContext,
		now:      time.Now,
		newID:    uuid.NewString,
		active:   make(map[string]bool),
	}
}

// SetSleeper replaces the wait used between target calls.
func (o *SyncOrchestrator) SetSleeper(s Sleeper) {
	o.sleep = s
}

// SetClock replaces the time source.
func (o *SyncOrchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Targets lists configured target names.
func (o *SyncOrchestrator) Targets() []string {
	return o.targets.Names()
}

// Run detects changes for pending owners and dispatches the resulting queue.
func (o *SyncOrchestrator) Run(ctx context.Context, opts driving.RunOptions) (*driving.RunResult, error) {
	target, err := o.targets.Get(opts.Target)
	if err != nil {
		return nil, err
	}
	name := target.Name()

	if err := o.begin(name); err != nil {
		return nil, err
	}
	defer o.end(name)

	maxItems, delay := o.limits(opts.MaxItems, opts.Delay)
	started := o.now()
	result := &driving.RunResult{RunID: o.newID(), Target: name}

	logger.Section("Sync " + name)

	owners, err := o.content.GetAllPendingOwners(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get pending owners: %w", err)
	}
	result.Owners = len(owners)

	detector := o.detector()
	cache := make(map[string][]domain.SyncableUnit, len(owners))
	covered := make(map[string]bool, len(owners))

	for _, owner := range owners {
		units, err := o.unitsFor(ctx, cache, owner, target)
		if err != nil {
			return nil, err
		}
		set, err := detector.Detect(ctx, name, units)
		if err != nil {
			return nil, fmt.Errorf("detect changes for %s: %w", owner, err)
		}
		mergeChangeSet(&result.Changes, set)
		covered[owner] = true
	}

	logger.Info("%d owners pending: %d new, %d changed, %d unchanged, %d held",
		len(owners), len(result.Changes.New), len(result.Changes.Changed), len(result.Changes.Unchanged),
		len(result.Changes.Exhausted)+len(result.Changes.Deferred))

	// Record the priority units before acknowledging owners so a crash
	// leaves them visible as backlog.
	for _, set := range [][]domain.SyncableUnit{result.Changes.New, result.Changes.Changed} {
		for _, u := range set {
			if err := o.ledger.MarkPending(ctx, name, u, started); err != nil {
				return nil, fmt.Errorf("mark pending %s: %w", u.Key(), err)
			}
		}
	}
	for _, owner := range owners {
		if err := o.content.AcknowledgeOwner(ctx, name, owner); err != nil {
			return nil, fmt.Errorf("acknowledge owner %s: %w", owner, err)
		}
	}

	backlog, err := o.loadBacklog(ctx, cache, covered, target)
	if err != nil {
		return nil, err
	}
	result.Backlog = len(backlog)

	queue := BuildQueue(result.Changes.New, result.Changes.Changed, backlog, maxItems)
	result.Queued = len(queue)

	logger.Info("dispatching %d units to %s (backlog %d, cap %d)", len(queue), name, len(backlog), maxItems)
	result.Report = o.dispatcher().Dispatch(ctx, queue, target, delay)

	o.recordRun(ctx, domain.RunRecord{
		ID:         result.RunID,
		TargetName: name,
		Kind:       domain.RunKindSync,
		StartedAt:  started,
		EndedAt:    o.now(),
		Queued:     result.Queued,
		Synced:     result.Report.Synced,
		Failed:     result.Report.Failed,
	})

	return result, nil
}

// Backfill finds units missing from the target and pushes them.
//
// Gaps are found per owner from page units only, since targets report
// known pages by page number. With a shared budget every listing call
// consumes one slot of MaxItems and is spaced by the dispatch delay.
// Errors return a nil result. Every run except a dry run is recorded,
// including one that stops early.
func (o *SyncOrchestrator) Backfill(
	ctx context.Context,
	opts driving.BackfillOptions,
) (*driving.BackfillResult, error) {
	target, err := o.targets.Get(opts.Target)
	if err != nil {
		return nil, err
	}
	name := target.Name()

	if err := o.begin(name); err != nil {
		return nil, err
	}
	defer o.end(name)

	maxItems, delay := o.limits(opts.MaxItems, opts.Delay)
	share := o.settings.Reconcile.ShareBudget
	started := o.now()
	result := &driving.BackfillResult{RunID: o.newID(), Target: name}
	if !opts.DryRun {
		defer o.recordBackfill(ctx, result, started)
	}

	logger.Section("Backfill " + name)

	owners := []string{opts.OwnerID}
	if opts.OwnerID == "" {
		owners, err = o.content.ListOwners(ctx)
		if err != nil {
			return nil, fmt.Errorf("list owners: %w", err)
		}
	}

	cache := make(map[string][]domain.SyncableUnit, len(owners))
	var missing []domain.SyncableUnit

	for i, owner := range owners {
		if share && result.ListCalls >= maxItems {
			result.Skipped = len(owners) - i
			logger.Warn("backfill budget of %d exhausted, %d owners not reconciled", maxItems, result.Skipped)
			break
		}
		if share && result.ListCalls > 0 {
			if err := o.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		known, err := target.ListKnownItems(ctx, owner)
		result.ListCalls++
		if err != nil {
			logger.Warn("list %s items for %s failed: %v", name, owner, err)
			result.ListErrors = append(result.ListErrors, domain.ItemError{ItemID: owner, Message: err.Error()})
			continue
		}

		units, err := o.unitsFor(ctx, cache, owner, target)
		if err != nil {
			return nil, err
		}
		pages := filterType(units, domain.ItemTypePage)
		gaps := FindGaps(owner, known, pages)

		result.Gaps = append(result.Gaps, domain.OwnerGaps{
			OwnerID: owner,
			Known:   len(known),
			Local:   len(pages),
			Missing: gaps,
		})
		missing = append(missing, gaps...)
		logger.Debug("owner %s: %d local pages, %d known remotely, %d missing", owner, len(pages), len(known), len(gaps))
	}

	if opts.DryRun || len(missing) == 0 {
		return result, nil
	}

	for _, u := range missing {
		if err := o.ledger.MarkPending(ctx, name, u, started); err != nil {
			return nil, fmt.Errorf("mark pending %s: %w", u.Key(), err)
		}
	}
	if opts.EnqueueOnly {
		return result, nil
	}

	budget := maxItems
	if share {
		budget -= result.ListCalls
	}
	if budget <= 0 {
		logger.Info("backfill budget spent on reconciliation, %d gaps left pending", len(missing))
		return result, nil
	}

	queue := BuildQueue(nil, nil, missing, budget)
	result.Queued = len(queue)

	if share && result.ListCalls > 0 {
		if err := o.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	result.Report = o.dispatcher().Dispatch(ctx, queue, target, delay)

	return result, nil
}

// recordBackfill stores the run even when ctx was cancelled mid-run.
func (o *SyncOrchestrator) recordBackfill(ctx context.Context, result *driving.BackfillResult, started time.Time) {
	o.recordRun(context.WithoutCancel(ctx), domain.RunRecord{
		ID:         result.RunID,
		TargetName: result.Target,
		Kind:       domain.RunKindBackfill,
		StartedAt:  started,
		EndedAt:    o.now(),
		Queued:     result.Queued,
		Synced:     result.Report.Synced,
		Failed:     result.Report.Failed,
	})
}

// Stats summarises the ledger.
func (o *SyncOrchestrator) Stats(ctx context.Context) (*domain.LedgerStats, error) {
	return o.ledger.Stats(ctx, o.now())
}

// Records lists ledger rows.
func (o *SyncOrchestrator) Records(ctx context.Context, filter domain.LedgerFilter) ([]domain.SyncRecord, error) {
	return o.ledger.List(ctx, filter)
}

// ResetRetries re-admits failed units of a target.
func (o *SyncOrchestrator) ResetRetries(ctx context.Context, target string) (int, error) {
	return o.ledger.ResetRetries(ctx, target)
}

// Cleanup deletes failed records with at least maxRetries failures that
// have not changed for olderThan.
func (o *SyncOrchestrator) Cleanup(ctx context.Context, maxRetries int, olderThan time.Duration) (int, error) {
	if maxRetries <= 0 {
		return 0, fmt.Errorf("%w: max retries must be positive", domain.ErrInvalidInput)
	}
	return o.ledger.CleanupFailed(ctx, maxRetries, o.now().Add(-olderThan))
}

// Runs returns recent run history.
func (o *SyncOrchestrator) Runs(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if o.runs == nil {
		return nil, nil
	}
	return o.runs.ListRuns(ctx, limit)
}

// loadBacklog returns pending and failed units of owners not already
// covered by change detection in this run.
func (o *SyncOrchestrator) loadBacklog(
	ctx context.Context,
	cache map[string][]domain.SyncableUnit,
	covered map[string]bool,
	target driven.TargetClient,
) ([]domain.SyncableUnit, error) {
	records, err := o.ledger.List(ctx, domain.LedgerFilter{
		TargetName: target.Name(),
		Statuses:   []domain.SyncStatus{domain.SyncStatusPending, domain.SyncStatusError},
	})
	if err != nil {
		return nil, fmt.Errorf("list backlog: %w", err)
	}

	var candidates []domain.SyncableUnit
	for _, rec := range records {
		if covered[rec.OwnerID] {
			continue
		}
		units, err := o.unitsFor(ctx, cache, rec.OwnerID, target)
		if err != nil {
			return nil, err
		}
		if u, ok := findUnit(units, rec.Key()); ok {
			candidates = append(candidates, u)
		} else {
			logger.Debug("backlog record %s has no local content, skipping", rec.Key())
		}
	}

	set, err := o.detector().Detect(ctx, target.Name(), candidates)
	if err != nil {
		return nil, fmt.Errorf("detect backlog changes: %w", err)
	}
	return append(set.New, set.Changed...), nil
}

// unitsFor loads an owner's units once per operation, keeping only the
// item types the target accepts.
func (o *SyncOrchestrator) unitsFor(
	ctx context.Context,
	cache map[string][]domain.SyncableUnit,
	owner string,
	target driven.TargetClient,
) ([]domain.SyncableUnit, error) {
	if units, ok := cache[owner]; ok {
		return units, nil
	}

	all, err := o.content.GetUnitsForOwner(ctx, owner)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get units for %s: %w", owner, err)
	}

	units := make([]domain.SyncableUnit, 0, len(all))
	for _, u := range all {
		if target.Supports(u.ItemType) {
			units = append(units, u)
		}
	}
	cache[owner] = units
	return units, nil
}

func (o *SyncOrchestrator) detector() *ChangeDetector {
	d := NewChangeDetector(o.ledger, o.settings.Sync.Retry)
	d.now = o.now
	return d
}

func (o *SyncOrchestrator) dispatcher() *Dispatcher {
	return NewDispatcher(o.ledger, WithSleeper(o.sleep), WithClock(o.now))
}

// limits resolves per-call overrides against settings.
func (o *SyncOrchestrator) limits(maxItems int, delay time.Duration) (int, time.Duration) {
	if maxItems <= 0 {
		maxItems = o.settings.Sync.MaxItems
	}
	if maxItems <= 0 {
		maxItems = domain.DefaultMaxItems
	}
	if delay <= 0 {
		delay = o.settings.Sync.Delay
	}
	return maxItems, delay
}

func (o *SyncOrchestrator) recordRun(ctx context.Context, run domain.RunRecord) {
	if o.runs == nil {
		return
	}
	if err := o.runs.RecordRun(ctx, run); err != nil {
		logger.Warn("failed to record run %s: %v", run.ID, err)
	}
}

// begin marks a target busy. One run per target at a time.
func (o *SyncOrchestrator) begin(target string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active[target] {
		return fmt.Errorf("%w: %s", domain.ErrSyncInProgress, target)
	}
	o.active[target] = true
	return nil
}

func (o *SyncOrchestrator) end(target string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, target)
}

func mergeChangeSet(dst *domain.ChangeSet, src domain.ChangeSet) {
	dst.New = append(dst.New, src.New...)
	dst.Changed = append(dst.Changed, src.Changed...)
	dst.Unchanged = append(dst.Unchanged, src.Unchanged...)
	dst.Exhausted = append(dst.Exhausted, src.Exhausted...)
	dst.Deferred = append(dst.Deferred, src.Deferred...)
}

func filterType(units []domain.SyncableUnit, t domain.ItemType) []domain.SyncableUnit {
	var out []domain.SyncableUnit
	for _, u := range units {
		if u.ItemType == t {
			out = append(out, u)
		}
	}
	return out
}

func findUnit(units []domain.SyncableUnit, key domain.ItemKey) (domain.SyncableUnit, bool) {
	for _, u := range units {
		if u.Key() == key {
			return u, true
		}
	}
	return domain.SyncableUnit{}, false
}
