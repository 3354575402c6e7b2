package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
)

// Ensure LedgerStore implements the interfaces.
var (
	_ driven.SyncLedgerStore = (*LedgerStore)(nil)
	_ driven.RunStore        = (*LedgerStore)(nil)
)

type ledgerKey struct {
	target   string
	itemType domain.ItemType
	itemID   string
}

// LedgerStore is an in-memory implementation of driven.SyncLedgerStore
// and driven.RunStore.
type LedgerStore struct {
	mu      sync.RWMutex
	records map[ledgerKey]domain.SyncRecord
	runs    []domain.RunRecord
}

// NewLedgerStore creates a new in-memory ledger.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		records: make(map[ledgerKey]domain.SyncRecord),
	}
}

// Put stores a record as-is. Intended for seeding tests.
func (s *LedgerStore) Put(rec domain.SyncRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[ledgerKey{rec.TargetName, rec.ItemType, rec.ItemID}] = rec
}

// Get retrieves the record for a unit against a target.
func (s *LedgerStore) Get(_ context.Context, target string, itemType domain.ItemType, itemID string) (*domain.SyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[ledgerKey{target, itemType, itemID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

// MarkPending creates a pending record or moves a success record back to pending.
func (s *LedgerStore) MarkPending(_ context.Context, target string, unit domain.SyncableUnit, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.load(target, unit, at)
	if rec.Status == "" || rec.Status == domain.SyncStatusSuccess {
		rec.Status = domain.SyncStatusPending
	}
	rec.UpdatedAt = at
	s.store(rec)
	return nil
}

// RecordSuccess stores a confirmed dispatch.
func (s *LedgerStore) RecordSuccess(
	_ context.Context,
	target string,
	unit domain.SyncableUnit,
	externalRef string,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.load(target, unit, at)
	rec.Status = domain.SyncStatusSuccess
	rec.SyncedContentHash = unit.ContentHash
	rec.ExternalRef = externalRef
	rec.ErrorMessage = ""
	rec.SyncedAt = at
	rec.UpdatedAt = at
	s.store(rec)
	return nil
}

// RecordFailure stores a failed dispatch.
func (s *LedgerStore) RecordFailure(_ context.Context, target string, unit domain.SyncableUnit, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.load(target, unit, at)
	rec.Status = domain.SyncStatusError
	rec.RetryCount++
	rec.ErrorMessage = message
	rec.UpdatedAt = at
	s.store(rec)
	return nil
}

// List returns records matching the filter.
func (s *LedgerStore) List(_ context.Context, filter domain.LedgerFilter) ([]domain.SyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.SyncRecord
	for _, rec := range s.records {
		if matches(rec, filter) {
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.OwnerID != b.OwnerID {
			return a.OwnerID < b.OwnerID
		}
		if a.Sequence != b.Sequence {
			return a.Sequence > b.Sequence
		}
		if a.ItemType != b.ItemType {
			return a.ItemType < b.ItemType
		}
		if a.ItemID != b.ItemID {
			return a.ItemID < b.ItemID
		}
		return a.TargetName < b.TargetName
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Stats summarises the ledger.
func (s *LedgerStore) Stats(_ context.Context, now time.Time) (*domain.LedgerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.LedgerStats{
		ByStatus:   make(map[domain.SyncStatus]int),
		ByTarget:   make(map[string]int),
		ByItemType: make(map[domain.ItemType]int),
	}
	since := now.Add(-24 * time.Hour)
	for _, rec := range s.records {
		stats.Total++
		stats.ByStatus[rec.Status]++
		stats.ByTarget[rec.TargetName]++
		stats.ByItemType[rec.ItemType]++
		if !rec.SyncedAt.IsZero() && rec.SyncedAt.After(since) {
			stats.SyncedLast24++
		}
	}
	return stats, nil
}

// ResetRetries zeroes retry counts of error records.
func (s *LedgerStore) ResetRetries(_ context.Context, target string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, rec := range s.records {
		if rec.Status != domain.SyncStatusError || (target != "" && rec.TargetName != target) {
			continue
		}
		rec.RetryCount = 0
		s.records[k] = rec
		n++
	}
	return n, nil
}

// CleanupFailed deletes old error records past the retry count.
func (s *LedgerStore) CleanupFailed(_ context.Context, maxRetries int, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, rec := range s.records {
		if rec.Status == domain.SyncStatusError && rec.RetryCount >= maxRetries && rec.UpdatedAt.Before(olderThan) {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

// RecordRun stores a finished run.
func (s *LedgerStore) RecordRun(_ context.Context, run domain.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// ListRuns returns the most recent runs first.
func (s *LedgerStore) ListRuns(_ context.Context, limit int) ([]domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RunRecord, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		out = append(out, s.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// load returns the existing record or a fresh one (caller must hold lock).
func (s *LedgerStore) load(target string, unit domain.SyncableUnit, at time.Time) domain.SyncRecord {
	rec, ok := s.records[ledgerKey{target, unit.ItemType, unit.ItemID}]
	if !ok {
		rec = domain.NewRecordFor(target, unit)
		rec.CreatedAt = at
	}
	rec.OwnerID = unit.OwnerID
	rec.Sequence = unit.Sequence
	return rec
}

// store writes a record (caller must hold lock).
func (s *LedgerStore) store(rec domain.SyncRecord) {
	s.records[ledgerKey{rec.TargetName, rec.ItemType, rec.ItemID}] = rec
}

func matches(rec domain.SyncRecord, f domain.LedgerFilter) bool {
	if f.TargetName != "" && rec.TargetName != f.TargetName {
		return false
	}
	if f.ItemType != "" && rec.ItemType != f.ItemType {
		return false
	}
	if f.OwnerID != "" && rec.OwnerID != f.OwnerID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if rec.Status == st {
			return true
		}
	}
	return false
}
