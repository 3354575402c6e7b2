package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
)

// ==================== Sync Ledger Store ====================

// ledgerStore implements driven.SyncLedgerStore.
type ledgerStore struct {
	store *Store
}

var _ driven.SyncLedgerStore = (*ledgerStore)(nil)

var ledgerColumns = []string{
	"target_name", "item_type", "item_id", "owner_id", "sequence", "status",
	"synced_content_hash", "external_ref", "retry_count", "error_message",
	"created_at", "synced_at", "updated_at",
}

// Get retrieves the record for a unit against a target.
func (s *ledgerStore) Get(
	ctx context.Context,
	target string,
	itemType domain.ItemType,
	itemID string,
) (*domain.SyncRecord, error) {
	query, args, err := qb.Select(ledgerColumns...).
		From("sync_records").
		Where(sq.Eq{"target_name": target, "item_type": string(itemType), "item_id": itemID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building ledger query: %w", err)
	}

	rec, err := scanSyncRecord(s.store.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// MarkPending creates a pending record or moves a success record back to
// pending. Error records keep their status and retry count.
func (s *ledgerStore) MarkPending(ctx context.Context, target string, unit domain.SyncableUnit, at time.Time) error {
	ts := formatTime(at)
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_records (target_name, item_type, item_id, owner_id, sequence, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?, ?)
		ON CONFLICT(target_name, item_type, item_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			sequence = excluded.sequence,
			status = CASE WHEN sync_records.status = 'success' THEN 'pending' ELSE sync_records.status END,
			updated_at = excluded.updated_at
	`, target, string(unit.ItemType), unit.ItemID, unit.OwnerID, unit.Sequence, ts, ts)
	if err != nil {
		return fmt.Errorf("marking %s pending: %w", unit.Key(), err)
	}
	return nil
}

// RecordSuccess stores a confirmed dispatch.
func (s *ledgerStore) RecordSuccess(
	ctx context.Context,
	target string,
	unit domain.SyncableUnit,
	externalRef string,
	at time.Time,
) error {
	ts := formatTime(at)
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_records (target_name, item_type, item_id, owner_id, sequence, status,
			synced_content_hash, external_ref, created_at, synced_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'success', ?, ?, ?, ?, ?)
		ON CONFLICT(target_name, item_type, item_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			sequence = excluded.sequence,
			status = 'success',
			synced_content_hash = excluded.synced_content_hash,
			external_ref = excluded.external_ref,
			error_message = NULL,
			synced_at = excluded.synced_at,
			updated_at = excluded.updated_at
	`, target, string(unit.ItemType), unit.ItemID, unit.OwnerID, unit.Sequence,
		nullString(unit.ContentHash), nullString(externalRef), ts, ts, ts)
	if err != nil {
		return fmt.Errorf("recording success for %s: %w", unit.Key(), err)
	}
	return nil
}

// RecordFailure stores a failed dispatch and increments the retry count.
func (s *ledgerStore) RecordFailure(
	ctx context.Context,
	target string,
	unit domain.SyncableUnit,
	message string,
	at time.Time,
) error {
	ts := formatTime(at)
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_records (target_name, item_type, item_id, owner_id, sequence, status,
			retry_count, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'error', 1, ?, ?, ?)
		ON CONFLICT(target_name, item_type, item_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			sequence = excluded.sequence,
			status = 'error',
			retry_count = sync_records.retry_count + 1,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`, target, string(unit.ItemType), unit.ItemID, unit.OwnerID, unit.Sequence,
		nullString(message), ts, ts)
	if err != nil {
		return fmt.Errorf("recording failure for %s: %w", unit.Key(), err)
	}
	return nil
}

// List returns records matching the filter ordered by owner, then sequence descending.
func (s *ledgerStore) List(ctx context.Context, filter domain.LedgerFilter) ([]domain.SyncRecord, error) {
	b := qb.Select(ledgerColumns...).
		From("sync_records").
		OrderBy("owner_id ASC", "sequence DESC", "item_type ASC", "item_id ASC", "target_name ASC")

	if filter.TargetName != "" {
		b = b.Where(sq.Eq{"target_name": filter.TargetName})
	}
	if filter.ItemType != "" {
		b = b.Where(sq.Eq{"item_type": string(filter.ItemType)})
	}
	if filter.OwnerID != "" {
		b = b.Where(sq.Eq{"owner_id": filter.OwnerID})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		b = b.Where(sq.Eq{"status": statuses})
	}
	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building ledger query: %w", err)
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var records []domain.SyncRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		rec, err := scanSyncRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger: %w", err)
	}
	return records, nil
}

// Stats summarises the ledger.
func (s *ledgerStore) Stats(ctx context.Context, now time.Time) (*domain.LedgerStats, error) {
	stats := &domain.LedgerStats{
		ByStatus:   make(map[domain.SyncStatus]int),
		ByTarget:   make(map[string]int),
		ByItemType: make(map[domain.ItemType]int),
	}

	byStatus, err := s.countBy(ctx, "status")
	if err != nil {
		return nil, err
	}
	for k, n := range byStatus {
		stats.ByStatus[domain.SyncStatus(k)] = n
		stats.Total += n
	}

	byTarget, err := s.countBy(ctx, "target_name")
	if err != nil {
		return nil, err
	}
	stats.ByTarget = byTarget

	byType, err := s.countBy(ctx, "item_type")
	if err != nil {
		return nil, err
	}
	for k, n := range byType {
		stats.ByItemType[domain.ItemType(k)] = n
	}

	query, args, err := qb.Select("COUNT(*)").
		From("sync_records").
		Where(sq.Gt{"synced_at": formatTime(now.Add(-24 * time.Hour))}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building stats query: %w", err)
	}
	if err := s.store.db.QueryRowContext(ctx, query, args...).Scan(&stats.SyncedLast24); err != nil {
		return nil, fmt.Errorf("counting recent syncs: %w", err)
	}

	return stats, nil
}

// countBy groups the ledger by a column.
func (s *ledgerStore) countBy(ctx context.Context, column string) (map[string]int, error) {
	query, args, err := qb.Select(column, "COUNT(*)").
		From("sync_records").
		GroupBy(column).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building stats query: %w", err)
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scanning %s count: %w", column, err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s counts: %w", column, err)
	}
	return counts, nil
}

// ResetRetries zeroes retry counts of error records.
func (s *ledgerStore) ResetRetries(ctx context.Context, target string) (int, error) {
	b := qb.Update("sync_records").
		Set("retry_count", 0).
		Where(sq.Eq{"status": string(domain.SyncStatusError)})
	if target != "" {
		b = b.Where(sq.Eq{"target_name": target})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building reset query: %w", err)
	}
	res, err := s.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("resetting retries: %w", err)
	}
	return rowsAffected(res)
}

// CleanupFailed deletes old error records past the retry count.
func (s *ledgerStore) CleanupFailed(ctx context.Context, maxRetries int, olderThan time.Time) (int, error) {
	query, args, err := qb.Delete("sync_records").
		Where(sq.Eq{"status": string(domain.SyncStatusError)}).
		Where(sq.GtOrEq{"retry_count": maxRetries}).
		Where(sq.Lt{"updated_at": formatTime(olderThan)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building cleanup query: %w", err)
	}
	res, err := s.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cleaning up failed records: %w", err)
	}
	return rowsAffected(res)
}

// scanSyncRecord scans a ledger row.
func scanSyncRecord(row rowScanner) (*domain.SyncRecord, error) {
	var rec domain.SyncRecord
	var itemType, status, createdAt, updatedAt string
	var hash, ref, errMsg, syncedAt sql.NullString

	if err := row.Scan(&rec.TargetName, &itemType, &rec.ItemID, &rec.OwnerID, &rec.Sequence, &status,
		&hash, &ref, &rec.RetryCount, &errMsg, &createdAt, &syncedAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning sync record: %w", err)
	}

	rec.ItemType = domain.ItemType(itemType)
	rec.Status = domain.SyncStatus(status)
	rec.SyncedContentHash = hash.String
	rec.ExternalRef = ref.String
	rec.ErrorMessage = errMsg.String
	rec.CreatedAt = parseTime(createdAt)
	rec.SyncedAt = parseNullableTime(syncedAt)
	rec.UpdatedAt = parseTime(updatedAt)

	return &rec, nil
}

// ==================== Run Store ====================

// runStore implements driven.RunStore.
type runStore struct {
	store *Store
}

var _ driven.RunStore = (*runStore)(nil)

// RecordRun stores a finished run.
func (s *runStore) RecordRun(ctx context.Context, run domain.RunRecord) error {
	query, args, err := qb.Insert("sync_runs").
		Columns("id", "target_name", "kind", "started_at", "ended_at", "queued", "synced", "failed").
		Values(run.ID, run.TargetName, string(run.Kind), formatTime(run.StartedAt), formatTime(run.EndedAt),
			run.Queued, run.Synced, run.Failed).
		ToSql()
	if err != nil {
		return fmt.Errorf("building run insert: %w", err)
	}
	if _, err := s.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *runStore) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	b := qb.Select("id", "target_name", "kind", "started_at", "ended_at", "queued", "synced", "failed").
		From("sync_runs").
		OrderBy("started_at DESC", "id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building run query: %w", err)
	}
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		var run domain.RunRecord
		var kind, startedAt, endedAt string
		if err := rows.Scan(&run.ID, &run.TargetName, &kind, &startedAt, &endedAt,
			&run.Queued, &run.Synced, &run.Failed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.Kind = domain.RunKind(kind)
		run.StartedAt = parseTime(startedAt)
		run.EndedAt = parseTime(endedAt)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}
