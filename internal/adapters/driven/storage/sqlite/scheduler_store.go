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

// ==================== Scheduler Store ====================

// schedulerStore implements driven.SchedulerStore.
type schedulerStore struct {
	store *Store
}

var _ driven.SchedulerStore = (*schedulerStore)(nil)

var taskColumns = []string{
	"id", "name", "interval_seconds", "last_run", "next_run", "last_error", "last_success", "enabled",
}

var resultColumns = []string{
	"task_id", "started_at", "ended_at", "success", "error", "items_processed",
}

// GetTask returns nil without error when the task is unknown.
func (s *schedulerStore) GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error) {
	query, args, err := qb.Select(taskColumns...).
		From("scheduled_tasks").
		Where(sq.Eq{"id": taskID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building task query: %w", err)
	}

	task, err := scanTask(s.store.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return task, err
}

// ListTasks returns every task ordered by ID.
func (s *schedulerStore) ListTasks(ctx context.Context) ([]domain.ScheduledTask, error) {
	query, args, err := qb.Select(taskColumns...).From("scheduled_tasks").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building task query: %w", err)
	}
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}

	var tasks []domain.ScheduledTask
	err = scanEach(rows, func() error {
		task, err := scanTask(rows)
		if err != nil {
			return err
		}
		tasks = append(tasks, *task)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// SaveTask upserts the task by ID.
func (s *schedulerStore) SaveTask(ctx context.Context, task *domain.ScheduledTask) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("%w: task id is required", domain.ErrInvalidInput)
	}

	query, args, err := qb.Insert("scheduled_tasks").
		Columns(taskColumns...).
		Values(task.ID, task.Name, int64(task.Interval/time.Second),
			formatNullableTime(task.LastRun), formatNullableTime(task.NextRun),
			nullString(task.LastError), formatNullableTime(task.LastSuccess),
			boolToInt(task.Enabled)).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			interval_seconds = excluded.interval_seconds,
			last_run = excluded.last_run,
			next_run = excluded.next_run,
			last_error = excluded.last_error,
			last_success = excluded.last_success,
			enabled = excluded.enabled`).
		ToSql()
	if err != nil {
		return fmt.Errorf("building task upsert: %w", err)
	}
	if _, err := s.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("saving task %s: %w", task.ID, err)
	}
	return nil
}

// DeleteTask removes the task and its history.
func (s *schedulerStore) DeleteTask(ctx context.Context, taskID string) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM task_results WHERE task_id = ?", taskID); err != nil {
			return fmt.Errorf("deleting task history: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM scheduled_tasks WHERE id = ?", taskID); err != nil {
			return fmt.Errorf("deleting task %s: %w", taskID, err)
		}
		return nil
	})
}

// RecordResult appends one execution to the task history.
func (s *schedulerStore) RecordResult(ctx context.Context, result *domain.TaskResult) error {
	if result == nil || result.TaskID == "" {
		return fmt.Errorf("%w: task id is required", domain.ErrInvalidInput)
	}

	query, args, err := qb.Insert("task_results").
		Columns(resultColumns...).
		Values(result.TaskID, formatTime(result.StartedAt), formatTime(result.EndedAt),
			boolToInt(result.Success), nullString(result.Error), result.ItemsProcessed).
		ToSql()
	if err != nil {
		return fmt.Errorf("building result insert: %w", err)
	}
	if _, err := s.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("recording result for %s: %w", result.TaskID, err)
	}
	return nil
}

// GetTaskHistory returns the newest results first. limit <= 0 returns all.
func (s *schedulerStore) GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	b := qb.Select(resultColumns...).
		From("task_results").
		Where(sq.Eq{"task_id": taskID}).
		OrderBy("started_at DESC", "id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building history query: %w", err)
	}
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}

	var results []domain.TaskResult
	err = scanEach(rows, func() error {
		var r domain.TaskResult
		var startedAt, endedAt string
		var success int
		var msg sql.NullString
		if err := rows.Scan(&r.TaskID, &startedAt, &endedAt, &success, &msg, &r.ItemsProcessed); err != nil {
			return fmt.Errorf("scanning task result: %w", err)
		}
		r.StartedAt = parseTime(startedAt)
		r.EndedAt = parseTime(endedAt)
		r.Success = success == 1
		r.Error = msg.String
		results = append(results, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// PruneHistory keeps the newest keep results of each task.
func (s *schedulerStore) PruneHistory(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM task_results
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY task_id ORDER BY started_at DESC, id DESC) AS rn
				FROM task_results
			) WHERE rn > ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning task history: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.ScheduledTask, error) {
	var (
		task                                    domain.ScheduledTask
		seconds                                 int64
		lastRun, nextRun, lastErr, lastSuccess sql.NullString
		enabled                                 int
	)
	err := row.Scan(&task.ID, &task.Name, &seconds, &lastRun, &nextRun, &lastErr, &lastSuccess, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}

	task.Interval = time.Duration(seconds) * time.Second
	task.LastRun = parseNullableTime(lastRun)
	task.NextRun = parseNullableTime(nextRun)
	task.LastError = lastErr.String
	task.LastSuccess = parseNullableTime(lastSuccess)
	task.Enabled = enabled == 1
	return &task, nil
}
