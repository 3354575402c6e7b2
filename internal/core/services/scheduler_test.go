package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
	"github.com/custodia-labs/rmsync/internal/core/ports/driving"
)

// fakeTaskStore keeps tasks and results in maps.
type fakeTaskStore struct {
	mu      sync.Mutex
	tasks   map[string]domain.ScheduledTask
	results []domain.TaskResult
	listErr error
	pruned  int
}

var _ driven.SchedulerStore = (*fakeTaskStore)(nil)

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[string]domain.ScheduledTask)}
}

func (f *fakeTaskStore) GetTask(_ context.Context, id string) (*domain.ScheduledTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeTaskStore) ListTasks(_ context.Context) ([]domain.ScheduledTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.ScheduledTask
	for _, t := range f.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTaskStore) SaveTask(_ context.Context, t *domain.ScheduledTask) error {
	if t == nil {
		return domain.ErrInvalidInput
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.ID] = *t
	return nil
}

func (f *fakeTaskStore) DeleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
	return nil
}

func (f *fakeTaskStore) RecordResult(_ context.Context, r *domain.TaskResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, *r)
	return nil
}

func (f *fakeTaskStore) GetTaskHistory(_ context.Context, id string, _ int) ([]domain.TaskResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TaskResult
	for _, r := range f.results {
		if r.TaskID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeTaskStore) PruneHistory(_ context.Context, keep int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned = keep
	return nil
}

// fakeSync records the calls the scheduler makes.
type fakeSync struct {
	mu        sync.Mutex
	targets   []string
	failing   map[string]error
	synced    int
	missing   int
	block     chan struct{}
	runs      []driving.RunOptions
	backfills []driving.BackfillOptions
}

var _ driving.SyncService = (*fakeSync)(nil)

func newFakeSync(targets ...string) *fakeSync {
	return &fakeSync{targets: targets, failing: make(map[string]error)}
}

func (f *fakeSync) Run(ctx context.Context, opts driving.RunOptions) (*driving.RunResult, error) {
	f.mu.Lock()
	f.runs = append(f.runs, opts)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.failing[opts.Target]; err != nil {
		return nil, err
	}
	return &driving.RunResult{Target: opts.Target, Report: domain.DispatchReport{Synced: f.synced}}, nil
}

func (f *fakeSync) Backfill(_ context.Context, opts driving.BackfillOptions) (*driving.BackfillResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backfills = append(f.backfills, opts)
	return &driving.BackfillResult{
		Target: opts.Target,
		Gaps:   []domain.OwnerGaps{{OwnerID: "nb-1", Missing: make([]domain.SyncableUnit, f.missing)}},
	}, nil
}

func (f *fakeSync) Stats(context.Context) (*domain.LedgerStats, error) { return &domain.LedgerStats{}, nil }
func (f *fakeSync) Records(context.Context, domain.LedgerFilter) ([]domain.SyncRecord, error) {
	return nil, nil
}
func (f *fakeSync) ResetRetries(context.Context, string) (int, error) { return 0, nil }
func (f *fakeSync) Cleanup(context.Context, int, time.Duration) (int, error) { return 0, nil }
func (f *fakeSync) Runs(context.Context, int) ([]domain.RunRecord, error) { return nil, nil }
func (f *fakeSync) Targets() []string { return f.targets }

func (f *fakeSync) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

// fixedClock pins the scheduler's notion of now.
func fixedClock(s *Scheduler, at time.Time) {
	s.now = func() time.Time { return at }
}

var schedNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(domain.DefaultSchedulerConfig(), newFakeTaskStore(), newFakeSync())
	assert.Equal(t, defaultTick, s.tick)
	require.NoError(t, s.Stop(), "stop before start is a no-op")

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.running
	}, time.Second, 5*time.Millisecond)

	assert.NoError(t, s.Start(context.Background()), "second start returns immediately")
	require.NoError(t, s.Stop())
	assert.NoError(t, <-done)
}

func TestScheduler_StartReturnsOnCancel(t *testing.T) {
	s := NewScheduler(domain.DefaultSchedulerConfig(), newFakeTaskStore(), newFakeSync())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_ReconcileTasksCreatesBuiltins(t *testing.T) {
	store := newFakeTaskStore()
	s := NewScheduler(domain.DefaultSchedulerConfig(), store, newFakeSync())
	fixedClock(s, schedNow)

	require.NoError(t, s.reconcileTasks(context.Background()))

	syncTask := store.tasks[domain.TaskIDTargetSync]
	assert.Equal(t, "Target Sync", syncTask.Name)
	assert.Equal(t, time.Hour, syncTask.Interval)
	assert.Equal(t, schedNow.Add(time.Hour), syncTask.NextRun)
	assert.True(t, syncTask.Enabled)

	gapTask := store.tasks[domain.TaskIDGapReconcile]
	assert.Equal(t, "Gap Reconcile", gapTask.Name)
	assert.Equal(t, 24*time.Hour, gapTask.Interval)
}

func TestScheduler_ReconcileTasksDeletesDisabled(t *testing.T) {
	cfg := domain.DefaultSchedulerConfig()
	cfg.TaskConfigs[domain.TaskIDGapReconcile] = domain.TaskConfig{Interval: time.Hour}
	store := newFakeTaskStore()
	store.tasks[domain.TaskIDGapReconcile] = domain.ScheduledTask{ID: domain.TaskIDGapReconcile, Enabled: true}

	s := NewScheduler(cfg, store, newFakeSync())
	require.NoError(t, s.reconcileTasks(context.Background()))

	_, ok := store.tasks[domain.TaskIDGapReconcile]
	assert.False(t, ok)
	assert.Contains(t, store.tasks, domain.TaskIDTargetSync)
}

func TestScheduler_UpsertTaskIntervalChange(t *testing.T) {
	store := newFakeTaskStore()
	s := NewScheduler(domain.DefaultSchedulerConfig(), store, newFakeSync())
	fixedClock(s, schedNow)
	ctx := context.Background()

	require.NoError(t, s.upsertTask(ctx, "t", "T", domain.TaskConfig{Enabled: true, Interval: time.Hour}))
	first := store.tasks["t"].NextRun

	require.NoError(t, s.upsertTask(ctx, "t", "T", domain.TaskConfig{Enabled: true, Interval: time.Hour}))
	assert.Equal(t, first, store.tasks["t"].NextRun, "unchanged interval keeps the schedule")

	require.NoError(t, s.upsertTask(ctx, "t", "T", domain.TaskConfig{Enabled: true, Interval: 2 * time.Hour}))
	assert.Equal(t, 2*time.Hour, store.tasks["t"].Interval)
	assert.Equal(t, schedNow.Add(2*time.Hour), store.tasks["t"].NextRun)
}

func TestScheduler_SyncTargets(t *testing.T) {
	tests := []struct {
		name       string
		configured []string
		failing    map[string]error
		wantRuns   []string
		wantSynced int
		wantErr    string
	}{
		{name: "all registered", wantRuns: []string{"notion", "readwise"}, wantSynced: 6},
		{name: "configured subset", configured: []string{"readwise"}, wantRuns: []string{"readwise"}, wantSynced: 3},
		{
			name:       "one failure does not stop the rest",
			failing:    map[string]error{"notion": errors.New("unauthorized")},
			wantRuns:   []string{"notion", "readwise"},
			wantSynced: 3,
			wantErr:    "unauthorized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultSchedulerConfig()
			cfg.Targets = tt.configured
			svc := newFakeSync("notion", "readwise")
			svc.synced = 3
			if tt.failing != nil {
				svc.failing = tt.failing
			}

			n, err := NewScheduler(cfg, newFakeTaskStore(), svc).syncTargets(context.Background())
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantSynced, n)

			var got []string
			for _, r := range svc.runs {
				got = append(got, r.Target)
			}
			assert.Equal(t, tt.wantRuns, got)
		})
	}
}

func TestScheduler_ReconcileGapsEnqueuesOnly(t *testing.T) {
	svc := newFakeSync("notion")
	svc.missing = 4

	n, err := NewScheduler(domain.DefaultSchedulerConfig(), newFakeTaskStore(), svc).reconcileGaps(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	require.Len(t, svc.backfills, 1)
	assert.True(t, svc.backfills[0].EnqueueOnly)
	assert.False(t, svc.backfills[0].DryRun)
}

func TestScheduler_NilSyncService(t *testing.T) {
	n, err := NewScheduler(domain.DefaultSchedulerConfig(), newFakeTaskStore(), nil).syncTargets(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestScheduler_DispatchDueRunsAndPersists(t *testing.T) {
	store := newFakeTaskStore()
	svc := newFakeSync("notion")
	svc.synced = 1
	s := NewScheduler(domain.DefaultSchedulerConfig(), store, svc)
	fixedClock(s, schedNow)
	ctx := context.Background()

	store.tasks[domain.TaskIDTargetSync] = domain.ScheduledTask{
		ID: domain.TaskIDTargetSync, Interval: time.Hour, NextRun: schedNow.Add(-time.Minute), Enabled: true,
	}
	store.tasks[domain.TaskIDGapReconcile] = domain.ScheduledTask{
		ID: domain.TaskIDGapReconcile, Interval: time.Hour, NextRun: schedNow.Add(time.Minute), Enabled: true,
	}

	s.dispatchDue(ctx)
	s.wg.Wait()

	assert.Equal(t, 1, svc.runCount())
	assert.Empty(t, svc.backfills, "future task does not fire")

	task := store.tasks[domain.TaskIDTargetSync]
	assert.Empty(t, task.LastError)
	assert.Equal(t, schedNow, task.LastSuccess)
	assert.Equal(t, schedNow.Add(time.Hour), task.NextRun)

	history, err := store.GetTaskHistory(ctx, domain.TaskIDTargetSync, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)
	assert.Equal(t, 1, history[0].ItemsProcessed)
	assert.Equal(t, historyKeep, store.pruned)
}

func TestScheduler_DispatchDueSkipsDisabled(t *testing.T) {
	store := newFakeTaskStore()
	svc := newFakeSync("notion")
	store.tasks[domain.TaskIDTargetSync] = domain.ScheduledTask{ID: domain.TaskIDTargetSync, Interval: time.Hour}

	s := NewScheduler(domain.DefaultSchedulerConfig(), store, svc)
	s.dispatchDue(context.Background())
	s.wg.Wait()

	assert.Zero(t, svc.runCount())
}

func TestScheduler_DispatchDueListError(t *testing.T) {
	store := newFakeTaskStore()
	store.listErr = errors.New("db locked")
	svc := newFakeSync("notion")

	s := NewScheduler(domain.DefaultSchedulerConfig(), store, svc)
	s.dispatchDue(context.Background())
	s.wg.Wait()

	assert.Zero(t, svc.runCount())
}

func TestScheduler_LaunchRecordsFailure(t *testing.T) {
	store := newFakeTaskStore()
	svc := newFakeSync("notion")
	svc.failing["notion"] = errors.New("boom")
	s := NewScheduler(domain.DefaultSchedulerConfig(), store, svc)

	s.launch(context.Background(), domain.ScheduledTask{ID: domain.TaskIDTargetSync, Interval: time.Hour, Enabled: true})
	s.wg.Wait()

	saved := store.tasks[domain.TaskIDTargetSync]
	assert.Contains(t, saved.LastError, "boom")
	assert.True(t, saved.LastSuccess.IsZero())
	require.Len(t, store.results, 1)
	assert.False(t, store.results[0].Success)
}

func TestScheduler_LaunchSkipsTaskStillRunning(t *testing.T) {
	store := newFakeTaskStore()
	svc := newFakeSync("notion")
	svc.block = make(chan struct{})
	s := NewScheduler(domain.DefaultSchedulerConfig(), store, svc)
	task := domain.ScheduledTask{ID: domain.TaskIDTargetSync, Interval: time.Hour, Enabled: true}

	s.launch(context.Background(), task)
	require.Eventually(t, func() bool { return svc.runCount() == 1 }, time.Second, 5*time.Millisecond)

	s.launch(context.Background(), task)
	close(svc.block)
	s.wg.Wait()

	assert.Equal(t, 1, svc.runCount())
	assert.Empty(t, s.inFlight)
}

func TestScheduler_LaunchUnknownTask(t *testing.T) {
	store := newFakeTaskStore()
	s := NewScheduler(domain.DefaultSchedulerConfig(), store, nil)

	s.launch(context.Background(), domain.ScheduledTask{ID: "unknown", Enabled: true})
	s.wg.Wait()

	assert.Empty(t, store.results)
}
