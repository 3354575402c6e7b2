package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driving"
)

// mockSyncService implements driving.SyncService for testing.
type mockSyncService struct {
	targets  []string
	run      *driving.RunResult
	backfill *driving.BackfillResult
	stats    *domain.LedgerStats
	records  []domain.SyncRecord
	runs     []domain.RunRecord
	reset    int
	cleaned  int
	err      error

	runCalls      []driving.RunOptions
	backfillCalls []driving.BackfillOptions
	resetTargets  []string
	cleanupArgs   []any
	filters       []domain.LedgerFilter
}

func (m *mockSyncService) Run(_ context.Context, opts driving.RunOptions) (*driving.RunResult, error) {
	m.runCalls = append(m.runCalls, opts)
	if m.err != nil {
		return nil, m.err
	}
	res := driving.RunResult{Target: opts.Target}
	if m.run != nil {
		res = *m.run
		res.Target = opts.Target
	}
	return &res, nil
}

func (m *mockSyncService) Backfill(_ context.Context, opts driving.BackfillOptions) (*driving.BackfillResult, error) {
	m.backfillCalls = append(m.backfillCalls, opts)
	if m.err != nil {
		return nil, m.err
	}
	res := driving.BackfillResult{Target: opts.Target}
	if m.backfill != nil {
		res = *m.backfill
		res.Target = opts.Target
	}
	return &res, nil
}

func (m *mockSyncService) Stats(_ context.Context) (*domain.LedgerStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.stats == nil {
		return &domain.LedgerStats{}, nil
	}
	return m.stats, nil
}

func (m *mockSyncService) Records(_ context.Context, filter domain.LedgerFilter) ([]domain.SyncRecord, error) {
	m.filters = append(m.filters, filter)
	return m.records, m.err
}

func (m *mockSyncService) ResetRetries(_ context.Context, target string) (int, error) {
	m.resetTargets = append(m.resetTargets, target)
	return m.reset, m.err
}

func (m *mockSyncService) Cleanup(_ context.Context, maxRetries int, olderThan time.Duration) (int, error) {
	m.cleanupArgs = append(m.cleanupArgs, maxRetries, olderThan)
	return m.cleaned, m.err
}

func (m *mockSyncService) Runs(_ context.Context, _ int) ([]domain.RunRecord, error) {
	return m.runs, m.err
}

func (m *mockSyncService) Targets() []string {
	return m.targets
}

// mockScheduler implements driving.Scheduler for testing.
type mockScheduler struct {
	started bool
	stopped bool
	err     error
}

func (m *mockScheduler) Start(_ context.Context) error {
	m.started = true
	return m.err
}

func (m *mockScheduler) Stop() error {
	m.stopped = true
	return nil
}

var errBoom = errors.New("boom")

// withServices swaps the package-level services for the test.
func withServices(t *testing.T, s Services) {
	t.Helper()
	oldSync, oldSched, oldContent, oldConfig, oldSettings := syncService, scheduler, contentStore, configStore, settings
	oldBootstrap := bootstrap
	bootstrap = nil
	Configure(s)
	t.Cleanup(func() {
		syncService, scheduler, contentStore, configStore, settings = oldSync, oldSched, oldContent, oldConfig, oldSettings
		bootstrap = oldBootstrap
	})
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()

	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		resetFlags(rootCmd)
	})

	err := rootCmd.ExecuteContext(ctx)
	return buf.String(), err
}

// resetFlags restores every flag to its default between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
