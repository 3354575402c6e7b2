package mcp

import (
	"context"
	"time"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driving"
)

// mockSyncService is a mock implementation of driving.SyncService.
type mockSyncService struct {
	stats      *domain.LedgerStats
	records    []domain.SyncRecord
	runs       []domain.RunRecord
	targets    []string
	err        error
	lastFilter domain.LedgerFilter
	lastLimit  int
}

var _ driving.SyncService = (*mockSyncService)(nil)

func (m *mockSyncService) Run(_ context.Context, _ driving.RunOptions) (*driving.RunResult, error) {
	return &driving.RunResult{}, m.err
}

func (m *mockSyncService) Backfill(_ context.Context, _ driving.BackfillOptions) (*driving.BackfillResult, error) {
	return &driving.BackfillResult{}, m.err
}

func (m *mockSyncService) Stats(_ context.Context) (*domain.LedgerStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.stats, nil
}

func (m *mockSyncService) Records(_ context.Context, filter domain.LedgerFilter) ([]domain.SyncRecord, error) {
	m.lastFilter = filter
	return m.records, m.err
}

func (m *mockSyncService) ResetRetries(_ context.Context, _ string) (int, error) {
	return 0, m.err
}

func (m *mockSyncService) Cleanup(_ context.Context, _ int, _ time.Duration) (int, error) {
	return 0, m.err
}

func (m *mockSyncService) Runs(_ context.Context, limit int) ([]domain.RunRecord, error) {
	m.lastLimit = limit
	return m.runs, m.err
}

func (m *mockSyncService) Targets() []string {
	return m.targets
}
