package mcp

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/rmsync/internal/core/domain"
)

// defaultRecordLimit caps sync_records when no limit is given.
const defaultRecordLimit = 50

// StatsInput is the input schema for the sync_stats tool.
type StatsInput struct{}

// StatsOutput is the output schema for the sync_stats tool.
type StatsOutput struct {
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"by_status"`
	ByTarget     map[string]int `json:"by_target"`
	ByItemType   map[string]int `json:"by_item_type"`
	SyncedLast24 int            `json:"synced_last_24h"`
	Targets      []string       `json:"targets"`
}

// RecordsInput is the input schema for the sync_records tool.
type RecordsInput struct {
	Target   string `json:"target,omitempty" jsonschema:"only records for this target (notion, readwise)"`
	Status   string `json:"status,omitempty" jsonschema:"only records in this status (pending, success, error)"`
	ItemType string `json:"item_type,omitempty" jsonschema:"only records of this item type (page, highlight, todo)"`
	Notebook string `json:"notebook,omitempty" jsonschema:"only records of this notebook UUID"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of records to return (default 50)"`
}

// RecordsOutput is the output schema for the sync_records tool.
type RecordsOutput struct {
	Records []RecordOutput `json:"records"`
	Count   int            `json:"count"`
}

// RecordOutput is a single ledger row.
type RecordOutput struct {
	Target      string `json:"target"`
	ItemType    string `json:"item_type"`
	ItemID      string `json:"item_id"`
	Notebook    string `json:"notebook"`
	Page        int    `json:"page"`
	Status      string `json:"status"`
	ExternalRef string `json:"external_ref,omitempty"`
	RetryCount  int    `json:"retry_count"`
	Error       string `json:"error,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	SyncedAt    string `json:"synced_at,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "sync_stats",
		Description: "Summarise the sync ledger: record counts by status, target and item type",
	}, s.handleStats)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "sync_records",
		Description: "List sync ledger records, optionally filtered by target, status, item type or notebook",
	}, s.handleRecords)
}

// handleStats handles the sync_stats tool invocation.
func (s *Server) handleStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ StatsInput,
) (*mcp.CallToolResult, StatsOutput, error) {
	stats, err := s.ports.Sync.Stats(ctx)
	if err != nil {
		return nil, StatsOutput{}, err
	}

	output := StatsOutput{
		Total:        stats.Total,
		ByStatus:     make(map[string]int, len(stats.ByStatus)),
		ByTarget:     make(map[string]int, len(stats.ByTarget)),
		ByItemType:   make(map[string]int, len(stats.ByItemType)),
		SyncedLast24: stats.SyncedLast24,
		Targets:      s.ports.Sync.Targets(),
	}
	for k, v := range stats.ByStatus {
		output.ByStatus[string(k)] = v
	}
	for k, v := range stats.ByTarget {
		output.ByTarget[k] = v
	}
	for k, v := range stats.ByItemType {
		output.ByItemType[string(k)] = v
	}
	sort.Strings(output.Targets)

	return nil, output, nil
}

// handleRecords handles the sync_records tool invocation.
func (s *Server) handleRecords(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RecordsInput,
) (*mcp.CallToolResult, RecordsOutput, error) {
	filter, err := input.filter()
	if err != nil {
		return nil, RecordsOutput{}, err
	}

	records, err := s.ports.Sync.Records(ctx, filter)
	if err != nil {
		return nil, RecordsOutput{}, err
	}

	output := RecordsOutput{
		Records: make([]RecordOutput, len(records)),
		Count:   len(records),
	}
	for i := range records {
		output.Records[i] = recordOutput(records[i])
	}

	return nil, output, nil
}

func (in RecordsInput) filter() (domain.LedgerFilter, error) {
	f := domain.LedgerFilter{
		TargetName: in.Target,
		OwnerID:    in.Notebook,
		Limit:      in.Limit,
	}
	if f.Limit <= 0 {
		f.Limit = defaultRecordLimit
	}

	if in.Status != "" {
		status := domain.SyncStatus(in.Status)
		if !status.IsValid() {
			return f, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, in.Status)
		}
		f.Statuses = []domain.SyncStatus{status}
	}
	if in.ItemType != "" {
		t, err := domain.ParseItemType(in.ItemType)
		if err != nil {
			return f, err
		}
		f.ItemType = t
	}
	return f, nil
}

func recordOutput(r domain.SyncRecord) RecordOutput {
	return RecordOutput{
		Target:      r.TargetName,
		ItemType:    string(r.ItemType),
		ItemID:      r.ItemID,
		Notebook:    r.OwnerID,
		Page:        r.Sequence,
		Status:      string(r.Status),
		ExternalRef: r.ExternalRef,
		RetryCount:  r.RetryCount,
		Error:       r.ErrorMessage,
		UpdatedAt:   formatTime(r.UpdatedAt),
		SyncedAt:    formatTime(r.SyncedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
