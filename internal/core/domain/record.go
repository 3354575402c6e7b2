package domain

import "time"

// SyncStatus is the state of a unit against one target.
type SyncStatus string

// Ledger statuses.
const (
	// SyncStatusPending means the unit was identified as needing sync but
	// no dispatch has been confirmed yet.
	SyncStatusPending SyncStatus = "pending"

	// SyncStatusSuccess means the last dispatch succeeded.
	SyncStatusSuccess SyncStatus = "success"

	// SyncStatusError means the last dispatch failed; the unit stays eligible for retry.
	SyncStatusError SyncStatus = "error"
)

// IsValid returns true if the status is recognised.
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSuccess, SyncStatusError:
		return true
	default:
		return false
	}
}

// SyncRecord is one ledger row per (target, item type, item id).
type SyncRecord struct {
	// TargetName is the external system, e.g. "notion".
	TargetName string

	ItemType ItemType
	ItemID   string
	OwnerID  string
	Sequence int

	// Status is the current lifecycle state.
	Status SyncStatus

	// SyncedContentHash is the unit hash as of the last successful sync.
	SyncedContentHash string

	// ExternalRef is the identifier assigned by the target, used for
	// update-in-place and link-backs.
	ExternalRef string

	// RetryCount is the cumulative number of failed attempts.
	RetryCount int

	// ErrorMessage is the last failure detail, cleared on success.
	ErrorMessage string

	// CreatedAt is the first time this pair was attempted.
	CreatedAt time.Time

	// SyncedAt is the last successful sync.
	SyncedAt time.Time

	// UpdatedAt is the last mutation.
	UpdatedAt time.Time
}

// Key returns the item key the record refers to.
func (r SyncRecord) Key() ItemKey {
	return ItemKey{ItemType: r.ItemType, ItemID: r.ItemID}
}

// NewRecordFor returns a record skeleton for a unit against a target.
func NewRecordFor(target string, u SyncableUnit) SyncRecord {
	return SyncRecord{
		TargetName: target,
		ItemType:   u.ItemType,
		ItemID:     u.ItemID,
		OwnerID:    u.OwnerID,
		Sequence:   u.Sequence,
	}
}

// LedgerFilter narrows a ledger listing. Zero values match everything.
type LedgerFilter struct {
	TargetName string
	ItemType   ItemType
	OwnerID    string
	Statuses   []SyncStatus

	// Limit caps the number of records returned (0 = no limit).
	Limit int
}

// LedgerStats summarises the ledger.
type LedgerStats struct {
	Total        int
	ByStatus     map[SyncStatus]int
	ByTarget     map[string]int
	ByItemType   map[ItemType]int
	SyncedLast24 int
}

// RunKind distinguishes regular runs from backfills in run history.
type RunKind string

// Run kinds.
const (
	RunKindSync     RunKind = "sync"
	RunKindBackfill RunKind = "backfill"
)

// RunRecord is one entry of sync run history.
type RunRecord struct {
	ID         string
	TargetName string
	Kind       RunKind
	StartedAt  time.Time
	EndedAt    time.Time
	Queued     int
	Synced     int
	Failed     int
}
