package domain

import (
	"fmt"
	"time"
)

// ItemType identifies the kind of syncable unit.
type ItemType string

// Supported item types.
const (
	ItemTypePage      ItemType = "page"
	ItemTypeHighlight ItemType = "highlight"
	ItemTypeTodo      ItemType = "todo"
)

// IsValid returns true if the item type is recognised.
func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypePage, ItemTypeHighlight, ItemTypeTodo:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t ItemType) String() string {
	return string(t)
}

// ParseItemType converts a string to an ItemType.
func ParseItemType(s string) (ItemType, error) {
	t := ItemType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: unknown item type %q", ErrInvalidInput, s)
	}
	return t, nil
}

// SyncableUnit is the smallest item tracked for external synchronisation.
type SyncableUnit struct {
	// ItemType is the kind of unit.
	ItemType ItemType

	// ItemID is stable and unique within ItemType.
	ItemID string

	// OwnerID is the parent notebook UUID.
	OwnerID string

	// OwnerTitle is the notebook's visible name, used by targets for titles.
	OwnerTitle string

	// Sequence orders units within an owner (the page number).
	Sequence int

	// Text is the extracted text.
	Text string

	// Confidence is the extraction confidence in [0, 1].
	Confidence float64

	// Completed is only meaningful for todos.
	Completed bool

	// ContentHash is the digest of the unit's semantic content.
	ContentHash string

	// CreatedAt and UpdatedAt are set by the content store.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the ledger key of the unit, unique across item types.
func (u SyncableUnit) Key() ItemKey {
	return ItemKey{ItemType: u.ItemType, ItemID: u.ItemID}
}

// ItemKey identifies a unit independent of target.
type ItemKey struct {
	ItemType ItemType
	ItemID   string
}

// String returns "type/id".
func (k ItemKey) String() string {
	return string(k.ItemType) + "/" + k.ItemID
}

// PageItemID returns the item ID of a notebook page.
func PageItemID(notebookUUID string, pageNumber int) string {
	return fmt.Sprintf("%s:page:%d", notebookUUID, pageNumber)
}
