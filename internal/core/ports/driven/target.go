package driven

import (
	"context"

	"github.com/custodia-labs/rmsync/internal/core/domain"
)

// TargetClient is an external system units are synchronised to.
// Implementations isolate payload shaping and rate-limit constants.
type TargetClient interface {
	// Name is the ledger target name, e.g. "notion".
	Name() string

	// Supports reports whether the target accepts the item type.
	Supports(itemType domain.ItemType) bool

	// Upsert creates the unit remotely, or updates it in place when
	// externalRef is set. Returns the ref to store. A ref the target no
	// longer knows falls back to create.
	Upsert(ctx context.Context, unit domain.SyncableUnit, externalRef string) (string, error)

	// ListKnownItems returns the sequences present remotely for an owner.
	ListKnownItems(ctx context.Context, ownerID string) (map[int]struct{}, error)
}

// TargetRegistry resolves target clients by name.
type TargetRegistry interface {
	// Get returns domain.ErrTargetNotConfigured for unknown names.
	Get(name string) (TargetClient, error)

	// Names lists configured targets in a stable order.
	Names() []string
}
