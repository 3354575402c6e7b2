package driven

import (
	"context"

	"github.com/custodia-labs/rmsync/internal/core/domain"
)

// ContentStore holds extracted notebook content and yields syncable units.
type ContentStore interface {
	// GetUnitsForOwner returns every syncable unit of a notebook with its
	// content hash set. Units with no extracted text are omitted.
	GetUnitsForOwner(ctx context.Context, ownerID string) ([]domain.SyncableUnit, error)

	// GetAllPendingOwners returns notebooks changed since target last
	// acknowledged them. Pending state is kept per target.
	GetAllPendingOwners(ctx context.Context, target string) ([]string, error)

	// AcknowledgeOwner clears the pending state of a notebook for target only.
	AcknowledgeOwner(ctx context.Context, target, ownerID string) error

	// MarkOwnerPending flags a notebook for the next run of every target.
	MarkOwnerPending(ctx context.Context, ownerID string) error

	// ListOwners returns all known notebook UUIDs.
	ListOwners(ctx context.Context) ([]string, error)

	// GetNotebook returns domain.ErrNotFound for unknown notebooks.
	GetNotebook(ctx context.Context, uuid string) (*domain.Notebook, error)

	// SaveNotebook creates or updates notebook metadata.
	SaveNotebook(ctx context.Context, nb domain.Notebook) error

	// SavePage, SaveHighlight and SaveTodo create or update content and
	// mark the owner pending for every target when the content differs from
	// what is stored.
	SavePage(ctx context.Context, page domain.Page) error
	SaveHighlight(ctx context.Context, h domain.Highlight) error
	SaveTodo(ctx context.Context, todo domain.Todo) error
}
