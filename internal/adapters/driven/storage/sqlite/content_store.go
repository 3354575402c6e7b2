package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
)

// ==================== Content Store ====================

// contentStore implements driven.ContentStore.
type contentStore struct {
	store *Store
}

var _ driven.ContentStore = (*contentStore)(nil)

// GetUnitsForOwner returns the notebook's units: pages by number, then
// highlights and todos by ID.
func (s *contentStore) GetUnitsForOwner(ctx context.Context, ownerID string) ([]domain.SyncableUnit, error) {
	var title string
	err := s.store.db.QueryRowContext(ctx, "SELECT name FROM notebooks WHERE uuid = ?", ownerID).Scan(&title)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting notebook title: %w", err)
	}

	var units []domain.SyncableUnit

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT page_number, text, confidence, created_at, updated_at
		FROM pages WHERE notebook_uuid = ? AND TRIM(text) != ''
		ORDER BY page_number
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying pages: %w", err)
	}
	err = scanEach(rows, func() error {
		p := domain.Page{NotebookUUID: ownerID}
		var createdAt, updatedAt string
		if err := rows.Scan(&p.PageNumber, &p.Text, &p.Confidence, &createdAt, &updatedAt); err != nil {
			return fmt.Errorf("scanning page: %w", err)
		}
		p.CreatedAt, p.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
		units = append(units, p.Unit(title))
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows, err = s.store.db.QueryContext(ctx, `
		SELECT id, page_number, text, confidence, created_at, updated_at
		FROM highlights WHERE notebook_uuid = ? AND TRIM(text) != ''
		ORDER BY id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying highlights: %w", err)
	}
	err = scanEach(rows, func() error {
		h := domain.Highlight{NotebookUUID: ownerID}
		var createdAt, updatedAt string
		if err := rows.Scan(&h.ID, &h.PageNumber, &h.Text, &h.Confidence, &createdAt, &updatedAt); err != nil {
			return fmt.Errorf("scanning highlight: %w", err)
		}
		h.CreatedAt, h.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
		units = append(units, h.Unit(title))
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows, err = s.store.db.QueryContext(ctx, `
		SELECT id, page_number, text, completed, confidence, created_at, updated_at
		FROM todos WHERE notebook_uuid = ? AND TRIM(text) != ''
		ORDER BY id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying todos: %w", err)
	}
	err = scanEach(rows, func() error {
		t := domain.Todo{NotebookUUID: ownerID}
		var completed int
		var createdAt, updatedAt string
		if err := rows.Scan(&t.ID, &t.PageNumber, &t.Text, &completed, &t.Confidence, &createdAt, &updatedAt); err != nil {
			return fmt.Errorf("scanning todo: %w", err)
		}
		t.Completed = completed == 1
		t.CreatedAt, t.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
		units = append(units, t.Unit(title))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return units, nil
}

// GetAllPendingOwners returns, in UUID order, the notebooks whose revision
// is ahead of what target last acknowledged.
func (s *contentStore) GetAllPendingOwners(ctx context.Context, target string) ([]string, error) {
	query, args, err := qb.Select("n.uuid").
		From("notebooks n").
		LeftJoin("owner_acks a ON a.owner_id = n.uuid AND a.target_name = ?", target).
		Where("n.revision > COALESCE(a.revision, 0)").
		OrderBy("n.uuid").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building pending query: %w", err)
	}
	return s.queryUUIDs(ctx, query, args...)
}

// ListOwners returns every known notebook UUID.
func (s *contentStore) ListOwners(ctx context.Context) ([]string, error) {
	query, args, err := qb.Select("uuid").From("notebooks").OrderBy("uuid").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building notebook query: %w", err)
	}
	return s.queryUUIDs(ctx, query, args...)
}

func (s *contentStore) queryUUIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notebooks: %w", err)
	}

	owners := []string{}
	err = scanEach(rows, func() error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scanning notebook: %w", err)
		}
		owners = append(owners, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return owners, nil
}

// AcknowledgeOwner records the notebook's current revision for target.
// Unknown notebooks are ignored.
func (s *contentStore) AcknowledgeOwner(ctx context.Context, target, ownerID string) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO owner_acks (target_name, owner_id, revision)
		SELECT ?, uuid, revision FROM notebooks WHERE uuid = ?
		ON CONFLICT(target_name, owner_id) DO UPDATE SET revision = excluded.revision
	`, target, ownerID)
	if err != nil {
		return fmt.Errorf("acknowledging notebook %s for %s: %w", ownerID, target, err)
	}
	return nil
}

// MarkOwnerPending flags a notebook for every target, creating a
// placeholder row if needed.
func (s *contentStore) MarkOwnerPending(ctx context.Context, ownerID string) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		return s.flagPending(ctx, tx, ownerID)
	})
}

// GetNotebook returns notebook metadata.
func (s *contentStore) GetNotebook(ctx context.Context, uuid string) (*domain.Notebook, error) {
	var nb domain.Notebook
	var createdAt, updatedAt string
	err := s.store.db.QueryRowContext(ctx, `
		SELECT uuid, name, path, created_at, updated_at FROM notebooks WHERE uuid = ?
	`, uuid).Scan(&nb.UUID, &nb.Name, &nb.Path, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting notebook: %w", err)
	}
	nb.CreatedAt, nb.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
	return &nb, nil
}

// SaveNotebook creates or updates notebook metadata without touching the
// revision.
func (s *contentStore) SaveNotebook(ctx context.Context, nb domain.Notebook) error {
	if nb.UUID == "" {
		return domain.ErrInvalidInput
	}
	ts := formatTime(s.store.now())
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO notebooks (uuid, name, path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			updated_at = excluded.updated_at
	`, nb.UUID, nb.Name, nb.Path, ts, ts)
	if err != nil {
		return fmt.Errorf("saving notebook: %w", err)
	}
	return nil
}

// SavePage stores a page and flags its notebook when the text changed.
func (s *contentStore) SavePage(ctx context.Context, page domain.Page) error {
	if page.NotebookUUID == "" || page.PageNumber < 0 {
		return domain.ErrInvalidInput
	}
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		var text string
		var confidence float64
		err := tx.QueryRowContext(ctx, `
			SELECT text, confidence FROM pages WHERE notebook_uuid = ? AND page_number = ?
		`, page.NotebookUUID, page.PageNumber).Scan(&text, &confidence)
		if err == nil && text == page.Text && confidence == page.Confidence {
			return nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("reading page: %w", err)
		}

		if err := s.flagPending(ctx, tx, page.NotebookUUID); err != nil {
			return err
		}
		ts := formatTime(s.store.now())
		_, err = tx.ExecContext(ctx, `
			INSERT INTO pages (notebook_uuid, page_number, text, confidence, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(notebook_uuid, page_number) DO UPDATE SET
				text = excluded.text,
				confidence = excluded.confidence,
				updated_at = excluded.updated_at
		`, page.NotebookUUID, page.PageNumber, page.Text, page.Confidence, ts, ts)
		if err != nil {
			return fmt.Errorf("saving page: %w", err)
		}
		return nil
	})
}

// SaveHighlight stores a highlight and flags its notebook when it changed.
func (s *contentStore) SaveHighlight(ctx context.Context, h domain.Highlight) error {
	if h.ID == "" || h.NotebookUUID == "" {
		return domain.ErrInvalidInput
	}
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		var text string
		var pageNumber int
		var confidence float64
		err := tx.QueryRowContext(ctx, `
			SELECT text, page_number, confidence FROM highlights WHERE id = ?
		`, h.ID).Scan(&text, &pageNumber, &confidence)
		if err == nil && text == h.Text && pageNumber == h.PageNumber && confidence == h.Confidence {
			return nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("reading highlight: %w", err)
		}

		if err := s.flagPending(ctx, tx, h.NotebookUUID); err != nil {
			return err
		}
		ts := formatTime(s.store.now())
		_, err = tx.ExecContext(ctx, `
			INSERT INTO highlights (id, notebook_uuid, page_number, text, confidence, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				notebook_uuid = excluded.notebook_uuid,
				page_number = excluded.page_number,
				text = excluded.text,
				confidence = excluded.confidence,
				updated_at = excluded.updated_at
		`, h.ID, h.NotebookUUID, h.PageNumber, h.Text, h.Confidence, ts, ts)
		if err != nil {
			return fmt.Errorf("saving highlight: %w", err)
		}
		return nil
	})
}

// SaveTodo stores a todo and flags its notebook when it changed.
func (s *contentStore) SaveTodo(ctx context.Context, t domain.Todo) error {
	if t.ID == "" || t.NotebookUUID == "" {
		return domain.ErrInvalidInput
	}
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		var text string
		var pageNumber, completed int
		var confidence float64
		err := tx.QueryRowContext(ctx, `
			SELECT text, page_number, completed, confidence FROM todos WHERE id = ?
		`, t.ID).Scan(&text, &pageNumber, &completed, &confidence)
		if err == nil && text == t.Text && pageNumber == t.PageNumber &&
			completed == boolToInt(t.Completed) && confidence == t.Confidence {
			return nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("reading todo: %w", err)
		}

		if err := s.flagPending(ctx, tx, t.NotebookUUID); err != nil {
			return err
		}
		ts := formatTime(s.store.now())
		_, err = tx.ExecContext(ctx, `
			INSERT INTO todos (id, notebook_uuid, page_number, text, completed, confidence, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				notebook_uuid = excluded.notebook_uuid,
				page_number = excluded.page_number,
				text = excluded.text,
				completed = excluded.completed,
				confidence = excluded.confidence,
				updated_at = excluded.updated_at
		`, t.ID, t.NotebookUUID, t.PageNumber, t.Text, boolToInt(t.Completed), t.Confidence, ts, ts)
		if err != nil {
			return fmt.Errorf("saving todo: %w", err)
		}
		return nil
	})
}

// flagPending bumps the notebook revision, which makes it pending for every
// target, inserting an untitled row when content arrives before metadata.
func (s *contentStore) flagPending(ctx context.Context, tx *sql.Tx, uuid string) error {
	ts := formatTime(s.store.now())
	_, err := tx.ExecContext(ctx, `
		INSERT INTO notebooks (uuid, revision, created_at, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET revision = notebooks.revision + 1
	`, uuid, ts, ts)
	if err != nil {
		return fmt.Errorf("flagging notebook %s: %w", uuid, err)
	}
	return nil
}

// scanEach calls fn for every row and closes rows.
func scanEach(rows *sql.Rows, fn func() error) error {
	defer rows.Close()
	for rows.Next() {
		if err := fn(); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rows: %w", err)
	}
	return nil
}

// ==================== Mapping Store ====================

// mappingStore implements driven.MappingStore.
type mappingStore struct {
	store *Store
}

var _ driven.MappingStore = (*mappingStore)(nil)

// GetMapping returns the external ID for an owner.
func (s *mappingStore) GetMapping(ctx context.Context, target, ownerID string) (string, error) {
	var id string
	err := s.store.db.QueryRowContext(ctx, `
		SELECT external_id FROM target_mappings WHERE target_name = ? AND owner_id = ?
	`, target, ownerID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting mapping: %w", err)
	}
	return id, nil
}

// SaveMapping creates or replaces a mapping.
func (s *mappingStore) SaveMapping(ctx context.Context, target, ownerID, externalID string) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO target_mappings (target_name, owner_id, external_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(target_name, owner_id) DO UPDATE SET
			external_id = excluded.external_id,
			updated_at = excluded.updated_at
	`, target, ownerID, externalID, formatTime(s.store.now()))
	if err != nil {
		return fmt.Errorf("saving mapping: %w", err)
	}
	return nil
}
