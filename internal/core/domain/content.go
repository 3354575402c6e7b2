package domain

import "time"

// Notebook is a reMarkable document known to the content store.
type Notebook struct {
	UUID      string
	Name      string
	Path      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Page is the extracted text of one notebook page.
type Page struct {
	NotebookUUID string
	PageNumber   int
	Text         string
	Confidence   float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Highlight is an annotation extracted from a PDF or EPUB.
type Highlight struct {
	ID           string
	NotebookUUID string
	PageNumber   int
	Text         string
	Confidence   float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Todo is a task detected in handwriting.
type Todo struct {
	ID           string
	NotebookUUID string
	PageNumber   int
	Text         string
	Completed    bool
	Confidence   float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Unit converts the page to a syncable unit with its hash set.
func (p Page) Unit(ownerTitle string) SyncableUnit {
	return SyncableUnit{
		ItemType:   ItemTypePage,
		ItemID:     PageItemID(p.NotebookUUID, p.PageNumber),
		OwnerID:    p.NotebookUUID,
		OwnerTitle: ownerTitle,
		Sequence:   p.PageNumber,
		Text:       p.Text,
		Confidence: p.Confidence,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}.WithHash()
}

// Unit converts the highlight to a syncable unit with its hash set.
func (h Highlight) Unit(ownerTitle string) SyncableUnit {
	return SyncableUnit{
		ItemType:   ItemTypeHighlight,
		ItemID:     h.ID,
		OwnerID:    h.NotebookUUID,
		OwnerTitle: ownerTitle,
		Sequence:   h.PageNumber,
		Text:       h.Text,
		Confidence: h.Confidence,
		CreatedAt:  h.CreatedAt,
		UpdatedAt:  h.UpdatedAt,
	}.WithHash()
}

// Unit converts the todo to a syncable unit with its hash set.
func (t Todo) Unit(ownerTitle string) SyncableUnit {
	return SyncableUnit{
		ItemType:   ItemTypeTodo,
		ItemID:     t.ID,
		OwnerID:    t.NotebookUUID,
		OwnerTitle: ownerTitle,
		Sequence:   t.PageNumber,
		Text:       t.Text,
		Confidence: t.Confidence,
		Completed:  t.Completed,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}.WithHash()
}
