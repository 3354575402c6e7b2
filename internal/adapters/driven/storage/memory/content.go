package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
)

// Ensure ContentStore implements the interface.
var _ driven.ContentStore = (*ContentStore)(nil)

// ContentStore is an in-memory implementation of driven.ContentStore.
type ContentStore struct {
	mu         sync.RWMutex
	notebooks  map[string]domain.Notebook
	pages      map[string]map[int]domain.Page
	highlights map[string]domain.Highlight
	todos      map[string]domain.Todo

	// revisions counts changes per notebook; acks holds the revision each
	// target last acknowledged.
	revisions map[string]int
	acks      map[string]map[string]int
}

// NewContentStore creates a new in-memory content store.
func NewContentStore() *ContentStore {
	return &ContentStore{
		notebooks:  make(map[string]domain.Notebook),
		pages:      make(map[string]map[int]domain.Page),
		highlights: make(map[string]domain.Highlight),
		todos:      make(map[string]domain.Todo),
		revisions:  make(map[string]int),
		acks:       make(map[string]map[string]int),
	}
}

// GetUnitsForOwner returns the notebook's units, pages first.
func (s *ContentStore) GetUnitsForOwner(_ context.Context, ownerID string) ([]domain.SyncableUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	title := s.notebooks[ownerID].Name
	var units []domain.SyncableUnit

	numbers := make([]int, 0, len(s.pages[ownerID]))
	for n := range s.pages[ownerID] {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	for _, n := range numbers {
		p := s.pages[ownerID][n]
		if hasText(p.Text) {
			units = append(units, p.Unit(title))
		}
	}

	for _, id := range sortedKeys(s.highlights) {
		h := s.highlights[id]
		if h.NotebookUUID == ownerID && hasText(h.Text) {
			units = append(units, h.Unit(title))
		}
	}
	for _, id := range sortedKeys(s.todos) {
		t := s.todos[id]
		if t.NotebookUUID == ownerID && hasText(t.Text) {
			units = append(units, t.Unit(title))
		}
	}

	return units, nil
}

// GetAllPendingOwners returns, in UUID order, the notebooks changed since
// target last acknowledged them.
func (s *ContentStore) GetAllPendingOwners(_ context.Context, target string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owners := []string{}
	for _, id := range sortedKeys(s.revisions) {
		if s.revisions[id] > s.acks[target][id] {
			owners = append(owners, id)
		}
	}
	return owners, nil
}

// AcknowledgeOwner records the notebook's current revision for target.
func (s *ContentStore) AcknowledgeOwner(_ context.Context, target, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rev, ok := s.revisions[ownerID]
	if !ok {
		return nil
	}
	if s.acks[target] == nil {
		s.acks[target] = make(map[string]int)
	}
	s.acks[target][ownerID] = rev
	return nil
}

// MarkOwnerPending flags a notebook for every target.
func (s *ContentStore) MarkOwnerPending(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revisions[ownerID]++
	return nil
}

// ListOwners returns every notebook UUID with stored content.
func (s *ContentStore) ListOwners(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for id := range s.notebooks {
		seen[id] = true
	}
	for id := range s.pages {
		seen[id] = true
	}
	for _, h := range s.highlights {
		seen[h.NotebookUUID] = true
	}
	for _, t := range s.todos {
		seen[t.NotebookUUID] = true
	}
	return sortedKeys(seen), nil
}

// GetNotebook returns notebook metadata.
func (s *ContentStore) GetNotebook(_ context.Context, uuid string) (*domain.Notebook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nb, ok := s.notebooks[uuid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &nb, nil
}

// SaveNotebook creates or updates notebook metadata.
func (s *ContentStore) SaveNotebook(_ context.Context, nb domain.Notebook) error {
	if nb.UUID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.notebooks[nb.UUID]; ok {
		nb.CreatedAt = existing.CreatedAt
	}
	s.notebooks[nb.UUID] = stamp(nb)
	return nil
}

// SavePage stores a page and flags its notebook when the text changed.
func (s *ContentStore) SavePage(_ context.Context, page domain.Page) error {
	if page.NotebookUUID == "" || page.PageNumber < 0 {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pages[page.NotebookUUID] == nil {
		s.pages[page.NotebookUUID] = make(map[int]domain.Page)
	}
	now := time.Now().UTC()
	existing, ok := s.pages[page.NotebookUUID][page.PageNumber]
	if ok && existing.Text == page.Text && existing.Confidence == page.Confidence {
		return nil
	}
	page.CreatedAt = now
	if ok {
		page.CreatedAt = existing.CreatedAt
	}
	page.UpdatedAt = now
	s.pages[page.NotebookUUID][page.PageNumber] = page
	s.revisions[page.NotebookUUID]++
	return nil
}

// SaveHighlight stores a highlight and flags its notebook when it changed.
func (s *ContentStore) SaveHighlight(_ context.Context, h domain.Highlight) error {
	if h.ID == "" || h.NotebookUUID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := s.highlights[h.ID]
	if ok && existing.Text == h.Text && existing.PageNumber == h.PageNumber && existing.Confidence == h.Confidence {
		return nil
	}
	h.CreatedAt = now
	if ok {
		h.CreatedAt = existing.CreatedAt
	}
	h.UpdatedAt = now
	s.highlights[h.ID] = h
	s.revisions[h.NotebookUUID]++
	return nil
}

// SaveTodo stores a todo and flags its notebook when it changed.
func (s *ContentStore) SaveTodo(_ context.Context, t domain.Todo) error {
	if t.ID == "" || t.NotebookUUID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := s.todos[t.ID]
	if ok && existing.Text == t.Text && existing.PageNumber == t.PageNumber &&
		existing.Completed == t.Completed && existing.Confidence == t.Confidence {
		return nil
	}
	t.CreatedAt = now
	if ok {
		t.CreatedAt = existing.CreatedAt
	}
	t.UpdatedAt = now
	s.todos[t.ID] = t
	s.revisions[t.NotebookUUID]++
	return nil
}

func stamp(nb domain.Notebook) domain.Notebook {
	now := time.Now().UTC()
	if nb.CreatedAt.IsZero() {
		nb.CreatedAt = now
	}
	nb.UpdatedAt = now
	return nb
}

func hasText(s string) bool {
	return strings.TrimSpace(s) != ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
