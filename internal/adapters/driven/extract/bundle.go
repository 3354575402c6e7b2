// Package extract reads the JSON bundles written by the OCR and parsing
// pipeline and imports them into the content store.
//
// A bundle describes one notebook:
//
//	{"notebook": {"uuid": "...", "name": "...", "path": "..."},
//	 "pages": [{"page_number": 1, "text": "...", "confidence": 0.92}],
//	 "highlights": [{"id": "...", "page_number": 3, "text": "...", "confidence": 1}],
//	 "todos": [{"id": "...", "page_number": 2, "text": "...", "completed": false, "confidence": 0.8}]}
package extract

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/custodia-labs/rmsync/internal/core/domain"
)

// BundleExt is the file extension of extraction bundles.
const BundleExt = ".json"

// Bundle is the extracted content of one notebook.
type Bundle struct {
	Notebook   NotebookEntry    `json:"notebook"`
	Pages      []PageEntry      `json:"pages"`
	Highlights []HighlightEntry `json:"highlights"`
	Todos      []TodoEntry      `json:"todos"`
}

// NotebookEntry is the notebook metadata of a bundle.
type NotebookEntry struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// PageEntry is the OCR text of one page.
type PageEntry struct {
	PageNumber int     `json:"page_number"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// HighlightEntry is one PDF or EPUB annotation.
type HighlightEntry struct {
	ID         string  `json:"id"`
	PageNumber int     `json:"page_number"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// TodoEntry is one detected task.
type TodoEntry struct {
	ID         string  `json:"id"`
	PageNumber int     `json:"page_number"`
	Text       string  `json:"text"`
	Completed  bool    `json:"completed"`
	Confidence float64 `json:"confidence"`
}

// ReadBundle decodes and validates the bundle at path.
func ReadBundle(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	b, err := DecodeBundle(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// DecodeBundle decodes and validates a bundle from r.
func DecodeBundle(r io.Reader) (*Bundle, error) {
	var b Bundle
	dec := json.NewDecoder(r)
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: decode bundle: %v", domain.ErrInvalidInput, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks identifiers, page numbers and confidences. Empty text is
// allowed; the content store never yields it as a unit.
func (b *Bundle) Validate() error {
	if strings.TrimSpace(b.Notebook.UUID) == "" {
		return invalid("notebook uuid is required")
	}

	pages := make(map[int]struct{}, len(b.Pages))
	for i, p := range b.Pages {
		if p.PageNumber < 0 {
			return invalid("pages[%d]: negative page number %d", i, p.PageNumber)
		}
		if _, dup := pages[p.PageNumber]; dup {
			return invalid("pages[%d]: duplicate page number %d", i, p.PageNumber)
		}
		pages[p.PageNumber] = struct{}{}
		if err := checkConfidence("pages", i, p.Confidence); err != nil {
			return err
		}
	}

	ids := make(map[string]struct{}, len(b.Highlights)+len(b.Todos))
	for i, h := range b.Highlights {
		if err := checkEntry("highlights", i, h.ID, h.PageNumber, h.Confidence, ids); err != nil {
			return err
		}
	}
	for i, t := range b.Todos {
		if err := checkEntry("todos", i, t.ID, t.PageNumber, t.Confidence, ids); err != nil {
			return err
		}
	}
	return nil
}

func checkEntry(section string, i int, id string, page int, confidence float64, seen map[string]struct{}) error {
	if strings.TrimSpace(id) == "" {
		return invalid("%s[%d]: id is required", section, i)
	}
	key := section + "/" + id
	if _, dup := seen[key]; dup {
		return invalid("%s[%d]: duplicate id %q", section, i, id)
	}
	seen[key] = struct{}{}
	if page < 0 {
		return invalid("%s[%d]: negative page number %d", section, i, page)
	}
	return checkConfidence(section, i, confidence)
}

func checkConfidence(section string, i int, c float64) error {
	if c < 0 || c > 1 {
		return invalid("%s[%d]: confidence %v outside [0, 1]", section, i, c)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, fmt.Sprintf(format, args...))
}
