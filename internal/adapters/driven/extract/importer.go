package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
)

// ImportResult counts what a bundle contributed to the content store.
type ImportResult struct {
	NotebookUUID string
	Pages        int
	Highlights   int
	Todos        int
}

// Import saves a validated bundle into the content store. The store flags
// the notebook pending only when something actually changed.
func Import(ctx context.Context, store driven.ContentStore, b *Bundle) (*ImportResult, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil bundle", domain.ErrInvalidInput)
	}

	nb := b.Notebook
	if err := store.SaveNotebook(ctx, domain.Notebook{UUID: nb.UUID, Name: nb.Name, Path: nb.Path}); err != nil {
		return nil, fmt.Errorf("save notebook %s: %w", nb.UUID, err)
	}

	res := &ImportResult{NotebookUUID: nb.UUID}
	for _, p := range b.Pages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		page := domain.Page{NotebookUUID: nb.UUID, PageNumber: p.PageNumber, Text: p.Text, Confidence: p.Confidence}
		if err := store.SavePage(ctx, page); err != nil {
			return res, fmt.Errorf("save page %d: %w", p.PageNumber, err)
		}
		res.Pages++
	}
	for _, h := range b.Highlights {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		hl := domain.Highlight{ID: h.ID, NotebookUUID: nb.UUID, PageNumber: h.PageNumber, Text: h.Text, Confidence: h.Confidence}
		if err := store.SaveHighlight(ctx, hl); err != nil {
			return res, fmt.Errorf("save highlight %s: %w", h.ID, err)
		}
		res.Highlights++
	}
	for _, t := range b.Todos {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		todo := domain.Todo{
			ID:           t.ID,
			NotebookUUID: nb.UUID,
			PageNumber:   t.PageNumber,
			Text:         t.Text,
			Completed:    t.Completed,
			Confidence:   t.Confidence,
		}
		if err := store.SaveTodo(ctx, todo); err != nil {
			return res, fmt.Errorf("save todo %s: %w", t.ID, err)
		}
		res.Todos++
	}
	return res, nil
}

// ImportFile reads and imports a single bundle file.
func ImportFile(ctx context.Context, store driven.ContentStore, path string) (*ImportResult, error) {
	b, err := ReadBundle(path)
	if err != nil {
		return nil, err
	}
	return Import(ctx, store, b)
}

// ImportPath imports path, or every bundle directly inside it when path is
// a directory. A bad bundle does not stop the others; their errors are
// joined in the returned error.
func ImportPath(ctx context.Context, store driven.ContentStore, path string) ([]ImportResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		res, err := ImportFile(ctx, store, path)
		if err != nil {
			return nil, err
		}
		return []ImportResult{*res}, nil
	}

	files, err := ListBundles(path)
	if err != nil {
		return nil, err
	}

	var results []ImportResult
	var errs []error
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := ImportFile(ctx, store, f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, *res)
	}
	return results, errors.Join(errs...)
}

// ListBundles returns the bundle files directly inside dir, sorted by name.
func ListBundles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsBundle(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// IsBundle reports whether name looks like a bundle file. Hidden and
// temporary files written by the pipeline are skipped.
func IsBundle(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), BundleExt)
}
