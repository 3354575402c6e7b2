// Package watch imports extraction bundles as they land in the inbox.
//
// Events are coalesced per path: a bundle is imported once no event has
// been seen for it during the debounce interval, so a file that is still
// being written is read only after the writer has gone quiet. The watcher
// only writes to the content store; syncing is left to the caller.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/rmsync/internal/adapters/driven/extract"
	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
	"github.com/custodia-labs/rmsync/internal/logger"
)

// BatchFunc is called after each flush that imported at least one bundle.
type BatchFunc func(ctx context.Context, results []extract.ImportResult)

// Watcher watches an inbox directory for extraction bundles.
type Watcher struct {
	inbox    string
	store    driven.ContentStore
	debounce time.Duration
	tick     time.Duration
	onBatch  BatchFunc
	scan     bool
	now      func() time.Time

	mu      sync.Mutex
	queue   map[string]time.Time
	running bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a path must stay quiet before it is imported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithBatchHandler registers a callback run after each import batch.
func WithBatchHandler(fn BatchFunc) Option {
	return func(w *Watcher) { w.onBatch = fn }
}

// WithInitialScan queues bundles already in the inbox when Run starts.
func WithInitialScan(scan bool) Option {
	return func(w *Watcher) { w.scan = scan }
}

// New creates a watcher for inbox. The inbox is created on Run if missing.
func New(inbox string, store driven.ContentStore, opts ...Option) *Watcher {
	w := &Watcher{
		inbox:    inbox,
		store:    store,
		debounce: domain.DefaultDebounce,
		now:      time.Now,
		queue:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.tick = tickFor(w.debounce)
	return w
}

// Inbox returns the watched directory.
func (w *Watcher) Inbox() string {
	return w.inbox
}

// Run watches until ctx is cancelled. Bundles still inside their debounce
// window at shutdown are left for the next start.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if err := os.MkdirAll(w.inbox, 0700); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.inbox); err != nil {
		return fmt.Errorf("watch inbox %s: %w", w.inbox, err)
	}
	logger.Info("watching %s (debounce %s)", w.inbox, w.debounce)

	if w.scan {
		files, err := extract.ListBundles(w.inbox)
		if err != nil {
			return fmt.Errorf("scan inbox: %w", err)
		}
		for _, f := range files {
			w.enqueue(f)
		}
	}

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch: %v", err)

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// Pending returns the number of paths waiting out their debounce window.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !extract.IsBundle(event.Name) {
		return
	}
	logger.Debug("watch: %s %s", event.Op, event.Name)
	w.enqueue(event.Name)
}

// enqueue restarts the debounce window of path.
func (w *Watcher) enqueue(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queue[path] = w.now()
}

// flush imports every path that has been quiet for the debounce interval.
func (w *Watcher) flush(ctx context.Context) []extract.ImportResult {
	due := w.takeDue()
	if len(due) == 0 {
		return nil
	}

	var results []extract.ImportResult
	for _, path := range due {
		if ctx.Err() != nil {
			return results
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logger.Debug("watch: %s vanished before import", path)
			continue
		}
		res, err := extract.ImportFile(ctx, w.store, path)
		if err != nil {
			logger.Error("import %s: %v", path, err)
			continue
		}
		logger.Info("imported %s: %d pages, %d highlights, %d todos",
			res.NotebookUUID, res.Pages, res.Highlights, res.Todos)
		results = append(results, *res)
	}

	if len(results) > 0 && w.onBatch != nil {
		w.onBatch(ctx, results)
	}
	return results
}

func (w *Watcher) takeDue() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	var due []string
	for path, queuedAt := range w.queue {
		if now.Sub(queuedAt) < w.debounce {
			continue
		}
		due = append(due, path)
		delete(w.queue, path)
	}
	sort.Strings(due)
	return due
}

// tickFor polls at half the debounce so a quiet path waits at most 1.5x.
func tickFor(debounce time.Duration) time.Duration {
	const minTick = 50 * time.Millisecond
	if t := debounce / 2; t > minTick {
		return t
	}
	return minTick
}
