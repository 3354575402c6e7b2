package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
)

// fakeTarget is a deterministic in-memory driven.TargetClient.
type fakeTarget struct {
	mu       sync.Mutex
	name     string
	types    map[domain.ItemType]bool
	calls    []upsertCall
	failFor  map[string]error
	known    map[string]map[int]struct{}
	listErr  error
	listed   []string
	nextRef  int
	onUpsert func()
}

type upsertCall struct {
	ItemID string
	Ref    string
}

var _ driven.TargetClient = (*fakeTarget)(nil)

func newFakeTarget(name string) *fakeTarget {
	return &fakeTarget{
		name:    name,
		types:   map[domain.ItemType]bool{domain.ItemTypePage: true, domain.ItemTypeTodo: true},
		failFor: make(map[string]error),
		known:   make(map[string]map[int]struct{}),
	}
}

func (f *fakeTarget) Name() string { return f.name }

func (f *fakeTarget) Supports(t domain.ItemType) bool { return f.types[t] }

func (f *fakeTarget) Upsert(_ context.Context, unit domain.SyncableUnit, ref string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, upsertCall{ItemID: unit.ItemID, Ref: ref})
	if f.onUpsert != nil {
		f.onUpsert()
	}
	if err := f.failFor[unit.ItemID]; err != nil {
		return "", err
	}
	if ref != "" {
		return ref, nil
	}
	f.nextRef++
	return fmt.Sprintf("ref-%d", f.nextRef), nil
}

func (f *fakeTarget) ListKnownItems(_ context.Context, ownerID string) (map[int]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed = append(f.listed, ownerID)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.known[ownerID], nil
}

func (f *fakeTarget) callIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.calls))
	for i, c := range f.calls {
		ids[i] = c.ItemID
	}
	return ids
}

// countingSleeper records requested waits without sleeping.
type countingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *countingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

func (s *countingSleeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waits)
}

func page(owner string, seq int, text string) domain.SyncableUnit {
	return domain.Page{NotebookUUID: owner, PageNumber: seq, Text: text, Confidence: 0.9}.Unit("Notebook " + owner)
}

func itemIDs(units []domain.SyncableUnit) []string {
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ItemID
	}
	return ids
}

func known(seqs ...int) map[int]struct{} {
	m := make(map[int]struct{}, len(seqs))
	for _, s := range seqs {
		m[s] = struct{}{}
	}
	return m
}
