package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
)

// Ensure MappingStore implements the interface.
var _ driven.MappingStore = (*MappingStore)(nil)

// MappingStore is an in-memory implementation of driven.MappingStore.
type MappingStore struct {
	mu       sync.RWMutex
	mappings map[string]string
}

// NewMappingStore creates a new in-memory mapping store.
func NewMappingStore() *MappingStore {
	return &MappingStore{mappings: make(map[string]string)}
}

// GetMapping returns the external ID for an owner.
func (s *MappingStore) GetMapping(_ context.Context, target, ownerID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.mappings[target+"\x00"+ownerID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return id, nil
}

// SaveMapping creates or replaces a mapping.
func (s *MappingStore) SaveMapping(_ context.Context, target, ownerID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[target+"\x00"+ownerID] = externalID
	return nil
}
