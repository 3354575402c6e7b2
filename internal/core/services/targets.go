package services

import (
	"fmt"
	"sort"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
)

// Ensure TargetRegistry implements the interface.
var _ driven.TargetRegistry = (*TargetRegistry)(nil)

// TargetRegistry holds the configured target clients by name.
type TargetRegistry struct {
	clients map[string]driven.TargetClient
}

// NewTargetRegistry creates a registry from clients. Nil clients are ignored.
func NewTargetRegistry(clients ...driven.TargetClient) *TargetRegistry {
	r := &TargetRegistry{clients: make(map[string]driven.TargetClient)}
	for _, c := range clients {
		if c != nil {
			r.clients[c.Name()] = c
		}
	}
	return r
}

// Get returns the client registered under name.
func (r *TargetRegistry) Get(name string) (driven.TargetClient, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTargetNotConfigured, name)
	}
	return c, nil
}

// Names lists registered targets alphabetically.
func (r *TargetRegistry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
