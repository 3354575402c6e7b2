package targets

import (
	"fmt"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
	"github.com/custodia-labs/rmsync/internal/core/services"
	"github.com/custodia-labs/rmsync/internal/logger"
	"github.com/custodia-labs/rmsync/internal/targets/notion"
	"github.com/custodia-labs/rmsync/internal/targets/readwise"
)

// Names lists every target rmsync knows how to build.
var Names = []string{notion.TargetName, readwise.TargetName}

// Build creates a registry holding a client for every configured target.
// Targets without credentials are left out.
func Build(
	settings domain.Settings,
	mappings driven.MappingStore,
	ledger driven.SyncLedgerStore,
) (*services.TargetRegistry, error) {
	var clients []driven.TargetClient

	switch {
	case settings.Notion.Configured():
		c, err := notion.NewClient(notion.Config{
			Token:          settings.Notion.Token,
			DatabaseID:     settings.Notion.DatabaseID,
			TodoDatabaseID: settings.Notion.TodoDatabaseID,
		}, mappings, ledger)
		if err != nil {
			return nil, fmt.Errorf("build notion target: %w", err)
		}
		clients = append(clients, c)
	case settings.Notion.Token != "":
		logger.Warn("notion token set but notion.database_id is empty, skipping notion")
	}

	if settings.Readwise.Configured() {
		c, err := readwise.NewClient(settings.Readwise.Token, mappings)
		if err != nil {
			return nil, fmt.Errorf("build readwise target: %w", err)
		}
		clients = append(clients, c)
	}

	registry := services.NewTargetRegistry(clients...)
	logger.Debug("configured targets: %v", registry.Names())
	return registry, nil
}
