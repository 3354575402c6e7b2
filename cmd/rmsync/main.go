// Command rmsync syncs text extracted from reMarkable notebooks to Notion
// and Readwise.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/custodia-labs/rmsync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/rmsync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/rmsync/internal/adapters/driving/cli"
	"github.com/custodia-labs/rmsync/internal/core/services"
	"github.com/custodia-labs/rmsync/internal/logger"
	"github.com/custodia-labs/rmsync/internal/targets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetBootstrap(bootstrap)
	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// bootstrap wires the stores, targets and services for one command.
func bootstrap(opts cli.Options) (*cli.Services, func() error, error) {
	dataDir := opts.DataDir
	if dataDir == "" {
		dir, err := file.DefaultDir()
		if err != nil {
			return nil, nil, fmt.Errorf("resolving data directory: %w", err)
		}
		dataDir = dir
	}
	configDir := opts.ConfigDir
	if configDir == "" {
		configDir = dataDir
	}

	if err := file.LoadEnv(configDir); err != nil {
		logger.Warn("reading .env: %v", err)
	}
	cfg, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	settings := services.LoadSettings(cfg, dataDir)

	store, err := sqlite.NewStore(filepath.Join(dataDir, "data"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	registry, err := targets.Build(settings, store.MappingStore(), store.LedgerStore())
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	logger.Debug("targets: %v", registry.Names())

	orch := services.NewSyncOrchestrator(store.ContentStore(), store.LedgerStore(), store.RunStore(), registry, settings)
	sched := services.NewScheduler(settings.Scheduler, store.SchedulerStore(), orch)

	return &cli.Services{
		Sync:      orch,
		Scheduler: sched,
		Content:   store.ContentStore(),
		Config:    cfg,
		Settings:  settings,
	}, store.Close, nil
}
