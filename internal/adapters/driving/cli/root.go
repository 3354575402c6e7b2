// Package cli is the rmsync command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
	"github.com/custodia-labs/rmsync/internal/core/ports/driving"
	"github.com/custodia-labs/rmsync/internal/logger"
)

// version is set at build time with -ldflags "-X .../cli.version=...".
var version = "dev"

// annotationStandalone marks commands that run without services.
const annotationStandalone = "rmsync/standalone"

// Services are the dependencies commands run against.
type Services struct {
	Sync      driving.SyncService
	Scheduler driving.Scheduler
	Content   driven.ContentStore
	Config    driven.ConfigStore
	Settings  domain.Settings
}

// Options are the global flag values passed to the bootstrap function.
type Options struct {
	DataDir   string
	ConfigDir string
}

// BootstrapFunc opens stores and builds services. The returned close
// function releases them after the command finishes.
type BootstrapFunc func(opts Options) (*Services, func() error, error)

var (
	syncService  driving.SyncService
	scheduler    driving.Scheduler
	contentStore driven.ContentStore
	configStore  driven.ConfigStore
	settings     = domain.DefaultSettings()

	bootstrap BootstrapFunc
	closeFn   func() error

	verbose   bool
	dataDir   string
	configDir string
)

var rootCmd = &cobra.Command{
	Use:   "rmsync",
	Short: "Sync reMarkable notebooks to Notion and Readwise",
	Long: `rmsync imports text extracted from reMarkable notebooks and keeps
external targets (Notion, Readwise) in step with it.

Every page, highlight and todo is tracked per target in a local ledger,
so only new or changed items are sent and failures are retried on the
next run.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.rmsync)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory (default: data directory)")
	// cmd.Printf writes to stderr unless an output is set.
	rootCmd.SetOut(os.Stdout)
}

// SetBootstrap sets the function that builds services before a command runs.
func SetBootstrap(fn BootstrapFunc) {
	bootstrap = fn
}

// Configure sets the services used by commands.
func Configure(s Services) {
	syncService = s.Sync
	scheduler = s.Scheduler
	contentStore = s.Content
	configStore = s.Config
	settings = s.Settings
}

// Execute runs the root command and releases services afterwards.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if closeFn != nil {
		if cerr := closeFn(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close: %w", cerr))
		}
		closeFn = nil
	}
	return err
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	if bootstrap == nil || cmd.Annotations[annotationStandalone] == "true" {
		return nil
	}

	svc, closer, err := bootstrap(Options{DataDir: dataDir, ConfigDir: configDir})
	if err != nil {
		return err
	}
	Configure(*svc)
	closeFn = closer
	return nil
}

func requireSync() error {
	if syncService == nil {
		return errors.New("sync service not configured")
	}
	return nil
}
