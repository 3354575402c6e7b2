package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/custodia-labs/rmsync/internal/adapters/driven/extract"
	"github.com/custodia-labs/rmsync/internal/adapters/driving/watch"
	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driving"
	"github.com/custodia-labs/rmsync/internal/logger"
)

// Log rotation limits for --log-file.
const (
	logMaxSizeMB  = 10
	logMaxBackups = 5
	logMaxAgeDays = 30
)

var (
	watchInbox    string
	watchDebounce time.Duration
	watchSync     bool
	watchScan     bool
	watchLogFile  string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Import bundles as they land in the inbox",
	Long: `Watches the inbox directory for extraction bundles and imports each one
once it has stopped changing for the debounce period. With --sync, a sync
runs for every target after each batch of imports.

Stop with Ctrl+C.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchInbox, "inbox", "", "directory to watch (default: watch.inbox)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "quiet period before import (default: watch.debounce_seconds)")
	watchCmd.Flags().BoolVar(&watchSync, "sync", false, "sync targets after each import batch")
	watchCmd.Flags().BoolVar(&watchScan, "scan", true, "import bundles already in the inbox at startup")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "write logs to a rotating file")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if contentStore == nil {
		return errors.New("content store not configured")
	}
	if watchSync {
		if err := requireSync(); err != nil {
			return err
		}
	}

	inbox := watchInbox
	if inbox == "" {
		inbox = settings.Watch.Inbox
	}
	if inbox == "" {
		return fmt.Errorf("%w: no inbox directory, set watch.inbox or --inbox", domain.ErrInvalidInput)
	}
	debounce := watchDebounce
	if debounce <= 0 {
		debounce = settings.Watch.Debounce
	}

	restore := startDaemonLogging(watchLogFile)
	defer restore()

	out := cmd.OutOrStdout()
	w := watch.New(inbox, contentStore,
		watch.WithDebounce(debounce),
		watch.WithInitialScan(watchScan),
		watch.WithBatchHandler(func(ctx context.Context, results []extract.ImportResult) {
			for _, r := range results {
				fmt.Fprintf(out, "Imported %s: %d pages, %d highlights, %d todos\n", r.NotebookUUID, r.Pages, r.Highlights, r.Todos)
			}
			if watchSync {
				syncAfterImport(ctx, out)
			}
		}),
	)

	cmd.Printf("Watching %s (debounce %s)\n", w.Inbox(), debounce)
	err := w.Run(cmd.Context())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// syncAfterImport runs one sync per target. Failures are logged and the
// watcher keeps going.
func syncAfterImport(ctx context.Context, out io.Writer) {
	for _, target := range syncService.Targets() {
		res, err := syncService.Run(ctx, driving.RunOptions{Target: target})
		if err != nil {
			logger.Error("%v", describeRunError(target, err))
			continue
		}
		printRunResult(out, res)
	}
}

// startDaemonLogging turns on timestamps and, when path is set, sends log
// output to a rotating file. The returned function restores the defaults.
func startDaemonLogging(path string) func() {
	logger.SetTimestamps(true)
	if path == "" {
		return func() { logger.SetTimestamps(false) }
	}

	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
		Compress:   true,
	}
	logger.SetOutput(lj)
	logger.Info("logging to %s", path)

	return func() {
		logger.SetOutput(os.Stderr)
		logger.SetTimestamps(false)
		_ = lj.Close()
	}
}
