package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driving"
)

var (
	syncTarget   string
	syncMaxItems int
	syncDelay    time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronise changed notebooks to targets",
	Long: `Detects new and changed pages, highlights and todos in notebooks
imported since the last run and sends them to each configured target.
Failed items from earlier runs are retried after the new work, up to the
--max-items budget. If --target is omitted, every target is synchronised.`,
	RunE: runSync,
}

func init() {
	addRunFlags(syncCmd, &syncTarget, &syncMaxItems, &syncDelay)
	rootCmd.AddCommand(syncCmd)
}

func addRunFlags(cmd *cobra.Command, target *string, maxItems *int, delay *time.Duration) {
	cmd.Flags().StringVarP(target, "target", "t", "", "target to synchronise (default: all configured)")
	cmd.Flags().IntVarP(maxItems, "max-items", "n", 0, "maximum items to send (default: sync.max_items)")
	cmd.Flags().DurationVar(delay, "delay", 0, "wait between target calls (default: sync.delay_seconds)")
}

func runSync(cmd *cobra.Command, _ []string) error {
	if err := requireSync(); err != nil {
		return err
	}

	targets, err := selectTargets(syncTarget)
	if err != nil {
		return err
	}

	var errs []error
	for _, target := range targets {
		res, err := syncService.Run(cmd.Context(), driving.RunOptions{
			Target:   target,
			MaxItems: syncMaxItems,
			Delay:    syncDelay,
		})
		if err != nil {
			errs = append(errs, describeRunError(target, err))
			continue
		}
		printRunResult(cmd.OutOrStdout(), res)
	}
	return errors.Join(errs...)
}

// selectTargets returns the named target, or every configured one.
func selectTargets(name string) ([]string, error) {
	if name != "" {
		return []string{name}, nil
	}
	targets := syncService.Targets()
	if len(targets) == 0 {
		return nil, errors.New("no targets configured: set notion.token and notion.database_id, or readwise.token")
	}
	return targets, nil
}

func describeRunError(target string, err error) error {
	switch {
	case errors.Is(err, domain.ErrSyncInProgress):
		return fmt.Errorf("%s: another sync is already running", target)
	case errors.Is(err, domain.ErrTargetNotConfigured):
		return fmt.Errorf("%s: target not configured", target)
	default:
		return fmt.Errorf("%s: %w", target, err)
	}
}
