package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// Cleanup defaults.
const (
	defaultCleanupRetries = 3
	defaultCleanupAge     = 24 * time.Hour
)

var (
	retryTarget    string
	retryResetOnly bool
	cleanupRetries int
	cleanupOlder   time.Duration
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Reset retry counters and sync failed items",
	Long: `Clears the retry count of failed records so items that hit
sync.max_retries are admitted again, then runs a sync. Use --reset to only
clear the counters.`,
	RunE: runRetry,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete failed records that keep failing",
	Long: `Deletes error records that failed at least --max-retries times and
have not changed for --older-than. Deleted items are picked up again as new
the next time their notebook changes.`,
	RunE: runCleanup,
}

func init() {
	retryCmd.Flags().StringVarP(&retryTarget, "target", "t", "", "only this target (default: all)")
	retryCmd.Flags().BoolVar(&retryResetOnly, "reset", false, "reset counters without syncing")
	cleanupCmd.Flags().IntVar(&cleanupRetries, "max-retries", defaultCleanupRetries, "minimum failure count")
	cleanupCmd.Flags().DurationVar(&cleanupOlder, "older-than", defaultCleanupAge, "minimum age since last attempt")
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(cleanupCmd)
}

func runRetry(cmd *cobra.Command, _ []string) error {
	if err := requireSync(); err != nil {
		return err
	}

	n, err := syncService.ResetRetries(cmd.Context(), retryTarget)
	if err != nil {
		return fmt.Errorf("failed to reset retries: %w", err)
	}
	cmd.Printf("Reset %d failed records.\n", n)

	if retryResetOnly || n == 0 {
		return nil
	}

	syncTarget = retryTarget
	defer func() { syncTarget = "" }()
	return runSync(cmd, nil)
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	if err := requireSync(); err != nil {
		return err
	}

	n, err := syncService.Cleanup(cmd.Context(), cleanupRetries, cleanupOlder)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	cmd.Printf("Deleted %d failed records.\n", n)
	return nil
}
