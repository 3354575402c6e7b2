package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/rmsync/internal/core/domain"
)

// statusRunLimit is the number of runs shown by status.
const statusRunLimit = 5

var (
	recordsTarget   string
	recordsStatus   string
	recordsType     string
	recordsNotebook string
	recordsLimit    int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger totals and recent runs",
	RunE:  runStatus,
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List sync ledger records",
	Long: `Lists per-target sync records, most recently updated first.

Examples:
  # Everything that failed for Notion
  rmsync records --target notion --status error

  # All todos of one notebook
  rmsync records --type todo --notebook 3f2a...`,
	RunE: runRecords,
}

func init() {
	recordsCmd.Flags().StringVarP(&recordsTarget, "target", "t", "", "only this target")
	recordsCmd.Flags().StringVarP(&recordsStatus, "status", "s", "", "only this status (pending, success, error)")
	recordsCmd.Flags().StringVar(&recordsType, "type", "", "only this item type (page, highlight, todo)")
	recordsCmd.Flags().StringVar(&recordsNotebook, "notebook", "", "only this notebook UUID")
	recordsCmd.Flags().IntVarP(&recordsLimit, "limit", "l", 20, "maximum records to list (0 = all)")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(recordsCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if err := requireSync(); err != nil {
		return err
	}

	stats, err := syncService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	printStats(cmd.OutOrStdout(), stats, syncService.Targets())

	runs, err := syncService.Runs(cmd.Context(), statusRunLimit)
	if err != nil {
		return fmt.Errorf("failed to read run history: %w", err)
	}
	cmd.Println()
	printRuns(cmd.OutOrStdout(), runs)
	return nil
}

func runRecords(cmd *cobra.Command, _ []string) error {
	if err := requireSync(); err != nil {
		return err
	}

	filter := domain.LedgerFilter{
		TargetName: recordsTarget,
		OwnerID:    recordsNotebook,
		Limit:      recordsLimit,
	}
	if recordsStatus != "" {
		status := domain.SyncStatus(recordsStatus)
		if !status.IsValid() {
			return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, recordsStatus)
		}
		filter.Statuses = []domain.SyncStatus{status}
	}
	if recordsType != "" {
		t, err := domain.ParseItemType(recordsType)
		if err != nil {
			return err
		}
		filter.ItemType = t
	}

	records, err := syncService.Records(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	printRecords(cmd.OutOrStdout(), records)
	return nil
}
