package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/rmsync/internal/core/ports/driving"
)

var (
	backfillTarget   string
	backfillNotebook string
	backfillDryRun   bool
	backfillEnqueue  bool
	backfillMaxItems int
	backfillDelay    time.Duration
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Push pages the target is missing",
	Long: `Lists the pages each target already holds for every notebook and sends
the local pages it lacks. Use --dry-run to only report the gaps, or
--enqueue to mark them for the next sync without sending anything now.`,
	RunE: runBackfill,
}

func init() {
	addRunFlags(backfillCmd, &backfillTarget, &backfillMaxItems, &backfillDelay)
	backfillCmd.Flags().StringVar(&backfillNotebook, "notebook", "", "only this notebook UUID")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "report gaps without sending")
	backfillCmd.Flags().BoolVar(&backfillEnqueue, "enqueue", false, "mark gaps pending for the next sync")
	backfillCmd.MarkFlagsMutuallyExclusive("dry-run", "enqueue")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	if err := requireSync(); err != nil {
		return err
	}

	targets, err := selectTargets(backfillTarget)
	if err != nil {
		return err
	}

	var errs []error
	for _, target := range targets {
		res, err := syncService.Backfill(cmd.Context(), driving.BackfillOptions{
			Target:      target,
			OwnerID:     backfillNotebook,
			DryRun:      backfillDryRun,
			EnqueueOnly: backfillEnqueue,
			MaxItems:    backfillMaxItems,
			Delay:       backfillDelay,
		})
		if err != nil {
			errs = append(errs, describeRunError(target, err))
			continue
		}
		printBackfillResult(cmd.OutOrStdout(), res, backfillDryRun || backfillEnqueue)
		if backfillEnqueue {
			cmd.Printf("  Marked %d pages for the next sync.\n", res.MissingCount())
		}
	}
	return errors.Join(errs...)
}
