package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/rmsync/internal/core/domain"
)

var scheduleLogFile string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run scheduled sync and gap reconciliation",
	Long: `Runs the scheduler in the foreground. Every scheduler.sync_interval_minutes
each target is synchronised, and every scheduler.reconcile_interval_minutes
pages missing from a target are marked for the next sync.

Stop with Ctrl+C.`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleLogFile, "log-file", "", "write logs to a rotating file")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	if scheduler == nil {
		return errors.New("scheduler not configured")
	}

	restore := startDaemonLogging(scheduleLogFile)
	defer restore()

	cfg := settings.Scheduler
	if !cfg.Enabled {
		cmd.Println("Note: scheduler.enabled is false; running in the foreground anyway.")
	}
	cmd.Printf("Sync every %s, reconcile every %s.\n",
		cfg.GetTaskConfig(domain.TaskIDTargetSync).Interval,
		cfg.GetTaskConfig(domain.TaskIDGapReconcile).Interval)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = scheduler.Stop()
	}()

	err := scheduler.Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
