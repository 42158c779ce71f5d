package run

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wanderlist/imagebackfill/internal/app"
	"github.com/wanderlist/imagebackfill/internal/backfill"
	"github.com/wanderlist/imagebackfill/internal/errors"
)

// ErrFatalRun is returned when the run ends in failed_fatal.
var ErrFatalRun = errors.NewStd("backfill run failed")

// Command creates the run command: one backfill invocation, report on stdout.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one image backfill and print the report",
		Long: `Run one image backfill over the configured tables and print the run report as JSON.

Interrupting the run (Ctrl-C, SIGTERM) stops it after the chunk in progress;
remaining rows are picked up by the next run. Exits non-zero only when the run
could not start because configuration is missing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return execute(runCtx, ctx, cmd.OutOrStdout())
		},
	}

	setupFlags(cmd)
	return cmd
}

// setupFlags configures flags specific to the run command. See conf.FlagKeys.
func setupFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("table", nil, "Table to backfill, repeatable or comma separated (overrides backfill.tables)")
	cmd.Flags().Int("chunk-size", 0, "Rows per chunk")
	cmd.Flags().Duration("delay", 0, "Pause after each successful row, e.g. 500ms")
	cmd.Flags().Int("max-chunks", 0, "Chunks per table in this run, 0 = unlimited")
	cmd.Flags().Int("workers", 0, "Tables processed concurrently")
	cmd.Flags().String("bucket", "", "Object storage bucket")
	cmd.Flags().String("provider", "", "Image provider (pexels, wikimedia)")
	cmd.Flags().String("selection", "", "Candidate selection (first, random)")
	cmd.Flags().Int64("seed", 0, "Seed for random selection")
}

func execute(ctx context.Context, appCtx *app.Context, out io.Writer) error {
	runner, err := app.New(ctx, appCtx.Settings, appCtx.Module("app"))
	if err != nil {
		return err
	}
	defer func() { _ = runner.Close() }()

	report := runner.Run(ctx)
	if err := writeReport(out, report); err != nil {
		return err
	}
	if report.Status == backfill.StatusFailedFatal {
		return ErrFatalRun
	}
	return nil
}

func writeReport(out io.Writer, report *backfill.RunReport) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
