package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Acribbs/ONT-VC/internal/engine"
	"github.com/Acribbs/ONT-VC/internal/ledger"
	"github.com/Acribbs/ONT-VC/internal/pipeline"
	"github.com/Acribbs/ONT-VC/internal/toolrun"
)

// DefaultLedgerPath is where the checkpoint ledger lives unless --db
// says otherwise.
const DefaultLedgerPath = ".ontvc/ledger.db"

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Jobs     int
	Timeout  time.Duration

	// Runner allows overriding the tool runner (for testing).
	// If nil, defaults to ShellRunner.
	Runner toolrun.Runner
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <pipeline.yml>",
		Short: "Execute the variant-calling pipeline",
		Long: `Execute the ONT-VC variant-calling pipeline described by a parameter file.

The run is resumable: every task completion is recorded in the checkpoint
ledger, and a re-run skips tasks whose outputs are still up to date. A
failed stage only blocks its own downstream tasks; independent branches
run to completion.

Example:
  ontvc run pipeline.yml
  ontvc run pipeline.yml --jobs 4 --db /scratch/ledger.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", DefaultLedgerPath, "path to the checkpoint ledger database")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 1, "maximum number of tasks to run in parallel")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-task timeout (0 = none)")

	return cmd
}

func runPipeline(opts *RunOptions, configPath string, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	_, samples, graph, err := loadGraph(configPath)
	if err != nil {
		return err
	}
	slog.Info("graph built",
		"samples", len(samples),
		"tasks", len(graph.TaskIDs()),
	)

	if dir := filepath.Dir(opts.Database); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return WrapExitError(ExitLedgerError, "create ledger directory", err)
		}
	}
	led, err := ledger.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitLedgerError, "failed to open checkpoint ledger", err)
	}
	defer func() {
		if closeErr := led.Close(); closeErr != nil {
			slog.Error("error closing ledger", "error", closeErr)
		}
	}()

	runner := opts.Runner
	if runner == nil {
		runner = &toolrun.ShellRunner{}
	}

	// Setup signal handling for graceful shutdown.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, winding down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	eng := engine.New(graph, led, runner,
		engine.WithMaxParallelism(opts.Jobs),
		engine.WithTaskTimeout(opts.Timeout),
	)

	result, runErr := eng.Run(ctx)
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			if result != nil {
				printRunSummary(cmd, opts, result)
			}
			return NewExitError(ExitTaskFailure, "run cancelled")
		}
		if ledger.IsLedgerError(runErr) {
			return WrapExitError(ExitLedgerError, "checkpoint ledger failure", runErr)
		}
		return WrapExitError(ExitTaskFailure, "engine failure", runErr)
	}

	printRunSummary(cmd, opts, result)

	if result.Failed() {
		return NewExitError(ExitTaskFailure, "one or more tasks failed")
	}
	return nil
}

// printRunSummary renders the per-task terminal statuses.
func printRunSummary(cmd *cobra.Command, opts *RunOptions, result *engine.RunResult) {
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if f.Format == "json" {
		_ = f.Success(result)
		return
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "run %s\n", result.RunToken)
	for _, o := range result.Outcomes {
		switch o.Status {
		case pipeline.StatusFailed:
			fmt.Fprintf(w, "  %-40s %s (exit %d)\n", o.ID, o.Status, o.ExitCode)
		default:
			fmt.Fprintf(w, "  %-40s %s\n", o.ID, o.Status)
		}
	}
	counts := result.CountByStatus()
	fmt.Fprintf(w, "succeeded=%d skipped=%d failed=%d skipped_failure=%d\n",
		counts[pipeline.StatusSucceeded],
		counts[pipeline.StatusSkipped],
		counts[pipeline.StatusFailed],
		counts[pipeline.StatusSkippedFailure],
	)
}

// configureLogging installs the process-wide slog handler.
func configureLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
