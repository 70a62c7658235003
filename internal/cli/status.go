package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Acribbs/ONT-VC/internal/ledger"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database string
}

// NewStatusCommand creates the status command, which renders the
// checkpoint ledger for inspection.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show checkpoint ledger records",
		Long: `List the per-task records in the checkpoint ledger: terminal status,
completion time and the run that wrote each record.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", DefaultLedgerPath, "path to the checkpoint ledger database")

	return cmd
}

// statusRecord is the JSON shape of one ledger record.
type statusRecord struct {
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
	RunToken    string `json:"run_token"`
	CompletedAt string `json:"completed_at"`
	Outputs     int    `json:"outputs"`
}

func showStatus(opts *StatusOptions, cmd *cobra.Command) error {
	led, err := ledger.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitLedgerError, "failed to open checkpoint ledger", err)
	}
	defer led.Close()

	records, err := led.LoadRecords(cmd.Context())
	if err != nil {
		return WrapExitError(ExitLedgerError, "failed to read checkpoint ledger", err)
	}

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if opts.Format == "json" {
		out := make([]statusRecord, 0, len(ids))
		for _, id := range ids {
			rec := records[id]
			out = append(out, statusRecord{
				TaskID:      rec.TaskID,
				Status:      string(rec.Status),
				RunToken:    rec.RunToken,
				CompletedAt: rec.CompletedAt.UTC().Format(time.RFC3339),
				Outputs:     len(rec.Fingerprints),
			})
		}
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return f.Success(out)
	}

	w := cmd.OutOrStdout()
	if len(ids) == 0 {
		fmt.Fprintln(w, "ledger is empty")
		return nil
	}
	for _, id := range ids {
		rec := records[id]
		fmt.Fprintf(w, "%-40s %-16s %s  run=%s\n",
			rec.TaskID,
			rec.Status,
			rec.CompletedAt.UTC().Format(time.RFC3339),
			rec.RunToken,
		)
	}
	return nil
}
