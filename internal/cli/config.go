package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Acribbs/ONT-VC/internal/config"
)

// NewConfigCommand creates the config command, which scaffolds a
// default parameter file for the user to edit.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [path]",
		Short: "Write a default pipeline.yml parameter file",
		Long: `Write a commented default parameter file. Edit the generated file, then
start the pipeline with:

  ontvc run pipeline.yml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "pipeline.yml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return WrapExitError(ExitConfigError, "scaffold parameter file", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	return cmd
}
