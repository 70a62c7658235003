package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Acribbs/ONT-VC/internal/pipeline"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <pipeline.yml>",
		Short: "Show the task graph without executing it",
		Long: `Build the dependency graph for a parameter file and print the tasks in
execution order, with their commands and declared artifacts. Nothing is
executed and the ledger is not touched.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showPlan(opts, args[0], cmd)
		},
	}

	return cmd
}

// planTask is the JSON shape of one planned task.
type planTask struct {
	ID           string   `json:"id"`
	Stage        string   `json:"stage"`
	Sample       string   `json:"sample,omitempty"`
	Command      string   `json:"command"`
	Inputs       []string `json:"inputs"`
	Outputs      []string `json:"outputs"`
	Dependencies []string `json:"dependencies,omitempty"`
}

func showPlan(opts *PlanOptions, configPath string, cmd *cobra.Command) error {
	_, samples, graph, err := loadGraph(configPath)
	if err != nil {
		return err
	}

	order, err := graph.TopoSort()
	if err != nil {
		return WrapExitError(ExitGraphError, "topological sort failed", err)
	}

	if opts.Format == "json" {
		tasks := make([]planTask, 0, len(order))
		for _, id := range order {
			t := graph.Task(id)
			tasks = append(tasks, planTask{
				ID:           t.ID,
				Stage:        t.Stage,
				Sample:       t.Sample,
				Command:      t.Command,
				Inputs:       t.Inputs,
				Outputs:      t.Outputs,
				Dependencies: graph.Dependencies(id),
			})
		}
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return f.Success(map[string]any{
			"samples": len(samples),
			"tasks":   tasks,
		})
	}

	fmt.Fprint(cmd.OutOrStdout(), renderPlan(graph, order, len(samples)))
	return nil
}

// renderPlan produces the deterministic text rendering of the plan.
func renderPlan(graph *pipeline.Graph, order []string, sampleCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "pipeline plan: %d tasks, %d samples\n", len(order), sampleCount)
	for i, id := range order {
		t := graph.Task(id)
		fmt.Fprintf(&b, "%2d. %s\n", i+1, id)
		fmt.Fprintf(&b, "    command: %s\n", t.Command)
		for _, in := range t.Inputs {
			marker := ""
			if graph.External(in) {
				marker = " (external)"
			}
			fmt.Fprintf(&b, "    in:  %s%s\n", in, marker)
		}
		for _, out := range t.Outputs {
			fmt.Fprintf(&b, "    out: %s\n", out)
		}
		if deps := graph.Dependencies(id); len(deps) > 0 {
			fmt.Fprintf(&b, "    after: %s\n", strings.Join(deps, ", "))
		}
	}
	return b.String()
}
