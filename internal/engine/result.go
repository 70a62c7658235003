package engine

import (
	"sort"
	"time"

	"github.com/Acribbs/ONT-VC/internal/pipeline"
)

// TaskOutcome is the terminal state of one task after a run.
type TaskOutcome struct {
	ID       string          `json:"id"`
	Stage    string          `json:"stage"`
	Sample   string          `json:"sample,omitempty"`
	Status   pipeline.Status `json:"status"`
	ExitCode int             `json:"exit_code,omitempty"`
	Duration time.Duration   `json:"duration_ns,omitempty"`

	// DispatchSeq is the logical dispatch order, zero for tasks that
	// were never dispatched. Deterministic for a fixed graph and
	// parallelism limit.
	DispatchSeq int64 `json:"dispatch_seq,omitempty"`

	// Stderr tail of a failed invocation, for diagnostics.
	Stderr string `json:"stderr,omitempty"`
}

// RunResult summarizes one engine run. Every task's terminal status is
// visible here and in the ledger; nothing is silently swallowed.
type RunResult struct {
	RunToken string        `json:"run_token"`
	Outcomes []TaskOutcome `json:"outcomes"` // sorted by task ID
}

// Failed reports whether any task ended failed.
func (r *RunResult) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Status == pipeline.StatusFailed {
			return true
		}
	}
	return false
}

// Outcome returns the outcome for a task ID, or a zero value.
func (r *RunResult) Outcome(id string) (TaskOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return TaskOutcome{}, false
}

// CountByStatus tallies outcomes per terminal status.
func (r *RunResult) CountByStatus() map[pipeline.Status]int {
	counts := make(map[pipeline.Status]int)
	for _, o := range r.Outcomes {
		counts[o.Status]++
	}
	return counts
}

// newRunResult snapshots the graph's task states into a RunResult.
func newRunResult(runToken string, g *pipeline.Graph, outcomes map[string]TaskOutcome) *RunResult {
	result := &RunResult{RunToken: runToken}
	for _, t := range g.Tasks() {
		o, ok := outcomes[t.ID]
		if !ok {
			o = TaskOutcome{ID: t.ID, Stage: t.Stage, Sample: t.Sample}
		}
		o.Status = t.Status
		o.Duration = t.Duration()
		result.Outcomes = append(result.Outcomes, o)
	}
	sort.Slice(result.Outcomes, func(i, j int) bool {
		return result.Outcomes[i].ID < result.Outcomes[j].ID
	})
	return result
}
