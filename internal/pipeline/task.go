package pipeline

import "time"

// Status is the lifecycle state of a task.
type Status string

const (
	// StatusPending means the task has unmet dependencies.
	StatusPending Status = "pending"

	// StatusReady means all dependencies are satisfied and the task is
	// eligible for dispatch.
	StatusReady Status = "ready"

	// StatusRunning means the task's external invocation is in flight.
	StatusRunning Status = "running"

	// StatusSucceeded means the external invocation exited zero and the
	// declared outputs were fingerprinted.
	StatusSucceeded Status = "succeeded"

	// StatusFailed means the external invocation exited non-zero or
	// could not be started.
	StatusFailed Status = "failed"

	// StatusSkipped means the task was satisfied from the checkpoint
	// ledger (or pre-existing outputs) and was not re-run.
	StatusSkipped Status = "skipped"

	// StatusSkippedFailure means an upstream dependency failed, so the
	// task was never dispatched.
	StatusSkippedFailure Status = "skipped_failure"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped, StatusSkippedFailure:
		return true
	}
	return false
}

// Failing reports whether the status blocks downstream tasks.
func (s Status) Failing() bool {
	return s == StatusFailed || s == StatusSkippedFailure
}

// Task is one unit of work: an external command with declared input and
// output artifacts. Identity is the ID, which is stable for a given
// configuration (stage name, plus sample name for per-sample stages).
type Task struct {
	ID     string
	Stage  string
	Sample string // empty for whole-pipeline stages

	// Command is the fully resolved shell command handed to the tool
	// runner. Opaque to the engine.
	Command string

	// Inputs and Outputs are declared artifact paths, in template order.
	Inputs  []string
	Outputs []string

	// SkipIfOutputsExist marks tasks (reference indexing) whose outputs
	// may pre-date the ledger: if every declared output already exists
	// on disk the task is skipped without a ledger record.
	SkipIfOutputsExist bool

	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall time between start and finish, or zero if
// the task never ran.
func (t *Task) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}
