package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Acribbs/ONT-VC/internal/ledger"
	"github.com/Acribbs/ONT-VC/internal/pipeline"
	"github.com/Acribbs/ONT-VC/internal/toolrun"
)

// Engine executes a dependency graph against the checkpoint ledger.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine, at most once
//   - All task mutations and ledger writes happen in the Run goroutine
//   - Workers only invoke the tool runner and report completions
type Engine struct {
	graph  *pipeline.Graph
	ledger *ledger.Ledger
	runner toolrun.Runner
	logger *slog.Logger
	clock  Clock

	maxParallelism int
	taskTimeout    time.Duration
	runToken       string

	outcomes map[string]TaskOutcome
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxParallelism bounds the number of concurrently running
// external invocations. Values below 1 are treated as 1.
func WithMaxParallelism(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.maxParallelism = n
	}
}

// WithTaskTimeout bounds each external invocation. Zero (the default)
// means no timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.taskTimeout = d
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine for one run over graph.
func New(g *pipeline.Graph, led *ledger.Ledger, runner toolrun.Runner, opts ...Option) *Engine {
	e := &Engine{
		graph:          g,
		ledger:         led,
		runner:         runner,
		logger:         slog.Default(),
		maxParallelism: 1,
		runToken:       uuid.Must(uuid.NewV7()).String(),
		outcomes:       make(map[string]TaskOutcome),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunToken returns the UUIDv7 correlating this run's ledger records.
func (e *Engine) RunToken() string {
	return e.runToken
}

// completion is a worker's report back to the coordinator.
type completion struct {
	id     string
	result toolrun.Result
	err    error
}

// Run executes the graph to completion and returns the per-task
// summary. Fatal errors (ledger failures, cancellation) return a
// non-nil error; individual task failures are contained to their
// dependency subtree and reported through the RunResult.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	records, err := e.ledger.LoadRecords(ctx)
	if err != nil {
		return nil, err
	}
	e.seedStatuses(records)

	e.logger.Info("run starting",
		"run_token", e.runToken,
		"tasks", len(e.graph.TaskIDs()),
		"max_parallelism", e.maxParallelism,
	)

	// Buffered so a worker can always report, even when the
	// coordinator is winding down after cancellation.
	results := make(chan completion, len(e.graph.TaskIDs()))
	var workers errgroup.Group
	workers.SetLimit(e.maxParallelism)

	inFlight := 0
	for {
		// Dispatch while slots are free. Cancellation stops new
		// dispatch immediately; in-flight tasks are killed through ctx.
		if ctx.Err() == nil {
			for _, id := range e.readyTasks() {
				if inFlight >= e.maxParallelism {
					break
				}
				e.dispatch(ctx, id, results, &workers)
				inFlight++
			}
		}

		if inFlight == 0 {
			break
		}

		c := <-results
		inFlight--
		e.finish(ctx, c)
	}

	// Workers have all reported; Wait only tidies the group.
	_ = workers.Wait()

	if ctx.Err() != nil {
		e.unwindCancelled()
		e.logger.Info("run cancelled", "run_token", e.runToken)
		return newRunResult(e.runToken, e.graph, e.outcomes), ctx.Err()
	}

	result := newRunResult(e.runToken, e.graph, e.outcomes)
	e.logger.Info("run finished",
		"run_token", e.runToken,
		"failed", result.Failed(),
	)
	return result, nil
}

// readyTasks returns pending tasks whose dependencies all reached a
// terminal non-failing state, sorted by ID for deterministic dispatch.
func (e *Engine) readyTasks() []string {
	var ready []string
	for _, id := range e.graph.TaskIDs() {
		t := e.graph.Task(id)
		// Ready tasks that missed a worker slot on the previous pass
		// stay eligible.
		if t.Status != pipeline.StatusPending && t.Status != pipeline.StatusReady {
			continue
		}
		ok := true
		for _, dep := range e.graph.Dependencies(id) {
			st := e.graph.Task(dep).Status
			if !st.Terminal() || st.Failing() {
				ok = false
				break
			}
		}
		if ok {
			t.Status = pipeline.StatusReady
			ready = append(ready, id)
		}
	}
	return ready
}

// dispatch hands one ready task to a worker slot.
func (e *Engine) dispatch(ctx context.Context, id string, results chan<- completion, workers *errgroup.Group) {
	t := e.graph.Task(id)
	t.Status = pipeline.StatusRunning
	t.StartedAt = time.Now()

	seq := e.clock.Next()
	e.outcomes[id] = TaskOutcome{
		ID:          id,
		Stage:       t.Stage,
		Sample:      t.Sample,
		DispatchSeq: seq,
	}

	e.logger.Info("task dispatched",
		"task", id,
		"seq", seq,
		"command", t.Command,
	)

	inv := toolrun.Invocation{
		Command: t.Command,
		Timeout: e.taskTimeout,
	}
	workers.Go(func() error {
		res, err := e.runner.Invoke(ctx, inv)
		results <- completion{id: id, result: res, err: err}
		return nil
	})
}

// finish processes one completion in the coordinator goroutine:
// fingerprinting, ledger write, failure cascade.
func (e *Engine) finish(ctx context.Context, c completion) {
	t := e.graph.Task(c.id)
	t.FinishedAt = time.Now()

	o := e.outcomes[c.id]
	o.ExitCode = c.result.ExitCode
	o.Stderr = tail(c.result.Stderr)
	e.outcomes[c.id] = o

	if ctx.Err() != nil {
		// Cancelled mid-flight: partially produced outputs must never
		// be fingerprinted as succeeded. unwindCancelled handles the
		// status; nothing is recorded.
		return
	}

	if c.err != nil || c.result.ExitCode != 0 {
		e.fail(ctx, t, c)
		return
	}

	fps, ok := pipeline.FingerprintAll(t.Outputs)
	if !ok {
		c.err = fmt.Errorf("declared outputs missing after successful exit")
		e.fail(ctx, t, c)
		return
	}

	t.Status = pipeline.StatusSucceeded
	e.record(ctx, t, fps)
	e.logger.Info("task succeeded",
		"task", t.ID,
		"duration", t.Duration(),
	)
}

// fail marks a task failed and its transitive dependents skipped.
// Independent branches of the graph keep running.
func (e *Engine) fail(ctx context.Context, t *pipeline.Task, c completion) {
	t.Status = pipeline.StatusFailed
	e.record(ctx, t, nil)

	e.logger.Error("task failed",
		"task", t.ID,
		"exit_code", c.result.ExitCode,
		"error", c.err,
		"stderr", tail(c.result.Stderr),
	)

	for _, depID := range e.graph.TransitiveDependents(t.ID) {
		dep := e.graph.Task(depID)
		if dep.Status.Terminal() || dep.Status == pipeline.StatusRunning {
			continue
		}
		dep.Status = pipeline.StatusSkippedFailure
		e.record(ctx, dep, nil)
		e.logger.Warn("task skipped: upstream failure",
			"task", depID,
			"failed_upstream", t.ID,
		)
	}
}

// record writes one ledger record. A ledger write failure after the
// task already ran is logged, not fatal: the work is done and the next
// run will redo only the unrecorded task.
func (e *Engine) record(ctx context.Context, t *pipeline.Task, fps map[string]pipeline.Fingerprint) {
	rec := ledger.Record{
		TaskID:       t.ID,
		Status:       t.Status,
		Fingerprints: fps,
		RunToken:     e.runToken,
		CompletedAt:  time.Now(),
	}
	if err := e.ledger.RecordCompletion(ctx, rec); err != nil {
		e.logger.Error("ledger write failed",
			"task", t.ID,
			"error", err,
		)
	}
}

// unwindCancelled returns tasks interrupted by cancellation to pending
// so the result distinguishes "never finished" from genuine failure.
func (e *Engine) unwindCancelled() {
	for _, id := range e.graph.TaskIDs() {
		t := e.graph.Task(id)
		if t.Status == pipeline.StatusRunning || t.Status == pipeline.StatusReady {
			t.Status = pipeline.StatusPending
		}
	}
}

// tail truncates stderr for diagnostics.
func tail(s string) string {
	const max = 2048
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
