package engine

import (
	"github.com/Acribbs/ONT-VC/internal/ledger"
	"github.com/Acribbs/ONT-VC/internal/pipeline"
)

// seedStatuses marks up-to-date tasks skipped before dispatch begins.
//
// A task is skipped iff:
//   - the ledger records it succeeded AND every declared output still
//     matches its recorded fingerprint, or the task is marked
//     skip-if-outputs-exist and every output is present (pre-existing
//     reference indexes built outside any ledger), and
//   - every dependency was itself skipped.
//
// The dependency condition propagates staleness downstream: when an
// upstream task must re-run, everything below it re-runs too, while
// untouched upstream work stays skipped. Walks in topological order so
// dependency statuses are decided before their dependents.
func (e *Engine) seedStatuses(records map[string]ledger.Record) {
	order, err := e.graph.TopoSort()
	if err != nil {
		// Build already rejected cyclic graphs.
		return
	}

	for _, id := range order {
		t := e.graph.Task(id)

		depsSkipped := true
		for _, dep := range e.graph.Dependencies(id) {
			if e.graph.Task(dep).Status != pipeline.StatusSkipped {
				depsSkipped = false
				break
			}
		}
		if !depsSkipped {
			continue
		}

		if t.SkipIfOutputsExist {
			if _, ok := pipeline.FingerprintAll(t.Outputs); ok {
				t.Status = pipeline.StatusSkipped
				e.logger.Debug("task skipped: outputs already exist", "task", id)
				continue
			}
		}

		rec, ok := records[id]
		if !ok || rec.Status != pipeline.StatusSucceeded {
			continue
		}
		if outputsMatch(t, rec) {
			t.Status = pipeline.StatusSkipped
			e.logger.Debug("task skipped: ledger record up to date", "task", id)
		}
	}
}

// outputsMatch reports whether every declared output exists on disk
// with exactly the fingerprint the ledger recorded.
func outputsMatch(t *pipeline.Task, rec ledger.Record) bool {
	for _, out := range t.Outputs {
		recorded, ok := rec.Fingerprints[out]
		if !ok {
			return false
		}
		current, ok := pipeline.FingerprintFile(out)
		if !ok || current != recorded {
			return false
		}
	}
	return true
}
