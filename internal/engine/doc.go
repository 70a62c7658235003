// Package engine walks the task dependency graph and executes it.
//
// ARCHITECTURE:
//
// Single-Coordinator Dispatch Loop:
// All task state transitions and ledger writes happen in the one
// goroutine running Run(). Workers only execute external invocations
// and report back over a channel. This ensures:
//   - Deterministic dispatch order (ready tasks sorted by ID)
//   - No interleaved ledger writes
//   - Simple reasoning about failure cascades
//
// Dispatch flow:
//  1. Seed statuses from the checkpoint ledger (skip up-to-date work)
//  2. Compute the ready set: pending tasks whose dependencies all
//     reached a terminal non-failing state
//  3. Dispatch ready tasks, ID order, up to the parallelism limit
//  4. On completion: fingerprint outputs, write the ledger record,
//     re-evaluate readiness; on failure, mark the transitive dependent
//     subtree skipped and keep independent branches running
//
// The coordinator blocks only while waiting for a worker slot or an
// in-flight completion. Cancellation stops new dispatch immediately and
// kills in-flight invocations through their context; cancelled tasks
// are never fingerprinted or recorded as succeeded.
//
// The engine performs no automatic retries: a re-run after a fixed
// failure is the resume path, and the ledger guarantees only the failed
// subtree executes again.
package engine
