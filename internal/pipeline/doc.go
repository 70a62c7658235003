// Package pipeline defines the task model and dependency graph for the
// ONT-VC variant-calling workflow.
//
// The workflow shape is declarative data: stage templates declare a
// command template plus input and output artifact path patterns. The
// builder instantiates templates per sample and wires edges purely by
// artifact path equality - task A depends on task B iff A consumes a
// path that B produces. Stage order is never hard-coded; adding a stage
// means adding a template.
//
// The graph owns its tasks. The execution engine mutates only task
// status and timing metadata.
package pipeline
