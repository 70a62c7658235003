package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Acribbs/ONT-VC/internal/config"
)

// Graph is the directed acyclic dependency graph of tasks. Edges are
// derived from artifact production/consumption: A depends on B iff A
// consumes a path B produces. Invariants, enforced at build time:
// every consumed artifact has exactly one producer or is an external
// input, and the wiring is acyclic.
type Graph struct {
	tasks      map[string]*Task
	producers  map[string]string   // artifact path -> producing task ID
	deps       map[string][]string // task ID -> dependency task IDs (sorted)
	dependents map[string][]string // task ID -> dependent task IDs (sorted)
	externals  map[string]struct{} // artifact paths with no producer, by declaration
}

// Build instantiates the stage templates for the configuration and
// discovered samples and wires the dependency graph.
//
// Fails with a *GraphError when a consumed artifact has no producer and
// is not declared external, when two tasks produce the same artifact,
// or when the wiring contains a cycle.
func Build(cfg *config.Config, samples []config.Sample) (*Graph, error) {
	return buildFromTemplates(Stages(cfg), cfg, samples)
}

// buildFromTemplates is the generic wire-by-artifact-name algorithm;
// it knows nothing about the fixed workflow shape.
func buildFromTemplates(templates []StageTemplate, cfg *config.Config, samples []config.Sample) (*Graph, error) {
	g := &Graph{
		tasks:      make(map[string]*Task),
		producers:  make(map[string]string),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
		externals:  make(map[string]struct{}),
	}

	// Instantiate tasks and register producers.
	for _, tpl := range templates {
		instances := []string{""}
		if tpl.PerSample {
			instances = make([]string, len(samples))
			for i, s := range samples {
				instances[i] = s.Name
			}
		}

		for _, sample := range instances {
			task := &Task{
				ID:                 taskID(tpl.Name, sample),
				Stage:              tpl.Name,
				Sample:             sample,
				Command:            expand(tpl.Command, cfg, sample),
				Status:             StatusPending,
				SkipIfOutputsExist: tpl.SkipIfOutputsExist,
			}
			for _, in := range tpl.Inputs {
				if tpl.MergeSamples && strings.Contains(in, "{sample}") {
					for _, s := range samples {
						task.Inputs = append(task.Inputs, expand(in, cfg, s.Name))
					}
					continue
				}
				task.Inputs = append(task.Inputs, expand(in, cfg, sample))
			}
			for _, out := range tpl.Outputs {
				task.Outputs = append(task.Outputs, expand(out, cfg, sample))
			}
			for _, ext := range tpl.External {
				g.externals[expand(ext, cfg, sample)] = struct{}{}
			}
			if tpl.MergeSamples {
				task.Command = strings.ReplaceAll(task.Command, "{inputs}",
					strings.Join(task.Inputs, " "))
			}

			if _, exists := g.tasks[task.ID]; exists {
				return nil, &GraphError{
					Code:    ErrCodeDuplicateTask,
					Message: "task instantiated twice",
					TaskID:  task.ID,
				}
			}
			g.tasks[task.ID] = task

			for _, out := range task.Outputs {
				if prev, exists := g.producers[out]; exists {
					return nil, &GraphError{
						Code:     ErrCodeDuplicateProducer,
						Message:  fmt.Sprintf("artifact already produced by %s", prev),
						TaskID:   task.ID,
						Artifact: out,
					}
				}
				g.producers[out] = task.ID
			}
		}
	}

	// Wire edges by artifact path equality.
	for _, task := range g.tasks {
		seen := make(map[string]struct{})
		for _, in := range task.Inputs {
			producer, ok := g.producers[in]
			if !ok {
				if _, external := g.externals[in]; external {
					continue
				}
				return nil, &GraphError{
					Code:     ErrCodeNoProducer,
					Message:  "consumed artifact has no producer and is not an external input",
					TaskID:   task.ID,
					Artifact: in,
				}
			}
			if producer == task.ID {
				return nil, &GraphError{
					Code:     ErrCodeCycle,
					Message:  "task consumes its own output",
					TaskID:   task.ID,
					Artifact: in,
				}
			}
			if _, dup := seen[producer]; dup {
				continue
			}
			seen[producer] = struct{}{}
			g.deps[task.ID] = append(g.deps[task.ID], producer)
			g.dependents[producer] = append(g.dependents[producer], task.ID)
		}
	}
	for id := range g.deps {
		sort.Strings(g.deps[id])
	}
	for id := range g.dependents {
		sort.Strings(g.dependents[id])
	}

	// Reject cycles up front: execution assumes a DAG.
	if _, err := g.TopoSort(); err != nil {
		return nil, err
	}

	return g, nil
}

// Task returns the task with the given ID, or nil.
func (g *Graph) Task(id string) *Task {
	return g.tasks[id]
}

// Tasks returns all tasks sorted by ID.
func (g *Graph) Tasks() []*Task {
	ids := g.TaskIDs()
	tasks := make([]*Task, len(ids))
	for i, id := range ids {
		tasks[i] = g.tasks[id]
	}
	return tasks
}

// TaskIDs returns all task IDs in sorted order.
func (g *Graph) TaskIDs() []string {
	ids := make([]string, 0, len(g.tasks))
	for id := range g.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dependencies returns the IDs of the tasks id depends on, sorted.
func (g *Graph) Dependencies(id string) []string {
	return g.deps[id]
}

// Dependents returns the IDs of the tasks depending on id, sorted.
func (g *Graph) Dependents(id string) []string {
	return g.dependents[id]
}

// TransitiveDependents returns every task downstream of id, sorted.
func (g *Graph) TransitiveDependents(id string) []string {
	seen := make(map[string]struct{})
	var walk func(string)
	walk = func(cur string) {
		for _, dep := range g.dependents[cur] {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			walk(dep)
		}
	}
	walk(id)

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// External reports whether path is a declared external input.
func (g *Graph) External(path string) bool {
	_, ok := g.externals[path]
	return ok
}

// TopoSort returns task IDs in a deterministic topological order:
// Kahn's algorithm with ties broken by task ID. Fails with a
// *GraphError if the graph contains a cycle.
func (g *Graph) TopoSort() ([]string, error) {
	indegree := make(map[string]int, len(g.tasks))
	for id := range g.tasks {
		indegree[id] = len(g.deps[id])
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.tasks))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		released := false
		for _, dep := range g.dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
				released = true
			}
		}
		if released {
			sort.Strings(ready)
		}
	}

	if len(order) != len(g.tasks) {
		var stuck []string
		for id, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, &GraphError{
			Code:    ErrCodeCycle,
			Message: fmt.Sprintf("cycle involving tasks %v", stuck),
		}
	}
	return order, nil
}
