// Package tasks provides the capabilities the pipeline invokes: a registry
// resolving task names, and adapters for HTTP endpoints, the Anthropic
// Messages API and plain functions.
package tasks

import (
	"fmt"
	"sort"

	"github.com/ravi-parthasarathy/caseflow/pkg/pipeline"
)

// Registry maps task names to Task implementations.
// It implements the pipeline.TaskRegistry interface.
type Registry struct {
	tasks map[pipeline.TaskName]pipeline.Task
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[pipeline.TaskName]pipeline.Task)}
}

// Register associates a task with a name, replacing any previous one.
func (r *Registry) Register(name pipeline.TaskName, t pipeline.Task) {
	r.tasks[name] = t
}

// Lookup returns the task registered under name, or an error if none is.
func (r *Registry) Lookup(name pipeline.TaskName) (pipeline.Task, error) {
	t, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("no task registered for %q", name)
	}
	return t, nil
}

// Names returns the registered task names, sorted.
func (r *Registry) Names() []pipeline.TaskName {
	names := make([]pipeline.TaskName, 0, len(r.tasks))
	for n := range r.tasks {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Missing returns which of the pipeline's tasks have no registration.
func (r *Registry) Missing() []pipeline.TaskName {
	var out []pipeline.TaskName
	for _, n := range pipeline.Tasks {
		if _, ok := r.tasks[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}
