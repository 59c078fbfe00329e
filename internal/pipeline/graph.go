package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrFlagCount reports a flag vector that does not match the graph length.
	ErrFlagCount = errors.New("flag count does not match task graph")
	// ErrNotPrefix reports completed tasks that do not form a prefix of the graph.
	ErrNotPrefix = errors.New("completed tasks are not a prefix of the task graph")
)

// Graph is the ordered task list for one configuration. It is resolved once
// at startup and never changes while items are processed.
type Graph struct {
	tasks []Task
}

// NewGraph builds the task order; derivatives is included only when enabled.
func NewGraph(derivatives bool) Graph {
	tasks := []Task{TaskRename}
	if derivatives {
		tasks = append(tasks, TaskDerivatives)
	}
	tasks = append(tasks, TaskCopy, TaskComplete)
	return Graph{tasks: tasks}
}

// Tasks returns a copy of the ordered task list.
func (g Graph) Tasks() []Task {
	out := make([]Task, len(g.tasks))
	copy(out, g.tasks)
	return out
}

func (g Graph) Len() int { return len(g.tasks) }

// Labels returns the operator labels in graph order.
func (g Graph) Labels() []string {
	labels := make([]string, len(g.tasks))
	for i, task := range g.tasks {
		labels[i] = task.Label()
	}
	return labels
}

// Index returns the position of task in the graph, or -1.
func (g Graph) Index(task Task) int {
	for i, t := range g.tasks {
		if t == task {
			return i
		}
	}
	return -1
}

func (g Graph) Contains(task Task) bool { return g.Index(task) >= 0 }

// First returns the first task of the graph.
func (g Graph) First() Task {
	if len(g.tasks) == 0 {
		return ""
	}
	return g.tasks[0]
}

// NextEligibleTask returns the first task whose flag is false. ok is false
// when every task is complete.
func (g Graph) NextEligibleTask(flags []bool) (Task, bool, error) {
	if len(flags) != len(g.tasks) {
		return "", false, fmt.Errorf("%w: got %d, want %d", ErrFlagCount, len(flags), len(g.tasks))
	}
	for i, done := range flags {
		if !done {
			return g.tasks[i], true, nil
		}
	}
	return "", false, nil
}

// Flags projects stored progress onto the graph order.
func (g Graph) Flags(p Progress) []bool {
	flags := make([]bool, len(g.tasks))
	for i, task := range g.tasks {
		flags[i] = p.Done(task)
	}
	return flags
}

// Next returns the next eligible task for stored progress.
func (g Graph) Next(p Progress) (Task, bool) {
	task, ok, _ := g.NextEligibleTask(g.Flags(p))
	return task, ok
}

// CompletedCount returns how many graph tasks are complete.
func (g Graph) CompletedCount(p Progress) int {
	count := 0
	for _, task := range g.tasks {
		if p.Done(task) {
			count++
		}
	}
	return count
}

// ValidatePrefix checks that completed flags form a prefix of the graph.
func (g Graph) ValidatePrefix(flags []bool) error {
	if len(flags) != len(g.tasks) {
		return fmt.Errorf("%w: got %d, want %d", ErrFlagCount, len(flags), len(g.tasks))
	}
	seenIncomplete := false
	for i, done := range flags {
		if !done {
			seenIncomplete = true
			continue
		}
		if seenIncomplete {
			return fmt.Errorf("%w: %s complete after an incomplete task", ErrNotPrefix, g.tasks[i])
		}
	}
	return nil
}
