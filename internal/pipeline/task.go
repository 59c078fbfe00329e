package pipeline

import (
	"fmt"
	"strings"
)

// Task identifies one processing step an item moves through.
type Task string

const (
	TaskRename      Task = "rename"
	TaskDerivatives Task = "derivatives"
	TaskCopy        Task = "copy"
	TaskComplete    Task = "complete"
)

var allTasks = []Task{TaskRename, TaskDerivatives, TaskCopy, TaskComplete}

// AllTasks returns every task kind in pipeline order, regardless of
// configuration.
func AllTasks() []Task {
	out := make([]Task, len(allTasks))
	copy(out, allTasks)
	return out
}

// ParseTask converts a string into a Task value.
func ParseTask(value string) (Task, error) {
	normalized := Task(strings.ToLower(strings.TrimSpace(value)))
	for _, task := range allTasks {
		if task == normalized {
			return task, nil
		}
	}
	return "", fmt.Errorf("unknown task %q", value)
}

// Label returns the operator-facing button label.
func (t Task) Label() string {
	switch t {
	case TaskRename:
		return "Rename Files"
	case TaskDerivatives:
		return "Generate Derivatives"
	case TaskCopy:
		return "Copy to HOLD"
	case TaskComplete:
		return "Complete"
	default:
		return string(t)
	}
}

// Message returns the progress phrase used in lifecycle events.
func (t Task) Message() string {
	switch t {
	case TaskRename:
		return "renaming files"
	case TaskDerivatives:
		return "generating derivatives"
	case TaskCopy:
		return "copying files"
	case TaskComplete:
		return "checking completeness"
	default:
		return string(t)
	}
}

func (t Task) String() string { return string(t) }

// Progress holds the persisted completion flags for one item.
type Progress struct {
	Rename      bool
	Derivatives bool
	Copy        bool
	Complete    bool
	PageCount   int
}

// Done reports whether task is marked complete.
func (p Progress) Done(task Task) bool {
	switch task {
	case TaskRename:
		return p.Rename
	case TaskDerivatives:
		return p.Derivatives
	case TaskCopy:
		return p.Copy
	case TaskComplete:
		return p.Complete
	default:
		return false
	}
}
