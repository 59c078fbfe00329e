package tasks

import (
	"context"
	"fmt"
	"sort"

	"scanpipe/internal/pipeline"
)

// WorkItem is the input an Operation needs to process one item.
type WorkItem struct {
	ItemID       int64
	CollectionID string
	Identifier   string
	Title        string
	// ProjectDir is the absolute project directory; the item's files live in
	// ProjectDir/Identifier.
	ProjectDir string
	// RemoteDir is the project's directory under the scan storage location.
	RemoteDir string
}

// Outcome describes a successful Operation.
type Outcome struct {
	Message string
	// PageCount is reported by rename: the number of scans produced.
	PageCount int
}

// Operation performs one task kind.
type Operation interface {
	Execute(ctx context.Context, item WorkItem) (Outcome, error)
}

// OperationFunc adapts a function to Operation.
type OperationFunc func(ctx context.Context, item WorkItem) (Outcome, error)

func (f OperationFunc) Execute(ctx context.Context, item WorkItem) (Outcome, error) {
	return f(ctx, item)
}

// HealthChecker is implemented by operations that depend on external tools or
// mounts and can report readiness ahead of a run.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}

// Health summarizes the readiness of one task's operation.
type Health struct {
	Task   pipeline.Task
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(task pipeline.Task) Health {
	return Health{Task: task, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(task pipeline.Task, detail string) Health {
	return Health{Task: task, Ready: false, Detail: detail}
}

// Registry maps each task kind to its Operation.
type Registry struct {
	ops map[pipeline.Task]Operation
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[pipeline.Task]Operation)}
}

// Register binds op to task, replacing any earlier binding.
func (r *Registry) Register(task pipeline.Task, op Operation) {
	r.ops[task] = op
}

// Lookup returns the Operation for task.
func (r *Registry) Lookup(task pipeline.Task) (Operation, error) {
	if r == nil {
		return nil, fmt.Errorf("no operation registered for %s", task)
	}
	op, ok := r.ops[task]
	if !ok || op == nil {
		return nil, fmt.Errorf("no operation registered for %s", task)
	}
	return op, nil
}

// Covers reports an error naming the first graph task without an operation.
func (r *Registry) Covers(graph pipeline.Graph) error {
	for _, task := range graph.Tasks() {
		if _, err := r.Lookup(task); err != nil {
			return err
		}
	}
	return nil
}

// Health collects readiness for every registered operation in task order.
// Operations without a health check are reported ready.
func (r *Registry) Health(ctx context.Context) []Health {
	tasks := make([]pipeline.Task, 0, len(r.ops))
	for task := range r.ops {
		tasks = append(tasks, task)
	}
	order := func(t pipeline.Task) int {
		for i, candidate := range pipeline.AllTasks() {
			if candidate == t {
				return i
			}
		}
		return len(pipeline.AllTasks())
	}
	sort.Slice(tasks, func(i, j int) bool { return order(tasks[i]) < order(tasks[j]) })

	results := make([]Health, 0, len(tasks))
	for _, task := range tasks {
		if checker, ok := r.ops[task].(HealthChecker); ok {
			h := checker.HealthCheck(ctx)
			h.Task = task
			results = append(results, h)
			continue
		}
		results = append(results, Healthy(task))
	}
	return results
}
