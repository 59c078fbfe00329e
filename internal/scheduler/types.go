package scheduler

import (
	"context"
	"errors"
	"fmt"

	"scanpipe/internal/pipeline"
	"scanpipe/internal/services"
	"scanpipe/internal/tasks"
)

var (
	// ErrItemBusy rejects a request for an item that already has a run in flight.
	ErrItemBusy = fmt.Errorf("%w: item has a task running", services.ErrValidation)
	// ErrNotEligible rejects a task that is not the item's next eligible task.
	ErrNotEligible = fmt.Errorf("%w: task is not eligible", services.ErrValidation)
	// ErrStopped is returned once the owner loop has exited.
	ErrStopped = errors.New("scheduler stopped")
)

// State is the coarse lifecycle of one item row.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// RowState is a snapshot of one item as the scheduler sees it.
type RowState struct {
	ItemID int64
	State  State

	// Next is the next eligible task while idle; empty once every task is done.
	Next pipeline.Task
	// Running is the task in flight while State is StateRunning.
	Running pipeline.Task

	RunID     string
	Errored   bool
	LastError string
	Progress  pipeline.Progress
}

// Complete reports whether the item has finished every task.
func (r RowState) Complete() bool {
	return r.State == StateIdle && r.Next == ""
}

// RunResult reports the end of an accepted run after its outcome has been
// persisted.
type RunResult struct {
	RunID    string
	ItemID   int64
	Task     pipeline.Task
	Outcome  tasks.Outcome
	Err      error
	Progress pipeline.Progress
}

// ProgressStore is the persistence the scheduler needs.
type ProgressStore interface {
	GetProgress(ctx context.Context, itemID int64) (pipeline.Progress, error)
	RecordSuccess(ctx context.Context, itemID int64, task pipeline.Task, pageCount int) error
	ResetProgress(ctx context.Context, itemID int64) error
}

// Runner executes one run and reports its lifecycle to sink.
type Runner interface {
	Execute(ctx context.Context, run tasks.Run, sink tasks.Sink) (tasks.Outcome, error)
}

// Resolver loads the file-system context an operation needs for an item.
type Resolver func(ctx context.Context, itemID int64) (tasks.WorkItem, error)

type dispatchRequest struct {
	itemID int64
	task   pipeline.Task
	reply  chan dispatchReply
}

type dispatchReply struct {
	result <-chan RunResult
	err    error
}

type resetRequest struct {
	itemID int64
	reply  chan error
}

type snapshotRequest struct {
	itemIDs []int64
	reply   chan snapshotReply
}

type snapshotReply struct {
	rows []RowState
	err  error
}

type completion struct {
	run     tasks.Run
	outcome tasks.Outcome
	err     error
	result  chan RunResult
}
