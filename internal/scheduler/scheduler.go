package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"scanpipe/internal/logging"
	"scanpipe/internal/pipeline"
	"scanpipe/internal/tasks"
)

// Options wires a Scheduler.
type Options struct {
	Graph   pipeline.Graph
	Store   ProgressStore
	Runner  Runner
	Resolve Resolver
	Sink    tasks.Sink
	Workers int
	Logger  *slog.Logger

	// OnUpdate observes every row change. It runs on the owner goroutine and
	// must not call back into the Scheduler.
	OnUpdate func(RowState)
}

// Scheduler serializes per-item state changes on a single owner goroutine.
type Scheduler struct {
	graph    pipeline.Graph
	store    ProgressStore
	runner   Runner
	resolve  Resolver
	sink     tasks.Sink
	logger   *slog.Logger
	onUpdate func(RowState)

	pool     *semaphore.Weighted
	inFlight atomic.Int64

	// gapWarned is owned by the Run goroutine.
	gapWarned map[int64]bool
	started  atomic.Bool

	dispatchCh chan dispatchRequest
	resetCh    chan resetRequest
	snapshotCh chan snapshotRequest
	doneCh     chan completion
	stopped    chan struct{}
}

// New constructs a Scheduler. Call Run to start the owner loop.
func New(opts Options) (*Scheduler, error) {
	if opts.Store == nil {
		return nil, errors.New("scheduler: store is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("scheduler: runner is required")
	}
	if opts.Resolve == nil {
		return nil, errors.New("scheduler: resolver is required")
	}
	if opts.Graph.Len() == 0 {
		return nil, errors.New("scheduler: task graph is empty")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		graph:      opts.Graph,
		store:      opts.Store,
		runner:     opts.Runner,
		resolve:    opts.Resolve,
		sink:       opts.Sink,
		logger:     logging.NewComponentLogger(opts.Logger, "scheduler"),
		onUpdate:   opts.OnUpdate,
		pool:       semaphore.NewWeighted(int64(workers)),
		gapWarned:  make(map[int64]bool),
		dispatchCh: make(chan dispatchRequest),
		resetCh:    make(chan resetRequest),
		snapshotCh: make(chan snapshotRequest),
		doneCh:     make(chan completion),
		stopped:    make(chan struct{}),
	}, nil
}

// InFlight returns the number of accepted runs whose completion has not yet
// been persisted.
func (s *Scheduler) InFlight() int64 {
	return s.inFlight.Load()
}

// NavigationAllowed reports whether no run is in flight.
func (s *Scheduler) NavigationAllowed() bool {
	return s.InFlight() == 0
}

// Done is closed after Run has returned.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

// Run owns the row table until ctx is cancelled. On shutdown it cancels
// outstanding runs, waits for each to report, and persists the ones that had
// already succeeded.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("scheduler already running")
	}
	defer close(s.stopped)

	rows := make(map[int64]*RowState)
	running := 0
	for {
		select {
		case <-ctx.Done():
			s.drain(ctx, rows, running)
			return nil
		case req := <-s.dispatchCh:
			result, err := s.handleDispatch(ctx, rows, req)
			if err == nil {
				running++
			}
			req.reply <- dispatchReply{result: result, err: err}
		case req := <-s.resetCh:
			req.reply <- s.handleReset(ctx, rows, req.itemID)
		case req := <-s.snapshotCh:
			snapshot, err := s.handleSnapshot(ctx, rows, req.itemIDs)
			req.reply <- snapshotReply{rows: snapshot, err: err}
		case done := <-s.doneCh:
			s.handleCompletion(ctx, rows, done)
			running--
		}
	}
}

func (s *Scheduler) drain(ctx context.Context, rows map[int64]*RowState, running int) {
	if running > 0 {
		s.logger.Info("waiting for running tasks to stop", logging.Int("running", running))
	}
	for ; running > 0; running-- {
		s.handleCompletion(ctx, rows, <-s.doneCh)
	}
}

// Dispatch asks to run task for itemID. The returned channel receives exactly
// one RunResult once the run's outcome has been persisted.
func (s *Scheduler) Dispatch(ctx context.Context, itemID int64, task pipeline.Task) (<-chan RunResult, error) {
	req := dispatchRequest{itemID: itemID, task: task, reply: make(chan dispatchReply, 1)}
	select {
	case s.dispatchCh <- req:
	case <-s.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	reply := <-req.reply
	return reply.result, reply.err
}

// Reset clears an idle item's progress back to the first task.
func (s *Scheduler) Reset(ctx context.Context, itemID int64) error {
	req := resetRequest{itemID: itemID, reply: make(chan error, 1)}
	select {
	case s.resetCh <- req:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.reply
}

// Snapshot returns the current rows for itemIDs. Idle rows are refreshed from
// the store.
func (s *Scheduler) Snapshot(ctx context.Context, itemIDs ...int64) ([]RowState, error) {
	req := snapshotRequest{itemIDs: itemIDs, reply: make(chan snapshotReply, 1)}
	select {
	case s.snapshotCh <- req:
	case <-s.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	reply := <-req.reply
	return reply.rows, reply.err
}

func (s *Scheduler) handleDispatch(ctx context.Context, rows map[int64]*RowState, req dispatchRequest) (<-chan RunResult, error) {
	row := s.row(rows, req.itemID)
	if row.State == StateRunning {
		s.logger.Info("dispatch rejected",
			logging.Int64(logging.FieldItemID, req.itemID),
			logging.String(logging.FieldTask, string(req.task)),
			logging.String("reason", "busy"),
			logging.String("running", string(row.Running)),
		)
		return nil, fmt.Errorf("%w: %s in progress", ErrItemBusy, row.Running)
	}

	progress, err := s.store.GetProgress(ctx, req.itemID)
	if err != nil {
		return nil, err
	}
	s.refresh(row, progress)
	if row.Next == "" {
		return nil, fmt.Errorf("%w: item %d has completed every task", ErrNotEligible, req.itemID)
	}
	if row.Next != req.task {
		s.logger.Info("dispatch rejected",
			logging.Int64(logging.FieldItemID, req.itemID),
			logging.String(logging.FieldTask, string(req.task)),
			logging.String("reason", "not eligible"),
			logging.String("next", string(row.Next)),
		)
		return nil, fmt.Errorf("%w: next task for item %d is %s, not %s", ErrNotEligible, req.itemID, row.Next, req.task)
	}

	work, err := s.resolve(ctx, req.itemID)
	if err != nil {
		return nil, err
	}

	run := tasks.Run{ID: uuid.NewString(), Task: req.task, Item: work}
	row.State = StateRunning
	row.Running = req.task
	row.RunID = run.ID
	row.Errored = false
	row.LastError = ""
	s.inFlight.Add(1)
	s.notify(row)

	result := make(chan RunResult, 1)
	go s.work(ctx, run, result)

	s.logger.Debug("task dispatched",
		logging.Int64(logging.FieldItemID, req.itemID),
		logging.String(logging.FieldTask, string(req.task)),
		logging.String(logging.FieldCorrelationID, run.ID),
		logging.Int64("in_flight", s.inFlight.Load()),
	)
	return result, nil
}

// work waits for a pool slot and executes run. A run cancelled while queued
// still goes through the executor so its lifecycle events are reported.
func (s *Scheduler) work(ctx context.Context, run tasks.Run, result chan RunResult) {
	acquired := s.pool.Acquire(ctx, 1) == nil
	outcome, err := s.runner.Execute(ctx, run, s.sink)
	if acquired {
		s.pool.Release(1)
	}
	s.doneCh <- completion{run: run, outcome: outcome, err: err, result: result}
}

// handleCompletion persists a finished run. Store writes ignore cancellation
// of ctx: a run that succeeded before shutdown reached the owner loop is still
// recorded.
func (s *Scheduler) handleCompletion(ctx context.Context, rows map[int64]*RowState, done completion) {
	ctx = context.WithoutCancel(ctx)
	itemID := done.run.Item.ItemID
	row := s.row(rows, itemID)
	res := RunResult{
		RunID:   done.run.ID,
		ItemID:  itemID,
		Task:    done.run.Task,
		Outcome: done.outcome,
		Err:     done.err,
	}

	if done.err == nil {
		if err := s.store.RecordSuccess(ctx, itemID, done.run.Task, done.outcome.PageCount); err != nil {
			res.Err = fmt.Errorf("record %s success: %w", done.run.Task, err)
			logging.ErrorWithContext(s.logger, "failed to persist task success", "progress_write_failed",
				logging.Int64(logging.FieldItemID, itemID),
				logging.String(logging.FieldTask, string(done.run.Task)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check database access; the task can be run again"),
			)
		}
	}

	row.State = StateIdle
	row.Running = ""
	row.RunID = ""
	if progress, err := s.store.GetProgress(ctx, itemID); err == nil {
		s.refresh(row, progress)
	} else {
		s.logger.Warn("failed to reload progress", logging.Int64(logging.FieldItemID, itemID), logging.Error(err))
	}
	if res.Err != nil {
		row.Errored = true
		row.LastError = res.Err.Error()
	}
	res.Progress = row.Progress

	s.inFlight.Add(-1)
	s.notify(row)
	done.result <- res
}

func (s *Scheduler) handleReset(ctx context.Context, rows map[int64]*RowState, itemID int64) error {
	row := s.row(rows, itemID)
	if row.State == StateRunning {
		return fmt.Errorf("%w: cannot reset while %s is in progress", ErrItemBusy, row.Running)
	}
	if err := s.store.ResetProgress(ctx, itemID); err != nil {
		return err
	}
	progress, err := s.store.GetProgress(ctx, itemID)
	if err != nil {
		return err
	}
	s.refresh(row, progress)
	row.Errored = false
	row.LastError = ""
	s.notify(row)
	s.logger.Info("item progress reset", logging.Int64(logging.FieldItemID, itemID))
	return nil
}

func (s *Scheduler) handleSnapshot(ctx context.Context, rows map[int64]*RowState, itemIDs []int64) ([]RowState, error) {
	out := make([]RowState, 0, len(itemIDs))
	for _, id := range itemIDs {
		row := s.row(rows, id)
		if row.State == StateIdle {
			progress, err := s.store.GetProgress(ctx, id)
			if err != nil {
				return nil, err
			}
			s.refresh(row, progress)
		}
		out = append(out, *row)
	}
	return out, nil
}

func (s *Scheduler) row(rows map[int64]*RowState, itemID int64) *RowState {
	row, ok := rows[itemID]
	if !ok {
		row = &RowState{ItemID: itemID, State: StateIdle, Next: s.graph.First()}
		rows[itemID] = row
	}
	return row
}

func (s *Scheduler) refresh(row *RowState, progress pipeline.Progress) {
	row.Progress = progress
	if err := s.graph.ValidatePrefix(s.graph.Flags(progress)); err != nil {
		if !s.gapWarned[row.ItemID] {
			s.gapWarned[row.ItemID] = true
			logging.WarnWithContext(s.logger, "item progress has a gap", "progress_gap",
				logging.Int64(logging.FieldItemID, row.ItemID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run the earlier tasks again or reset the item"),
				logging.String(logging.FieldImpact, "the first incomplete task is offered next"),
			)
		}
	} else {
		delete(s.gapWarned, row.ItemID)
	}
	next, ok := s.graph.Next(progress)
	if !ok {
		next = ""
	}
	row.Next = next
}

func (s *Scheduler) notify(row *RowState) {
	if s.onUpdate != nil {
		s.onUpdate(*row)
	}
}
