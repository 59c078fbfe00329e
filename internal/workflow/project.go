package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"scanpipe/internal/logging"
	"scanpipe/internal/pipeline"
	"scanpipe/internal/scheduler"
	"scanpipe/internal/services"
	"scanpipe/internal/store"
	"scanpipe/internal/tasks"
)

var (
	// ErrNavigationBlocked refuses leaving or switching projects while runs
	// are in flight. The request is not queued.
	ErrNavigationBlocked = errors.New("tasks are still running; wait for them to finish before leaving the project")
	// ErrNoProject is returned by item requests when no project is open.
	ErrNoProject = fmt.Errorf("%w: no project is open", services.ErrValidation)
)

// Row is the operator view of one item.
type Row struct {
	ItemID     int64
	Identifier string
	Display    string
	State      scheduler.State
	Running    pipeline.Task

	// Trigger is the single task the operator may start. It is empty while a
	// run is in flight and once every task is done.
	Trigger pipeline.Task

	Completed int
	Total     int
	PageCount int
	LastError string
}

// ProgressLabel renders the row's completion as "N of M tasks complete".
func (r Row) ProgressLabel() string {
	return fmt.Sprintf("%d of %d tasks complete", r.Completed, r.Total)
}

// Complete reports whether every task in the graph is done.
func (r Row) Complete() bool {
	return r.Total > 0 && r.Completed == r.Total
}

// Projects lists every project with its item and scan totals.
func (c *Controller) Projects(ctx context.Context) ([]store.ProjectSummary, error) {
	return c.store.ListAllProjects(ctx)
}

// OpenProject makes collectionID the current project.
func (c *Controller) OpenProject(ctx context.Context, collectionID string) (*store.Project, error) {
	sched, err := c.activeScheduler()
	if err != nil {
		return nil, err
	}
	if !sched.NavigationAllowed() {
		return nil, ErrNavigationBlocked
	}
	project, err := c.store.ProjectByCollectionID(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("%w: no project found in database for collection_id %s", services.ErrNotFound, collectionID)
	}

	eventLog, closer, path, err := c.projectLog.Logger(project)
	if err != nil {
		logging.WarnWithContext(c.logger, "project log unavailable", "project_log_unavailable",
			logging.String(logging.FieldCollectionID, project.CollectionID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "task events go to the main log only"),
		)
		eventLog = nil
	}

	c.mu.Lock()
	previous := c.eventCloser
	c.project = project
	c.eventLog = eventLog
	c.eventCloser = closer
	c.mu.Unlock()
	c.closeEventLog(previous)

	c.logger.Info("project opened",
		logging.String(logging.FieldCollectionID, project.CollectionID),
		logging.String("project_dir", project.ProjectDir),
		logging.String("project_log", path),
	)
	return project, nil
}

// CloseProject navigates back to the project list.
func (c *Controller) CloseProject() error {
	if !c.CanNavigate() {
		return ErrNavigationBlocked
	}
	c.mu.Lock()
	project := c.project
	closer := c.eventCloser
	c.project = nil
	c.eventLog = nil
	c.eventCloser = nil
	c.mu.Unlock()
	c.closeEventLog(closer)
	if project != nil {
		c.logger.Info("project closed", logging.String(logging.FieldCollectionID, project.CollectionID))
	}
	return nil
}

// CanNavigate reports whether no run is in flight.
func (c *Controller) CanNavigate() bool {
	sched, err := c.activeScheduler()
	if err != nil {
		return true
	}
	return sched.NavigationAllowed()
}

// Project returns the open project, or nil.
func (c *Controller) Project() *store.Project {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.project == nil {
		return nil
	}
	project := *c.project
	return &project
}

// Rows returns the open project's items in creation order.
func (c *Controller) Rows(ctx context.Context) ([]Row, error) {
	project, sched, err := c.active()
	if err != nil {
		return nil, err
	}
	items, err := c.store.ItemsByProject(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	states, err := sched.Snapshot(ctx, ids...)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, len(items))
	for i, item := range items {
		state := states[i]
		item.Progress = state.Progress
		row := NewRow(c.graph, item)
		row.State = state.State
		row.Running = state.Running
		row.LastError = state.LastError
		if state.State != scheduler.StateIdle {
			row.Trigger = ""
		}
		rows[i] = row
	}
	return rows, nil
}

// NewRow builds an idle row from an item's persisted progress.
func NewRow(graph pipeline.Graph, item *store.Item) Row {
	row := Row{
		ItemID:     item.ID,
		Identifier: item.Identifier,
		Display:    item.DisplayString(),
		State:      scheduler.StateIdle,
		Completed:  graph.CompletedCount(item.Progress),
		Total:      graph.Len(),
		PageCount:  item.Progress.PageCount,
	}
	if next, ok := graph.Next(item.Progress); ok {
		row.Trigger = next
	}
	return row
}

// RequestTask starts task for itemID. The returned channel receives the
// run's result once its outcome has been persisted. A run that fails is
// reported on the channel and in Status; the controller keeps running.
func (c *Controller) RequestTask(ctx context.Context, itemID int64, task pipeline.Task) (<-chan scheduler.RunResult, error) {
	project, sched, err := c.active()
	if err != nil {
		return nil, err
	}
	if err := c.requireMember(ctx, project, itemID); err != nil {
		return nil, err
	}

	result, err := sched.Dispatch(ctx, itemID, task)
	if err != nil {
		c.logger.Info("task request rejected",
			logging.Int64(logging.FieldItemID, itemID),
			logging.String(logging.FieldTask, string(task)),
			logging.Error(err),
		)
		return nil, err
	}

	out := make(chan scheduler.RunResult, 1)
	go func() {
		res := <-result
		c.recordRun(res)
		out <- res
	}()
	return out, nil
}

// RequestReset clears an idle item's progress.
func (c *Controller) RequestReset(ctx context.Context, itemID int64) error {
	project, sched, err := c.active()
	if err != nil {
		return err
	}
	if err := c.requireMember(ctx, project, itemID); err != nil {
		return err
	}
	return sched.Reset(ctx, itemID)
}

func (c *Controller) active() (*store.Project, *scheduler.Scheduler, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sched == nil {
		return nil, nil, ErrNotRunning
	}
	if c.project == nil {
		return nil, nil, ErrNoProject
	}
	return c.project, c.sched, nil
}

func (c *Controller) requireMember(ctx context.Context, project *store.Project, itemID int64) error {
	item, err := c.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item == nil || item.ProjectID != project.ID {
		return fmt.Errorf("%w: item %d is not part of %s", services.ErrNotFound, itemID, project.CollectionID)
	}
	return nil
}

func (c *Controller) currentEventLog() *slog.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.eventLog != nil {
		return c.eventLog
	}
	return c.logger
}

func (c *Controller) closeEventLog(closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		c.logger.Warn("failed to close project log", logging.Error(err))
	}
}

// logEvent mirrors lifecycle events into the project log.
func (c *Controller) logEvent(evt tasks.Event) {
	logger := c.currentEventLog()
	attrs := append(logging.RunAttrs(evt.ItemID, evt.Identifier, string(evt.Task), evt.RunID),
		logging.String(logging.FieldEventType, "task_"+string(evt.Kind)))
	ctx := context.Background()
	switch evt.Kind {
	case tasks.EventStarted, tasks.EventSuccess:
		logger.LogAttrs(ctx, slog.LevelInfo, evt.Message, attrs...)
	case tasks.EventError:
		logger.LogAttrs(ctx, slog.LevelError, evt.Message, attrs...)
	case tasks.EventFinished:
		logger.LogAttrs(ctx, slog.LevelDebug, "task finished", attrs...)
	}
}
