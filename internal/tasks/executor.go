package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"

	"scanpipe/internal/logging"
	"scanpipe/internal/pipeline"
	"scanpipe/internal/services"
)

// Run binds one task to one item for a single execution.
type Run struct {
	ID   string
	Task pipeline.Task
	Item WorkItem
}

// Executor invokes registered operations and reports their lifecycle.
type Executor struct {
	registry *Registry
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
}

// NewExecutor constructs an executor. A zero timeout disables the per-run
// deadline.
func NewExecutor(registry *Registry, logger *slog.Logger, timeout time.Duration) *Executor {
	return &Executor{
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "executor"),
		timeout:  timeout,
		now:      time.Now,
	}
}

// Execute runs run.Task for run.Item. The sink sees started, then success or
// error, then finished. The returned error mirrors the error event.
func (e *Executor) Execute(ctx context.Context, run Run, sink Sink) (Outcome, error) {
	if sink == nil {
		sink = nopSink{}
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	runCtx := services.WithItemID(ctx, run.Item.ItemID)
	runCtx = services.WithTask(runCtx, string(run.Task))
	runCtx = services.WithCollectionID(runCtx, run.Item.CollectionID)
	runCtx = services.WithRequestID(runCtx, run.ID)
	logger := logging.WithContext(runCtx, e.logger).With(logging.String(logging.FieldIdentifier, run.Item.Identifier))

	base := Event{
		RunID:      run.ID,
		ItemID:     run.Item.ItemID,
		Identifier: run.Item.Identifier,
		Task:       run.Task,
	}
	emit := func(kind EventKind, message string, outcome Outcome, err error) {
		evt := base
		evt.Kind = kind
		evt.Message = message
		evt.Outcome = outcome
		evt.Err = err
		evt.Time = e.now()
		sink.Emit(evt)
	}

	emit(EventStarted, fmt.Sprintf("%s for %s", run.Task.Message(), run.Item.Identifier), Outcome{}, nil)
	logger.Info("task started", logging.String(logging.FieldEventType, "task_start"))
	started := e.now()

	outcome, err := e.invoke(runCtx, run)
	if err != nil {
		emit(EventError, err.Error(), Outcome{}, err)
		logging.ErrorWithContext(logger, "task failed", "task_failure",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, failureHint(err)),
			logging.Duration("elapsed", e.now().Sub(started)),
		)
	} else {
		message := fmt.Sprintf("successfully finished %s for %s", run.Task.Message(), run.Item.Identifier)
		if detail := strings.TrimSpace(outcome.Message); detail != "" {
			message += ": " + detail
		}
		emit(EventSuccess, message, outcome, nil)
		logger.Info("task completed",
			logging.String(logging.FieldEventType, "task_complete"),
			logging.String("outcome", outcome.Message),
			logging.Int("page_count", outcome.PageCount),
			logging.Duration("elapsed", e.now().Sub(started)),
		)
	}
	emit(EventFinished, "", outcome, err)
	if err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

func (e *Executor) invoke(ctx context.Context, run Run) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, cancellationError(run.Task, err)
	}
	op, err := e.registry.Lookup(run.Task)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrConfiguration, string(run.Task), "lookup operation", "", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var (
		outcome Outcome
		opErr   error
		catcher panics.Catcher
	)
	catcher.Try(func() {
		outcome, opErr = op.Execute(ctx, run.Item)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		e.logger.Debug("operation panic stack", logging.String("stack", string(recovered.Stack)))
		return Outcome{}, services.Wrap(services.ErrTransient, string(run.Task), "execute", fmt.Sprintf("operation panicked: %v", recovered.Value), nil)
	}
	if opErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(opErr, ctxErr) {
			return Outcome{}, cancellationError(run.Task, opErr)
		}
		return Outcome{}, opErr
	}
	return outcome, nil
}

func cancellationError(task pipeline.Task, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, string(task), "execute", "task timed out", err)
	}
	return services.Wrap(services.ErrTransient, string(task), "execute", "task cancelled", err)
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrExternalTool):
		return "check that the derivative command is installed and on PATH"
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrNotFound):
		return "fix the item's files on disk, then run the task again"
	case errors.Is(err, services.ErrTimeout):
		return "raise workflow.task_timeout or inspect the item for oversized scans"
	default:
		return "run the task again; inspect the log if it keeps failing"
	}
}
