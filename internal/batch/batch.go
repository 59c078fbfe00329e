package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"scanpipe/internal/config"
	"scanpipe/internal/itemops"
	"scanpipe/internal/logging"
	"scanpipe/internal/pipeline"
	"scanpipe/internal/runlock"
	"scanpipe/internal/services"
	"scanpipe/internal/store"
	"scanpipe/internal/tasks"
)

// ErrProjectNotFound marks a collection id with no project row.
var ErrProjectNotFound = errors.New("project not found")

// ProjectNotFoundError reports the collection id that was looked up. It
// matches both ErrProjectNotFound and services.ErrNotFound.
type ProjectNotFoundError struct {
	CollectionID string
}

func (e *ProjectNotFoundError) Error() string {
	return fmt.Sprintf("No project found in database for collection_id %s", e.CollectionID)
}

func (e *ProjectNotFoundError) Is(target error) bool {
	return target == ErrProjectNotFound || target == services.ErrNotFound
}

// Report summarizes a batch run.
type Report struct {
	CollectionID string
	Task         pipeline.Task
	Processed    []string
	Skipped      int
}

// Runner executes batch runs against the progress store.
type Runner struct {
	cfg      *config.Config
	store    *store.Store
	executor *tasks.Executor
	out      io.Writer
	logger   *slog.Logger
}

// NewRunner constructs a batch runner. Progress lines are written to out.
func NewRunner(cfg *config.Config, st *store.Store, registry *tasks.Registry, out io.Writer, logger *slog.Logger) *Runner {
	if out == nil {
		out = io.Discard
	}
	logger = logging.NewComponentLogger(logger, "batch")
	return &Runner{
		cfg:      cfg,
		store:    st,
		executor: tasks.NewExecutor(registry, logger, cfg.TaskTimeout()),
		out:      out,
		logger:   logger,
	}
}

// RunDerivatives generates derivatives for every item of collectionID whose
// files are renamed and whose derivatives are not yet done.
func (r *Runner) RunDerivatives(ctx context.Context, collectionID string) (Report, error) {
	report := Report{CollectionID: collectionID, Task: pipeline.TaskDerivatives}
	started := time.Now()

	lock, err := runlock.Acquire(r.cfg.LockPath())
	if err != nil {
		return report, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			r.logger.Warn("failed to release workspace lock", logging.Error(err))
		}
	}()

	project, err := r.store.ProjectByCollectionID(ctx, collectionID)
	if err != nil {
		return report, err
	}
	if project == nil {
		return report, &ProjectNotFoundError{CollectionID: collectionID}
	}

	items, err := r.store.ItemsByProject(ctx, project.ID)
	if err != nil {
		return report, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Identifier < items[j].Identifier
	})

	batchID := uuid.NewString()
	logger := r.logger.With(
		logging.String(logging.FieldCollectionID, project.CollectionID),
		logging.String("batch_id", batchID),
	)
	logger.Info("batch derivatives started", logging.Int("items", len(items)))

	for _, item := range items {
		if !item.Progress.Rename || item.Progress.Derivatives {
			report.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		fmt.Fprintf(r.out, "generating derivatives for %s\n", item.Identifier)
		run := tasks.Run{
			ID:   uuid.NewString(),
			Task: pipeline.TaskDerivatives,
			Item: itemops.WorkItemFor(r.cfg, project, item),
		}
		if _, err := r.executor.Execute(ctx, run, nil); err != nil {
			logger.Error("batch derivatives aborted",
				logging.String(logging.FieldIdentifier, item.Identifier),
				logging.Int("completed", len(report.Processed)),
				logging.Error(err),
			)
			return report, fmt.Errorf("generate derivatives for %s: %w", item.Identifier, err)
		}
		if err := r.store.MarkTaskComplete(ctx, item.ID, pipeline.TaskDerivatives); err != nil {
			return report, fmt.Errorf("record derivatives for %s: %w", item.Identifier, err)
		}
		fmt.Fprintf(r.out, "derivatives generated for %s\n", item.Identifier)
		report.Processed = append(report.Processed, item.Identifier)
	}

	logger.Info("batch derivatives finished",
		logging.Int("generated", len(report.Processed)),
		logging.Int("skipped", report.Skipped),
		logging.Duration("elapsed", time.Since(started)),
	)
	return report, nil
}
