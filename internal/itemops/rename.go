package itemops

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"scanpipe/internal/config"
	"scanpipe/internal/fileutil"
	"scanpipe/internal/logging"
	"scanpipe/internal/pipeline"
	"scanpipe/internal/services"
	"scanpipe/internal/tasks"
)

// Rename moves raw scans into the preservation directory under canonical
// names and reports the resulting page count.
type Rename struct {
	layout Layout
	logger *slog.Logger
}

// NewRename constructs the rename operation.
func NewRename(cfg *config.Config, logger *slog.Logger) *Rename {
	return &Rename{layout: NewLayout(cfg), logger: logging.NewComponentLogger(logger, "rename")}
}

func (r *Rename) Execute(ctx context.Context, item tasks.WorkItem) (tasks.Outcome, error) {
	task := string(pipeline.TaskRename)
	itemDir := r.layout.ItemDir(item)
	if err := requireItemDir(task, itemDir); err != nil {
		return tasks.Outcome{}, err
	}

	names, err := regularFiles(itemDir)
	if err != nil {
		return tasks.Outcome{}, services.Wrap(services.ErrTransient, task, "list scans", itemDir, err)
	}
	var scans []string
	for _, name := range names {
		if r.layout.isScan(name) {
			scans = append(scans, name)
		}
	}

	preservation := r.layout.PreservationDir(item)
	existing, err := regularFiles(preservation)
	if err != nil {
		return tasks.Outcome{}, services.Wrap(services.ErrTransient, task, "list preservation", preservation, err)
	}
	if len(scans) == 0 && len(existing) == 0 {
		return tasks.Outcome{}, services.Wrap(services.ErrValidation, task, "list scans", fmt.Sprintf("no scans found in %s", itemDir), nil)
	}

	if err := os.MkdirAll(preservation, 0o755); err != nil {
		return tasks.Outcome{}, services.Wrap(services.ErrTransient, task, "create preservation dir", preservation, err)
	}

	// Numbering continues after files left by an interrupted run.
	next := len(existing) + 1
	for _, name := range scans {
		if err := ctx.Err(); err != nil {
			return tasks.Outcome{}, err
		}
		target := filepath.Join(preservation, PreservedName(item.Identifier, next, filepath.Ext(name)))
		if _, err := os.Stat(target); err == nil {
			return tasks.Outcome{}, services.Wrap(services.ErrValidation, task, "rename", fmt.Sprintf("%s already exists", target), nil)
		}
		if err := fileutil.MoveFile(filepath.Join(itemDir, name), target); err != nil {
			return tasks.Outcome{}, services.Wrap(services.ErrTransient, task, "rename", name, err)
		}
		r.logger.Debug("scan renamed",
			logging.String("source", name),
			logging.String("target", filepath.Base(target)),
		)
		next++
	}

	pages, err := regularFiles(preservation)
	if err != nil {
		return tasks.Outcome{}, services.Wrap(services.ErrTransient, task, "count pages", preservation, err)
	}
	message := fmt.Sprintf("renamed %d files, %d pages", len(scans), len(pages))
	if len(scans) == 0 {
		message = fmt.Sprintf("already renamed, %d pages", len(pages))
	}
	return tasks.Outcome{Message: message, PageCount: len(pages)}, nil
}
