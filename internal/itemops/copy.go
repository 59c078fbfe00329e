package itemops

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"scanpipe/internal/config"
	"scanpipe/internal/fileutil"
	"scanpipe/internal/logging"
	"scanpipe/internal/pipeline"
	"scanpipe/internal/services"
	"scanpipe/internal/tasks"
)

// Copy mirrors an item directory to the scan storage location.
type Copy struct {
	cfg    *config.Config
	layout Layout
	logger *slog.Logger
}

// NewCopy constructs the copy operation.
func NewCopy(cfg *config.Config, logger *slog.Logger) *Copy {
	return &Copy{cfg: cfg, layout: NewLayout(cfg), logger: logging.NewComponentLogger(logger, "copy")}
}

func (c *Copy) Execute(ctx context.Context, item tasks.WorkItem) (tasks.Outcome, error) {
	task := string(pipeline.TaskCopy)
	if err := c.storageAvailable(); err != nil {
		return tasks.Outcome{}, err
	}
	itemDir := c.layout.ItemDir(item)
	if err := requireItemDir(task, itemDir); err != nil {
		return tasks.Outcome{}, err
	}
	remote := c.layout.RemoteItemDir(item)

	stats, err := fileutil.CopyTree(ctx, itemDir, remote)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return tasks.Outcome{}, ctxErr
		}
		return tasks.Outcome{}, services.Wrap(services.ErrTransient, task, "copy tree", remote, err)
	}
	c.logger.Debug("item copied",
		logging.String("destination", remote),
		logging.Int("files", stats.Files),
		logging.Int64("bytes", stats.Bytes),
	)
	return tasks.Outcome{
		Message: fmt.Sprintf("copied %d files (%s) to %s", stats.Files, humanize.Bytes(uint64(stats.Bytes)), remote),
	}, nil
}

// HealthCheck reports whether the storage location is reachable.
func (c *Copy) HealthCheck(context.Context) tasks.Health {
	if err := c.storageAvailable(); err != nil {
		return tasks.Unhealthy(pipeline.TaskCopy, err.Error())
	}
	return tasks.Healthy(pipeline.TaskCopy)
}

func (c *Copy) storageAvailable() error {
	task := string(pipeline.TaskCopy)
	root := c.cfg.Paths.ScanStorageLocation
	if root == "" {
		return services.Wrap(services.ErrConfiguration, task, "resolve storage", "paths.scan_storage_location is not configured", nil)
	}
	info, err := os.Stat(root)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, task, "resolve storage", fmt.Sprintf("storage location %s is unavailable", root), err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrConfiguration, task, "resolve storage", fmt.Sprintf("storage location %s is not a directory", root), nil)
	}
	return nil
}
