package itemops

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"scanpipe/internal/config"
	"scanpipe/internal/fileutil"
	"scanpipe/internal/pipeline"
	"scanpipe/internal/services"
	"scanpipe/internal/tasks"
)

const maxReportedMismatches = 5

// Complete verifies that every local file of an item exists on the storage
// location with the same size.
type Complete struct {
	layout Layout
}

// NewComplete constructs the completeness check.
func NewComplete(cfg *config.Config) *Complete {
	return &Complete{layout: NewLayout(cfg)}
}

func (c *Complete) Execute(ctx context.Context, item tasks.WorkItem) (tasks.Outcome, error) {
	task := string(pipeline.TaskComplete)
	itemDir := c.layout.ItemDir(item)
	if err := requireItemDir(task, itemDir); err != nil {
		return tasks.Outcome{}, err
	}
	remote := c.layout.RemoteItemDir(item)
	if remote == "" {
		return tasks.Outcome{}, services.Wrap(services.ErrConfiguration, task, "resolve storage", "paths.scan_storage_location is not configured", nil)
	}

	local, err := fileutil.ListFiles(itemDir)
	if err != nil {
		return tasks.Outcome{}, services.Wrap(services.ErrTransient, task, "list local files", itemDir, err)
	}
	if err := ctx.Err(); err != nil {
		return tasks.Outcome{}, err
	}
	copied, err := fileutil.ListFiles(remote)
	if err != nil {
		return tasks.Outcome{}, services.Wrap(services.ErrNotFound, task, "list remote files", remote, err)
	}

	var problems []string
	for rel, size := range local {
		remoteSize, ok := copied[rel]
		switch {
		case !ok:
			problems = append(problems, rel+" missing")
		case remoteSize != size:
			problems = append(problems, fmt.Sprintf("%s size %d, want %d", rel, remoteSize, size))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		shown := problems
		if len(shown) > maxReportedMismatches {
			shown = shown[:maxReportedMismatches]
		}
		detail := fmt.Sprintf("%d of %d files not on storage: %s", len(problems), len(local), strings.Join(shown, "; "))
		return tasks.Outcome{}, services.Wrap(services.ErrValidation, task, "verify copy", detail, nil)
	}
	return tasks.Outcome{Message: fmt.Sprintf("verified %d files at %s", len(local), remote)}, nil
}
