package itemops

import (
	"context"
	"fmt"

	"scanpipe/internal/config"
	"scanpipe/internal/services"
	"scanpipe/internal/store"
	"scanpipe/internal/tasks"
)

// WorkItemFor builds the file-system context for item within project.
func WorkItemFor(cfg *config.Config, project *store.Project, item *store.Item) tasks.WorkItem {
	return tasks.WorkItem{
		ItemID:       item.ID,
		CollectionID: project.CollectionID,
		Identifier:   item.Identifier,
		Title:        item.DisplayString(),
		ProjectDir:   project.ProjectDir,
		RemoteDir:    cfg.RemoteDir(project.ProjectDir),
	}
}

// Resolver loads items and their projects from st on demand.
func Resolver(cfg *config.Config, st *store.Store) func(context.Context, int64) (tasks.WorkItem, error) {
	return func(ctx context.Context, itemID int64) (tasks.WorkItem, error) {
		item, err := st.GetItem(ctx, itemID)
		if err != nil {
			return tasks.WorkItem{}, err
		}
		if item == nil {
			return tasks.WorkItem{}, services.Wrap(services.ErrNotFound, "", "resolve item", fmt.Sprintf("item %d does not exist", itemID), nil)
		}
		project, err := st.GetProject(ctx, item.ProjectID)
		if err != nil {
			return tasks.WorkItem{}, err
		}
		if project == nil {
			return tasks.WorkItem{}, services.Wrap(services.ErrNotFound, "", "resolve item", fmt.Sprintf("project %d does not exist", item.ProjectID), nil)
		}
		return WorkItemFor(cfg, project, item), nil
	}
}
