package itemops

import (
	"log/slog"

	"scanpipe/internal/config"
	"scanpipe/internal/pipeline"
	"scanpipe/internal/tasks"
)

// NewRegistry binds every task kind to its file operation.
func NewRegistry(cfg *config.Config, logger *slog.Logger, opts ...DerivativesOption) *tasks.Registry {
	registry := tasks.NewRegistry()
	registry.Register(pipeline.TaskRename, NewRename(cfg, logger))
	registry.Register(pipeline.TaskDerivatives, NewDerivatives(cfg, logger, opts...))
	registry.Register(pipeline.TaskCopy, NewCopy(cfg, logger))
	registry.Register(pipeline.TaskComplete, NewComplete(cfg))
	return registry
}
