package workflow

import (
	"context"

	"scanpipe/internal/logging"
	"scanpipe/internal/scheduler"
	"scanpipe/internal/store"
	"scanpipe/internal/tasks"
)

// StatusSummary represents lightweight controller diagnostics.
type StatusSummary struct {
	Running    bool
	Project    *store.Project
	InFlight   int64
	LockPath   string
	LastError  string
	LastRun    *scheduler.RunResult
	Database   store.DatabaseHealth
	TaskHealth []tasks.Health
}

// Status returns the latest controller information.
func (c *Controller) Status(ctx context.Context) StatusSummary {
	c.mu.RLock()
	running := c.running
	sched := c.sched
	lastErr := c.lastErr
	lastRun := c.lastRun
	var project *store.Project
	if c.project != nil {
		copy := *c.project
		project = &copy
	}
	c.mu.RUnlock()

	summary := StatusSummary{
		Running:    running,
		Project:    project,
		LockPath:   c.cfg.LockPath(),
		TaskHealth: c.registry.Health(ctx),
	}
	if sched != nil {
		summary.InFlight = sched.InFlight()
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastRun != nil {
		copy := *lastRun
		summary.LastRun = &copy
	}

	health, err := c.store.CheckHealth(ctx)
	if err != nil {
		c.logger.Warn("failed to read database health", logging.Error(err))
	}
	summary.Database = health
	return summary
}
