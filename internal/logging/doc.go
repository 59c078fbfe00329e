// Package logging assembles structured slog loggers and formatting helpers used
// across scanpipe.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so task code can automatically
// tag log lines with item IDs, task names, collection IDs, and correlation IDs.
// The StreamHub keeps a bounded window of recent events so an operator view can
// tail pipeline activity without reading log files.
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape and routing guarantees as the rest
// of the system.
package logging
