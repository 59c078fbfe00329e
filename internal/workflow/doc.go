// Package workflow drives a project's items through the task graph on behalf
// of an interactive operator.
//
// The Controller owns the workspace lock and a scheduler. It tracks the open
// project and refuses navigation away from it while any run is in flight.
// Callers request one task at a time with RequestTask, or let Advance push
// every item as far as it will go. Lifecycle events are delivered to injected
// sinks (callback, channel, or a logging.StreamHub) and written to a
// per-project log file.
//
// Failures of individual runs are recorded on the item row and in Status;
// they never stop the controller.
package workflow
