// Package services defines shared utilities consumed by the task operations,
// the scheduler, and the batch runner.
//
// Key responsibilities:
//   - Context helpers that stamp item IDs, task names, collection IDs, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures as
//     validation, lookup, configuration, or external tool problems.
//
// Use these helpers when wiring new task logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
