// Package batch runs one task across every eligible item of a project without
// the interactive controller.
//
// Batch runs are strictly sequential and fail fast: the first failing item
// aborts the run, and every item finished before it stays finished, so a
// rerun resumes where the last one stopped. The workspace lock is held for
// the whole run.
package batch
