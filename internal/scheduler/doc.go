// Package scheduler owns the per-item state machine that decides which task
// may run for which item, and when.
//
// One goroutine (Run) owns every row. Dispatch, Reset, and Snapshot requests
// and run completions arrive on channels and are applied in order, so two
// runs can never be accepted for the same item and every store write for a
// completion happens in one place. Eligibility is re-derived from the store
// on every dispatch rather than trusted from the caller or a cached row.
//
// Accepted runs execute on worker goroutines bounded by a weighted
// semaphore. The in-flight counter covers the whole span from acceptance to
// persisted completion; the interactive controller reads it to decide
// whether leaving the current project is safe.
package scheduler
