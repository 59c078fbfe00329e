// Package tasks runs a single pipeline task for a single item.
//
// Each task kind is an Operation registered in a Registry. The Executor wraps
// one Operation call and reports its lifecycle to a Sink as started, then
// exactly one of success or error, then finished. Operation errors, panics,
// timeouts, and cancellation all become the error outcome; nothing escapes the
// executor, and it never touches persisted progress itself.
package tasks
