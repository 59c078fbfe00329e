// Package store persists projects, items, and per-item task progress in
// SQLite.
//
// Each item row carries one completion flag per task plus the page count
// discovered by the rename task. Every write is a single-statement,
// single-row UPDATE retried on SQLITE_BUSY, so a concurrent reader observes
// either the old row or the new one. Progress is never cached: callers that
// need to decide eligibility read it fresh with GetProgress.
//
// Schema changes bump schemaVersion in schema.go; existing databases with an
// older version are rejected with ErrSchemaMismatch.
package store
