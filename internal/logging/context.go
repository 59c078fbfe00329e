package logging

import (
	"context"
	"log/slog"

	"scanpipe/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldItemID is the standardized structured logging key for item database identifiers.
	FieldItemID = "item_id"
	// FieldIdentifier is the standardized structured logging key for an item's archival identifier.
	FieldIdentifier = "identifier"
	// FieldTask is the standardized structured logging key for pipeline task names.
	FieldTask = "task"
	// FieldCollectionID is the standardized structured logging key for project collection IDs.
	FieldCollectionID = "collection_id"
	// FieldCorrelationID is the standardized structured logging key for task run identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering (task_start, task_failure, ...).
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.ItemIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldItemID, id))
	}
	if task, ok := services.TaskFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTask, task))
	}
	if cid, ok := services.CollectionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCollectionID, cid))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
