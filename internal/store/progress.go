package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"scanpipe/internal/pipeline"
	"scanpipe/internal/services"
)

// taskColumn whitelists the flag column for each task so column names are
// never built from caller input.
func taskColumn(task pipeline.Task) (string, error) {
	switch task {
	case pipeline.TaskRename:
		return "task_rename", nil
	case pipeline.TaskDerivatives:
		return "task_derivatives", nil
	case pipeline.TaskCopy:
		return "task_copy", nil
	case pipeline.TaskComplete:
		return "task_complete", nil
	default:
		return "", services.Wrap(services.ErrValidation, string(task), "progress", "unknown task", nil)
	}
}

func notFound(itemID int64, operation string) error {
	return services.Wrap(services.ErrNotFound, "", operation, fmt.Sprintf("item %d", itemID), nil)
}

// GetProgress reads an item's flags and page count straight from the database.
func (s *Store) GetProgress(ctx context.Context, itemID int64) (pipeline.Progress, error) {
	var (
		progress                              pipeline.Progress
		rename, derivatives, copied, complete int
	)
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT task_rename, task_derivatives, task_copy, task_complete, page_count FROM items WHERE id = ?`,
		itemID,
	).Scan(&rename, &derivatives, &copied, &complete, &progress.PageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return pipeline.Progress{}, notFound(itemID, "get progress")
	}
	if err != nil {
		return pipeline.Progress{}, fmt.Errorf("get progress: %w", err)
	}
	progress.Rename = rename != 0
	progress.Derivatives = derivatives != 0
	progress.Copy = copied != 0
	progress.Complete = complete != 0
	return progress, nil
}

// MarkTaskComplete sets one task flag. Other flags are untouched and repeating
// the call is harmless.
func (s *Store) MarkTaskComplete(ctx context.Context, itemID int64, task pipeline.Task) error {
	column, err := taskColumn(task)
	if err != nil {
		return err
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE items SET `+column+` = 1, updated_at = ? WHERE id = ?`,
		nowString(), itemID,
	)
	if err != nil {
		return fmt.Errorf("mark %s complete: %w", task, err)
	}
	return requireRow(res, itemID, "mark task complete")
}

// SetPageCount overwrites the item's scan count.
func (s *Store) SetPageCount(ctx context.Context, itemID int64, count int) error {
	if count < 0 {
		return services.Wrap(services.ErrValidation, "", "set page count", "page count must be non-negative", nil)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE items SET page_count = ?, updated_at = ? WHERE id = ?`,
		count, nowString(), itemID,
	)
	if err != nil {
		return fmt.Errorf("set page count: %w", err)
	}
	return requireRow(res, itemID, "set page count")
}

// RecordSuccess marks task complete; for rename it stores pageCount in the
// same statement so the flag and the count become visible together.
func (s *Store) RecordSuccess(ctx context.Context, itemID int64, task pipeline.Task, pageCount int) error {
	if task != pipeline.TaskRename {
		return s.MarkTaskComplete(ctx, itemID, task)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE items SET task_rename = 1, page_count = ?, updated_at = ? WHERE id = ?`,
		pageCount, nowString(), itemID,
	)
	if err != nil {
		return fmt.Errorf("record rename: %w", err)
	}
	return requireRow(res, itemID, "record success")
}

// ResetProgress clears every task flag. The page count is kept.
func (s *Store) ResetProgress(ctx context.Context, itemID int64) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE items SET task_rename = 0, task_derivatives = 0, task_copy = 0, task_complete = 0, updated_at = ?
         WHERE id = ?`,
		nowString(), itemID,
	)
	if err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	return requireRow(res, itemID, "reset progress")
}

func requireRow(res sql.Result, itemID int64, operation string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", operation, err)
	}
	if affected == 0 {
		return notFound(itemID, operation)
	}
	return nil
}
