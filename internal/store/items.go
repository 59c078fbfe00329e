package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"scanpipe/internal/services"
)

const itemColumns = "id, project_id, identifier, title, dates, box, folder, uri, task_rename, task_derivatives, task_copy, task_complete, page_count, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		item                                  Item
		rename, derivatives, copied, complete int
		createdRaw, updatedRaw                string
	)
	if err := scanner.Scan(
		&item.ID,
		&item.ProjectID,
		&item.Identifier,
		&item.Title,
		&item.Dates,
		&item.Box,
		&item.Folder,
		&item.URI,
		&rename,
		&derivatives,
		&copied,
		&complete,
		&item.Progress.PageCount,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	item.Progress.Rename = rename != 0
	item.Progress.Derivatives = derivatives != 0
	item.Progress.Copy = copied != 0
	item.Progress.Complete = complete != 0
	item.CreatedAt = parseTimeString(createdRaw)
	item.UpdatedAt = parseTimeString(updatedRaw)
	return &item, nil
}

// CreateItem registers an item under a project with empty progress.
func (s *Store) CreateItem(ctx context.Context, projectID int64, in NewItem) (*Item, error) {
	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" {
		return nil, services.Wrap(services.ErrValidation, "", "create item", "identifier is required", nil)
	}
	if strings.ContainsAny(identifier, `/\`) {
		return nil, services.Wrap(services.ErrValidation, "", "create item", fmt.Sprintf("identifier %q must not contain path separators", identifier), nil)
	}
	now := nowString()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO items (project_id, identifier, title, dates, box, folder, uri, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, identifier,
		strings.TrimSpace(in.Title), strings.TrimSpace(in.Dates),
		strings.TrimSpace(in.Box), strings.TrimSpace(in.Folder), strings.TrimSpace(in.URI),
		now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetItem(ctx, id)
}

// GetItem fetches an item by id, or nil when absent.
func (s *Store) GetItem(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ItemByIdentifier looks an item up within a project, or nil when absent.
func (s *Store) ItemByIdentifier(ctx context.Context, projectID int64, identifier string) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+itemColumns+` FROM items WHERE project_id = ? AND identifier = ?`,
		projectID, strings.TrimSpace(identifier),
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("item by identifier: %w", err)
	}
	return item, nil
}

// ItemsByProject returns a project's items in storage order.
func (s *Store) ItemsByProject(ctx context.Context, projectID int64) ([]*Item, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+itemColumns+` FROM items WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
