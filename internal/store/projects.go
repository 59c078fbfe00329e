package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"scanpipe/internal/services"
)

const projectColumns = "p.id, p.collection_id, p.name, p.project_dir, p.created_at"

func scanProject(scanner interface{ Scan(dest ...any) error }, extra ...any) (*Project, error) {
	var (
		project    Project
		createdRaw string
	)
	dest := []any{&project.ID, &project.CollectionID, &project.Name, &project.ProjectDir, &createdRaw}
	dest = append(dest, extra...)
	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}
	project.CreatedAt = parseTimeString(createdRaw)
	return &project, nil
}

// CreateProject registers a collection and its directory.
func (s *Store) CreateProject(ctx context.Context, collectionID, name, projectDir string) (*Project, error) {
	collectionID = strings.TrimSpace(collectionID)
	if collectionID == "" {
		return nil, services.Wrap(services.ErrValidation, "", "create project", "collection id is required", nil)
	}
	if strings.TrimSpace(projectDir) == "" {
		return nil, services.Wrap(services.ErrValidation, "", "create project", "project directory is required", nil)
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO projects (collection_id, name, project_dir, created_at) VALUES (?, ?, ?, ?)`,
		collectionID, strings.TrimSpace(name), projectDir, nowString(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetProject(ctx, id)
}

// GetProject fetches a project by database id, or nil when absent.
func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+projectColumns+` FROM projects p WHERE p.id = ?`, id)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

// ProjectByCollectionID looks a project up by its external collection id.
// It returns nil, nil when no project matches.
func (s *Store) ProjectByCollectionID(ctx context.Context, collectionID string) (*Project, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+projectColumns+` FROM projects p WHERE p.collection_id = ?`,
		strings.TrimSpace(collectionID),
	)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("project by collection id: %w", err)
	}
	return project, nil
}

// ListProjects returns projects that have at least one item, with totals.
func (s *Store) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	return s.listProjects(ctx, `JOIN`)
}

// ListAllProjects includes projects without items.
func (s *Store) ListAllProjects(ctx context.Context) ([]ProjectSummary, error) {
	return s.listProjects(ctx, `LEFT JOIN`)
}

func (s *Store) listProjects(ctx context.Context, join string) ([]ProjectSummary, error) {
	query := `SELECT ` + projectColumns + `,
            COUNT(i.id),
            COALESCE(SUM(i.task_complete), 0),
            COALESCE(SUM(i.page_count), 0)
        FROM projects p ` + join + ` items i ON i.project_id = p.id
        GROUP BY p.id
        ORDER BY p.collection_id`
	rows, err := s.db.QueryContext(ensureContext(ctx), query)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var summaries []ProjectSummary
	for rows.Next() {
		var summary ProjectSummary
		project, err := scanProject(rows, &summary.TotalItems, &summary.CompletedItems, &summary.TotalScans)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		summary.Project = *project
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}
