package store

import (
	"strings"
	"time"

	"scanpipe/internal/pipeline"
)

// Project groups the items of one archival collection on disk.
type Project struct {
	ID           int64
	CollectionID string
	Name         string
	ProjectDir   string
	CreatedAt    time.Time
}

// ProjectSummary is a Project plus aggregate progress for listing.
type ProjectSummary struct {
	Project
	TotalItems     int
	CompletedItems int
	TotalScans     int
}

// Item is one archival object moving through the task pipeline.
type Item struct {
	ID         int64
	ProjectID  int64
	Identifier string
	Title      string
	Dates      string
	Box        string
	Folder     string
	URI        string
	Progress   pipeline.Progress
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DisplayString renders "title, dates", dropping whichever part is empty.
func (i Item) DisplayString() string {
	parts := make([]string, 0, 2)
	if title := strings.TrimSpace(i.Title); title != "" {
		parts = append(parts, title)
	}
	if dates := strings.TrimSpace(i.Dates); dates != "" {
		parts = append(parts, dates)
	}
	if len(parts) == 0 {
		return i.Identifier
	}
	return strings.Join(parts, ", ")
}

// NewItem carries the fields supplied when registering an item.
type NewItem struct {
	Identifier string
	Title      string
	Dates      string
	Box        string
	Folder     string
	URI        string
}

// DatabaseHealth captures diagnostic information about the progress database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseReadable bool
	SchemaVersion    int
	IntegrityCheck   bool
	TotalProjects    int
	TotalItems       int
	Error            string
}
