package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"scanpipe/internal/config"
	"scanpipe/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedProject registers a project rooted under the configured output
// directory and one item per identifier. Item directories are created empty.
func SeedProject(t testing.TB, st *store.Store, cfg *config.Config, collectionID string, identifiers ...string) (*store.Project, []*store.Item) {
	t.Helper()

	ctx := context.Background()
	projectDir := filepath.Join(cfg.Paths.OutputDir, collectionID)
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatalf("mkdir project dir: %v", err)
	}
	project, err := st.CreateProject(ctx, collectionID, collectionID+" papers", projectDir)
	if err != nil {
		t.Fatalf("store.CreateProject: %v", err)
	}

	items := make([]*store.Item, 0, len(identifiers))
	for _, identifier := range identifiers {
		if err := os.MkdirAll(filepath.Join(projectDir, identifier), 0o755); err != nil {
			t.Fatalf("mkdir item dir: %v", err)
		}
		item, err := st.CreateItem(ctx, project.ID, store.NewItem{
			Identifier: identifier,
			Title:      "Letters " + identifier,
			Dates:      "1901-1905",
		})
		if err != nil {
			t.Fatalf("store.CreateItem: %v", err)
		}
		items = append(items, item)
	}
	return project, items
}
