package itemops

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"scanpipe/internal/config"
	"scanpipe/internal/services"
	"scanpipe/internal/tasks"
)

// Layout resolves item paths from configuration.
type Layout struct {
	cfg *config.Config
}

// NewLayout binds path resolution to cfg.
func NewLayout(cfg *config.Config) Layout {
	return Layout{cfg: cfg}
}

// ItemDir is where an item's raw scans and outputs live.
func (l Layout) ItemDir(item tasks.WorkItem) string {
	return filepath.Join(item.ProjectDir, item.Identifier)
}

// PreservationDir holds the renamed master scans.
func (l Layout) PreservationDir(item tasks.WorkItem) string {
	return filepath.Join(l.ItemDir(item), l.cfg.Pipeline.PreservationDir)
}

// DerivativeDir holds generated derivatives.
func (l Layout) DerivativeDir(item tasks.WorkItem) string {
	return filepath.Join(l.ItemDir(item), l.cfg.Pipeline.DerivativeType)
}

// RemoteItemDir is the item's copy destination, or "" when no storage
// location is configured.
func (l Layout) RemoteItemDir(item tasks.WorkItem) string {
	remote := item.RemoteDir
	if remote == "" {
		remote = l.cfg.RemoteDir(item.ProjectDir)
	}
	if remote == "" {
		return ""
	}
	return filepath.Join(remote, item.Identifier)
}

// PreservedName returns the canonical file name for the n-th scan (1-based).
func PreservedName(identifier string, n int, ext string) string {
	return fmt.Sprintf("%s-%04d%s", identifier, n, strings.ToLower(ext))
}

func (l Layout) isScan(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, candidate := range l.cfg.Pipeline.ScanExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// regularFiles returns the sorted names of regular files directly inside dir.
// A missing directory yields no names and no error.
func regularFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func requireItemDir(task, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return services.Wrap(services.ErrNotFound, task, "locate item", fmt.Sprintf("item directory %s does not exist", dir), nil)
		}
		return services.Wrap(services.ErrTransient, task, "locate item", dir, err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrValidation, task, "locate item", fmt.Sprintf("%s is not a directory", dir), nil)
	}
	return nil
}
