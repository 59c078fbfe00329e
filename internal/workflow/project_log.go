package workflow

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"scanpipe/internal/config"
	"scanpipe/internal/logging"
	"scanpipe/internal/store"
)

// ProjectLog manages one append-only log file per project under
// <log_dir>/projects.
type ProjectLog struct {
	baseDir string
	hub     *logging.StreamHub
	cfg     *config.Config
}

// NewProjectLog creates a project log manager. Records are also published to
// hub when it is non-nil.
func NewProjectLog(cfg *config.Config, hub *logging.StreamHub) *ProjectLog {
	dir := ""
	if cfg != nil && cfg.Paths.LogDir != "" {
		dir = filepath.Join(cfg.Paths.LogDir, "projects")
	}
	return &ProjectLog{
		baseDir: dir,
		hub:     hub,
		cfg:     cfg,
	}
}

// Path prepares the log directory and returns the file path for project.
func (p *ProjectLog) Path(project *store.Project) (string, error) {
	if project == nil {
		return "", errors.New("project is nil")
	}
	if strings.TrimSpace(p.baseDir) == "" {
		return "", errors.New("project log directory not configured")
	}
	if err := os.MkdirAll(p.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure project log directory: %w", err)
	}
	return filepath.Join(p.baseDir, p.filename(project)), nil
}

// Logger builds a logger appending to the project's file. The returned
// closer releases the file; callers close it when the project is left.
func (p *ProjectLog) Logger(project *store.Project) (*slog.Logger, io.Closer, string, error) {
	path, err := p.Path(project)
	if err != nil {
		return nil, nil, "", err
	}
	level := "info"
	format := "json"
	if p.cfg != nil {
		if strings.TrimSpace(p.cfg.Logging.Level) != "" {
			level = p.cfg.Logging.Level
		}
		if strings.TrimSpace(p.cfg.Logging.Format) != "" {
			format = p.cfg.Logging.Format
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, nil, "", fmt.Errorf("open project log %s: %w", path, err)
	}
	logger, err := logging.New(logging.Options{
		Level:  level,
		Format: format,
		Writer: file,
		Hub:    p.hub,
	})
	if err != nil {
		_ = file.Close()
		return nil, nil, "", err
	}
	return logger.With(logging.String(logging.FieldCollectionID, project.CollectionID)), file, path, nil
}

func (p *ProjectLog) filename(project *store.Project) string {
	collection := sanitizeSlug(project.CollectionID)
	if collection == "" {
		collection = fmt.Sprintf("project-%d", project.ID)
	}
	name := sanitizeSlug(project.Name)
	if name == "" || name == collection {
		return collection + ".log"
	}
	return fmt.Sprintf("%s-%s.log", collection, name)
}

func sanitizeSlug(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	var builder strings.Builder
	builder.Grow(len(value))
	lastDash := false
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
			lastDash = false
		case r >= 'A' && r <= 'Z':
			builder.WriteRune(unicode.ToLower(r))
			lastDash = false
		case unicode.IsDigit(r):
			builder.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				builder.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(builder.String(), "-")
}
