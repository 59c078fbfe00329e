package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the local and remote directory configuration.
type Paths struct {
	DataDir             string `toml:"data_dir"`
	LogDir              string `toml:"log_dir"`
	OutputDir           string `toml:"output_dir"`
	ScanStorageLocation string `toml:"scan_storage_location"`
}

// Pipeline contains the task pipeline and derivative tooling settings.
type Pipeline struct {
	GenerateDerivatives bool     `toml:"generate_derivatives"`
	DerivativeType      string   `toml:"derivative_type"`
	DerivativeCommand   string   `toml:"derivative_command"`
	DerivativeArgs      []string `toml:"derivative_args"`
	ScanExtensions      []string `toml:"scan_extensions"`
	PreservationDir     string   `toml:"preservation_dir"`
}

// Workflow contains worker pool sizing and task limits.
type Workflow struct {
	WorkerCount int `toml:"worker_count"`
	// TaskTimeout bounds a single task run in seconds; zero disables it.
	TaskTimeout int `toml:"task_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string `toml:"format"`
	Level          string `toml:"level"`
	StreamCapacity int    `toml:"stream_capacity"`
}

// Config encapsulates all configuration values for scanpipe.
//
// Configuration sections by subsystem:
//   - Paths: database, logs, project roots, and the remote storage root
//   - Pipeline: derivative toggle and external tooling
//   - Workflow: worker pool size and task timeout
//   - Logging: log format, level, and in-memory stream size
type Config struct {
	Paths    Paths    `toml:"paths"`
	Pipeline Pipeline `toml:"pipeline"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scanpipe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scanpipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the local directories scanpipe writes to.
// The remote storage root is left alone; it is usually a network mount and the
// copy task reports its absence instead.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		// Best-effort: project roots may live on removable storage.
		_ = os.MkdirAll(c.Paths.OutputDir, 0o755)
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, databaseFileName)
}

// LockPath returns the workspace lock file shared by interactive and batch runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, lockFileName)
}

// ResolveProjectDir expands a project directory, anchoring relative values at
// the configured output directory.
func (c *Config) ResolveProjectDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", errors.New("project directory is required")
	}
	if !strings.HasPrefix(dir, "~") && !filepath.IsAbs(dir) {
		dir = filepath.Join(c.Paths.OutputDir, dir)
	}
	return expandPath(dir)
}

// RemoteDir returns the remote copy destination for a project directory. The
// directory keeps the project's basename under the storage root.
func (c *Config) RemoteDir(projectDir string) string {
	root := strings.TrimSpace(c.Paths.ScanStorageLocation)
	if root == "" {
		return ""
	}
	return filepath.Join(root, filepath.Base(filepath.Clean(projectDir)))
}

// TaskTimeout returns the per-run timeout, or zero when disabled.
func (c *Config) TaskTimeout() time.Duration {
	if c.Workflow.TaskTimeout <= 0 {
		return 0
	}
	return time.Duration(c.Workflow.TaskTimeout) * time.Second
}

// DerivativeBinary returns the executable used to generate derivatives.
func (c *Config) DerivativeBinary() string {
	return strings.TrimSpace(c.Pipeline.DerivativeCommand)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
