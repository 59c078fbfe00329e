package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"scanpipe/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SCANPIPE_STORAGE_LOCATION", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "scanpipe")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "digitization") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if !cfg.Pipeline.GenerateDerivatives {
		t.Fatal("expected derivatives enabled by default")
	}
	if cfg.Pipeline.DerivativeType != "jpg" {
		t.Fatalf("unexpected derivative type: %q", cfg.Pipeline.DerivativeType)
	}
	if cfg.Workflow.WorkerCount != config.Default().Workflow.WorkerCount {
		t.Fatalf("unexpected worker count: %d", cfg.Workflow.WorkerCount)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "scanpipe.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.OutputDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "scanpipe.toml")

	type payload struct {
		Paths struct {
			ScanStorageLocation string `toml:"scan_storage_location"`
		} `toml:"paths"`
		Pipeline struct {
			GenerateDerivatives bool     `toml:"generate_derivatives"`
			DerivativeType      string   `toml:"derivative_type"`
			ScanExtensions      []string `toml:"scan_extensions"`
		} `toml:"pipeline"`
		Workflow struct {
			WorkerCount int `toml:"worker_count"`
			TaskTimeout int `toml:"task_timeout"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Paths.ScanStorageLocation = filepath.Join(tempDir, "hold")
	custom.Pipeline.GenerateDerivatives = false
	custom.Pipeline.DerivativeType = ".PNG"
	custom.Pipeline.ScanExtensions = []string{"TIF", ".tif", "jp2"}
	custom.Workflow.WorkerCount = 2
	custom.Workflow.TaskTimeout = 90
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Pipeline.GenerateDerivatives {
		t.Fatal("expected derivatives disabled from file")
	}
	if cfg.Pipeline.DerivativeType != "png" {
		t.Fatalf("expected normalized derivative type, got %q", cfg.Pipeline.DerivativeType)
	}
	if got := strings.Join(cfg.Pipeline.ScanExtensions, ","); got != ".tif,.jp2" {
		t.Fatalf("unexpected scan extensions: %q", got)
	}
	if cfg.Workflow.WorkerCount != 2 {
		t.Fatalf("expected worker count 2, got %d", cfg.Workflow.WorkerCount)
	}
	if cfg.TaskTimeout().Seconds() != 90 {
		t.Fatalf("expected 90s task timeout, got %s", cfg.TaskTimeout())
	}
	if cfg.Paths.ScanStorageLocation != filepath.Join(tempDir, "hold") {
		t.Fatalf("unexpected storage location: %q", cfg.Paths.ScanStorageLocation)
	}
}

func TestStorageLocationEnvFallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	hold := filepath.Join(t.TempDir(), "hold")
	t.Setenv("SCANPIPE_STORAGE_LOCATION", hold)

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.ScanStorageLocation != hold {
		t.Fatalf("expected storage location from env, got %q", cfg.Paths.ScanStorageLocation)
	}
}

func TestRemoteDirUsesProjectBasename(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.ScanStorageLocation = "/mnt/hold"

	if got := cfg.RemoteDir("/scans/projects/UP001234_papers/"); got != filepath.Join("/mnt/hold", "UP001234_papers") {
		t.Fatalf("unexpected remote dir: %q", got)
	}

	cfg.Paths.ScanStorageLocation = ""
	if got := cfg.RemoteDir("/scans/x"); got != "" {
		t.Fatalf("expected empty remote dir without storage root, got %q", got)
	}
}

func TestResolveProjectDir(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()

	got, err := cfg.ResolveProjectDir("UP001234")
	if err != nil {
		t.Fatalf("ResolveProjectDir: %v", err)
	}
	if got != filepath.Join(cfg.Paths.OutputDir, "UP001234") {
		t.Fatalf("expected relative dir under output dir, got %q", got)
	}

	abs := filepath.Join(t.TempDir(), "elsewhere")
	if got, err = cfg.ResolveProjectDir(abs); err != nil || got != abs {
		t.Fatalf("expected absolute dir unchanged, got %q (%v)", got, err)
	}

	if _, err := cfg.ResolveProjectDir("  "); err == nil {
		t.Fatal("expected error for blank directory")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "scan_storage_location") {
		t.Fatalf("sample config missing storage location: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.DataDir, "scanpipe") {
		t.Fatalf("expected data dir to contain scanpipe, got %q", cfg.Paths.DataDir)
	}
	if cfg.Workflow.WorkerCount <= 0 {
		t.Fatalf("expected positive worker count in sample, got %d", cfg.Workflow.WorkerCount)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Workflow.WorkerCount = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive worker count")
	}

	cfg = config.Default()
	cfg.Workflow.TaskTimeout = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative task timeout")
	}

	cfg = config.Default()
	cfg.Pipeline.DerivativeType = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when derivatives enabled without type")
	}

	cfg = config.Default()
	cfg.Pipeline.DerivativeArgs = []string{"{input}"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when derivative args lack output token")
	}

	cfg = config.Default()
	cfg.Pipeline.GenerateDerivatives = false
	cfg.Pipeline.DerivativeType = ""
	cfg.Pipeline.DerivativeCommand = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected derivative settings ignored when disabled, got %v", err)
	}

	cfg = config.Default()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}
