package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"scanpipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Derivatives are disabled unless WithDerivatives is passed so tests do not
// depend on an image tool being installed.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.OutputDir = filepath.Join(base, "projects")
	cfgVal.Paths.ScanStorageLocation = filepath.Join(base, "hold")
	cfgVal.Pipeline.GenerateDerivatives = false
	cfgVal.Workflow.WorkerCount = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithDerivatives enables the derivatives task using command as the
// generator. An empty command keeps the configured default.
func WithDerivatives(command string, args ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.GenerateDerivatives = true
		if command != "" {
			b.cfg.Pipeline.DerivativeCommand = command
		}
		if len(args) > 0 {
			b.cfg.Pipeline.DerivativeArgs = append([]string(nil), args...)
		}
	}
}

// WithWorkerCount overrides the worker pool size.
func WithWorkerCount(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.WorkerCount = n
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default derivative command is
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.DerivativeBinary()}
		}
		WriteScript(b.t, b.baseDir, "#!/bin/sh\nexit 0\n", names...)
	}
}

// WriteScript installs an executable shell script under base/bin for each
// name and prepends that directory to PATH for the rest of the test.
func WriteScript(t testing.TB, base, script string, names ...string) {
	t.Helper()

	binDir := filepath.Join(base, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	for _, name := range names {
		target := filepath.Join(binDir, name)
		if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}

	oldPath := os.Getenv("PATH")
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath)
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
