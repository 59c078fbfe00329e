package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"scanpipe/internal/config"
	"scanpipe/internal/runlock"
	"scanpipe/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Fatalf("expected output to contain %q, got:\n%s", w, out)
		}
	}
}

func TestCLIProjectAndItemCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"projects"}, env.configPath)
	if err != nil {
		t.Fatalf("projects: %v", err)
	}
	requireContains(t, out, "No projects registered")

	out, _, err = runCLI(t, []string{"project", "add", "UP001234", "Kelly papers", "kelly"}, env.configPath)
	if err != nil {
		t.Fatalf("project add: %v", err)
	}
	requireContains(t, out, "Added project UP001234", filepath.Join(env.cfg.Paths.OutputDir, "kelly"))

	out, _, err = runCLI(t, []string{"item", "add", "UP001234", "UP001234-001", "--title", "Correspondence", "--dates", "1890-1899"}, env.configPath)
	if err != nil {
		t.Fatalf("item add: %v", err)
	}
	requireContains(t, out, "Added item UP001234-001 (Correspondence, 1890-1899) to UP001234")

	out, _, err = runCLI(t, []string{"projects"}, env.configPath)
	if err != nil {
		t.Fatalf("projects: %v", err)
	}
	requireContains(t, out, "UP001234", "Kelly papers")

	out, _, err = runCLI(t, []string{"items", "UP001234"}, env.configPath)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	requireContains(t, out, "UP001234-001", "0 of 3 tasks complete", "Rename Files")

	out, _, err = runCLI(t, []string{"items", "UP001234", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("items --json: %v", err)
	}
	requireContains(t, out, `"Identifier": "UP001234-001"`, `"Trigger": "rename"`)

	_, _, err = runCLI(t, []string{"item", "add", "UP999999", "UP999999-001"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "no project found") {
		t.Fatalf("expected missing project error, got %v", err)
	}
}

func TestCLIRunAndReset(t *testing.T) {
	env := setupCLITestEnv(t)
	st := testsupport.MustOpenStore(t, env.cfg)
	project, items := testsupport.SeedProject(t, st, env.cfg, "UP001234", "UP001234-001")
	testsupport.WriteScans(t, filepath.Join(project.ProjectDir, "UP001234-001"), 4)

	out, _, err := runCLI(t, []string{"run", "UP001234", "UP001234-001"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "renaming files", "successfully finished renaming files for UP001234-001")

	out, _, err = runCLI(t, []string{"items", "UP001234"}, env.configPath)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	requireContains(t, out, "1 of 3 tasks complete", "Copy to HOLD")

	_, _, err = runCLI(t, []string{"run", "UP001234", "UP001234-001", "complete"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "complete") {
		t.Fatalf("expected out-of-order run to fail, got %v", err)
	}

	out, _, err = runCLI(t, []string{"reset", "UP001234", "UP001234-001"}, env.configPath)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	requireContains(t, out, "Reset UP001234-001; next task is rename")

	progress, err := st.GetProgress(context.Background(), items[0].ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if progress.Rename || progress.PageCount != 4 {
		t.Fatalf("unexpected progress after reset: %+v", progress)
	}
}

func TestCLIAdvanceReportsFailures(t *testing.T) {
	env := setupCLITestEnv(t)
	st := testsupport.MustOpenStore(t, env.cfg)
	project, _ := testsupport.SeedProject(t, st, env.cfg, "UP001234", "UP001234-001", "UP001234-002")
	testsupport.WriteScans(t, filepath.Join(project.ProjectDir, "UP001234-001"), 2)
	testsupport.WriteScans(t, filepath.Join(project.ProjectDir, "UP001234-002"), 3)

	// The storage location is never created, so every item stops at copy.
	out, _, err := runCLI(t, []string{"advance", "UP001234"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "2 item(s) failed") {
		t.Fatalf("expected advance failure, got %v", err)
	}
	requireContains(t, out, "Advanced UP001234: 2 task runs", "UP001234-001 stopped at copy", "UP001234-002 stopped at copy",
		"Recent errors:", "UP001234-001 copy:", "UP001234-002 copy:")

	if err := os.MkdirAll(env.cfg.Paths.ScanStorageLocation, 0o755); err != nil {
		t.Fatalf("mkdir storage: %v", err)
	}
	out, _, err = runCLI(t, []string{"advance", "UP001234"}, env.configPath)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	requireContains(t, out, "Advanced UP001234: 4 task runs in 2 rounds")
}

func TestCLIBatch(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"batch", "UP001234"}, env.configPath)
	if !errors.Is(err, errNoAction) {
		t.Fatalf("expected errNoAction, got %v", err)
	}

	_, _, err = runCLI(t, []string{"batch", "UP001234", "--derivatives"}, env.configPath)
	if err == nil || err.Error() != "No project found in database for collection_id UP001234" {
		t.Fatalf("expected missing project error, got %v", err)
	}

	st := testsupport.MustOpenStore(t, env.cfg)
	testsupport.SeedProject(t, st, env.cfg, "UP001234", "UP001234-001")
	out, _, err := runCLI(t, []string{"batch", "UP001234", "-d"}, env.configPath)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	requireContains(t, out, "Generated derivatives for 0 item(s) in UP001234 (1 skipped)")
}

func TestCLIStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Workspace ==", "Not running", "== Database ==", "schema v", "Copy to HOLD")

	lock, err := runlock.Acquire(env.cfg.LockPath())
	if err != nil {
		t.Fatalf("runlock.Acquire: %v", err)
	}
	defer lock.Release()
	out, _, err = runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running (workspace locked)")
}

func TestCLIConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "scanpipe", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration to "+target)

	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected existing config error, got %v", err)
	}

	env := setupCLITestEnv(t)
	out, _, err = runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Config path: "+env.configPath, "Tasks: Rename Files -> Copy to HOLD -> Complete", "Configuration valid")
}
