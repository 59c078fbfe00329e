package itemops_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"scanpipe/internal/config"
	"scanpipe/internal/itemops"
	"scanpipe/internal/logging"
	"scanpipe/internal/pipeline"
	"scanpipe/internal/services"
	"scanpipe/internal/tasks"
	"scanpipe/internal/testsupport"
)

func newWorkItem(t *testing.T, cfg *config.Config, identifier string) tasks.WorkItem {
	t.Helper()
	projectDir := filepath.Join(cfg.Paths.OutputDir, "UP001234")
	if err := os.MkdirAll(filepath.Join(projectDir, identifier), 0o755); err != nil {
		t.Fatalf("mkdir item dir: %v", err)
	}
	return tasks.WorkItem{
		ItemID:       1,
		CollectionID: "UP001234",
		Identifier:   identifier,
		ProjectDir:   projectDir,
		RemoteDir:    cfg.RemoteDir(projectDir),
	}
}

func TestRenameMovesScansIntoPreservation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	item := newWorkItem(t, cfg, "UP001234-001")
	itemDir := filepath.Join(item.ProjectDir, item.Identifier)
	testsupport.WriteScans(t, itemDir, 12)
	testsupport.WriteFile(t, filepath.Join(itemDir, "notes.txt"), 10)

	op := itemops.NewRename(cfg, logging.NewNop())
	outcome, err := op.Execute(context.Background(), item)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.PageCount != 12 {
		t.Fatalf("page count = %d, want 12", outcome.PageCount)
	}
	first := filepath.Join(itemDir, "preservation", "UP001234-001-0001.tif")
	last := filepath.Join(itemDir, "preservation", "UP001234-001-0012.tif")
	for _, path := range []string{first, last} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s: %v", path, err)
		}
	}
	if _, err := os.Stat(filepath.Join(itemDir, "notes.txt")); err != nil {
		t.Fatalf("non-scan files should stay in place: %v", err)
	}

	again, err := op.Execute(context.Background(), item)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if again.PageCount != 12 || !strings.Contains(again.Message, "already renamed") {
		t.Fatalf("rerun outcome = %+v", again)
	}
}

func TestRenameWithoutScansFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	item := newWorkItem(t, cfg, "UP001234-002")

	_, err := itemops.NewRename(cfg, nil).Execute(context.Background(), item)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRenameMissingItemDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	item := tasks.WorkItem{Identifier: "ghost", ProjectDir: filepath.Join(cfg.Paths.OutputDir, "none")}

	_, err := itemops.NewRename(cfg, nil).Execute(context.Background(), item)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	fail  string
}

func (f *fakeRunner) Run(_ context.Context, binary string, args []string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{binary}, args...))
	f.mu.Unlock()
	output := args[len(args)-1]
	if f.fail != "" && strings.Contains(args[0], f.fail) {
		return []byte("corrupt tiff header"), errors.New("exit status 1")
	}
	return nil, os.WriteFile(output, []byte("jpg"), 0o644)
}

func TestDerivativesGeneratesOnePerScan(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDerivatives("magick", "{input}", "-quality", "85", "{output}"))
	item := newWorkItem(t, cfg, "UP001234-001")
	preservation := filepath.Join(item.ProjectDir, item.Identifier, "preservation")
	testsupport.WriteScans(t, preservation, 3)

	runner := &fakeRunner{}
	op := itemops.NewDerivatives(cfg, nil, itemops.WithCommandRunner(runner))
	outcome, err := op.Execute(context.Background(), item)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(runner.calls) != 3 {
		t.Fatalf("expected 3 command runs, got %d", len(runner.calls))
	}
	call := runner.calls[0]
	if call[0] != "magick" || call[2] != "-quality" || !strings.HasSuffix(call[4], filepath.Join("jpg", "scan_001.jpg")) {
		t.Fatalf("unexpected command line: %v", call)
	}
	if !strings.Contains(outcome.Message, "generated 3 jpg derivatives") {
		t.Fatalf("outcome = %q", outcome.Message)
	}

	outcome, err = op.Execute(context.Background(), item)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if len(runner.calls) != 3 || !strings.Contains(outcome.Message, "3 already present") {
		t.Fatalf("rerun should skip existing derivatives: calls=%d outcome=%q", len(runner.calls), outcome.Message)
	}
}

func TestDerivativesCommandFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDerivatives(""))
	item := newWorkItem(t, cfg, "UP001234-001")
	testsupport.WriteScans(t, filepath.Join(item.ProjectDir, item.Identifier, "preservation"), 2)

	op := itemops.NewDerivatives(cfg, nil, itemops.WithCommandRunner(&fakeRunner{fail: "scan_002"}))
	_, err := op.Execute(context.Background(), item)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if !strings.Contains(err.Error(), "corrupt tiff header") {
		t.Fatalf("expected tool output in error, got %v", err)
	}
}

func TestDerivativesMissingBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDerivatives("scanpipe-no-such-tool"))
	item := newWorkItem(t, cfg, "UP001234-001")

	op := itemops.NewDerivatives(cfg, nil)
	if _, err := op.Execute(context.Background(), item); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if health := op.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy derivative command")
	}
}

func TestDerivativesWithStubbedBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDerivatives("fake-magick"))
	testsupport.WriteScript(t, testsupport.BaseDir(cfg), "#!/bin/sh\ncp \"$1\" \"$2\"\n", "fake-magick")
	item := newWorkItem(t, cfg, "UP001234-001")
	testsupport.WriteScans(t, filepath.Join(item.ProjectDir, item.Identifier, "preservation"), 2)

	op := itemops.NewDerivatives(cfg, nil)
	if _, err := op.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := os.Stat(filepath.Join(item.ProjectDir, item.Identifier, "jpg", "scan_002.jpg")); err != nil {
		t.Fatalf("expected derivative written by stub: %v", err)
	}
}

func TestCopyThenComplete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.ScanStorageLocation, 0o755); err != nil {
		t.Fatal(err)
	}
	item := newWorkItem(t, cfg, "UP001234-001")
	testsupport.WriteScans(t, filepath.Join(item.ProjectDir, item.Identifier, "preservation"), 4)

	complete := itemops.NewComplete(cfg)
	if _, err := complete.Execute(context.Background(), item); err == nil {
		t.Fatal("expected completeness check to fail before copy")
	}

	copyOp := itemops.NewCopy(cfg, nil)
	outcome, err := copyOp.Execute(context.Background(), item)
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if !strings.Contains(outcome.Message, "copied 4 files") {
		t.Fatalf("copy outcome = %q", outcome.Message)
	}
	remote := filepath.Join(cfg.Paths.ScanStorageLocation, "UP001234", "UP001234-001", "preservation", "scan_001.tif")
	if _, err := os.Stat(remote); err != nil {
		t.Fatalf("expected remote copy: %v", err)
	}

	outcome, err = complete.Execute(context.Background(), item)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !strings.Contains(outcome.Message, "verified 4 files") {
		t.Fatalf("complete outcome = %q", outcome.Message)
	}

	testsupport.WriteFile(t, filepath.Join(item.ProjectDir, item.Identifier, "late.tif"), 5)
	if _, err := complete.Execute(context.Background(), item); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for file missing remotely, got %v", err)
	}
}

func TestCopyRequiresStorage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	item := newWorkItem(t, cfg, "UP001234-001")

	copyOp := itemops.NewCopy(cfg, nil)
	if _, err := copyOp.Execute(context.Background(), item); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for unmounted storage, got %v", err)
	}
	if health := copyOp.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy copy without storage")
	}
}

func TestNewRegistryCoversGraph(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	registry := itemops.NewRegistry(cfg, nil)
	for _, derivatives := range []bool{true, false} {
		if err := registry.Covers(pipeline.NewGraph(derivatives)); err != nil {
			t.Fatalf("registry missing operation: %v", err)
		}
	}
}
