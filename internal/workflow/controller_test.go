package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scanpipe/internal/config"
	"scanpipe/internal/itemops"
	"scanpipe/internal/logging"
	"scanpipe/internal/pipeline"
	"scanpipe/internal/runlock"
	"scanpipe/internal/scheduler"
	"scanpipe/internal/services"
	"scanpipe/internal/store"
	"scanpipe/internal/tasks"
	"scanpipe/internal/testsupport"
	"scanpipe/internal/workflow"
)

func stubRegistry(overrides map[pipeline.Task]tasks.Operation) *tasks.Registry {
	registry := tasks.NewRegistry()
	for _, task := range pipeline.AllTasks() {
		task := task
		registry.Register(task, tasks.OperationFunc(func(context.Context, tasks.WorkItem) (tasks.Outcome, error) {
			return tasks.Outcome{Message: string(task) + " ok"}, nil
		}))
	}
	for task, op := range overrides {
		registry.Register(task, op)
	}
	return registry
}

func startController(t *testing.T, cfg *config.Config, st *store.Store, registry *tasks.Registry, opts ...workflow.Option) *workflow.Controller {
	t.Helper()
	ctrl := workflow.NewController(cfg, st, registry, logging.NewNop(), opts...)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(ctrl.Stop)
	return ctrl
}

func await(t *testing.T, ch <-chan scheduler.RunResult) scheduler.RunResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run result")
		return scheduler.RunResult{}
	}
}

func TestRenameUpdatesRowsAndStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	project, items := testsupport.SeedProject(t, st, cfg, "UP001234", "UP001234-001")
	testsupport.WriteScans(t, filepath.Join(project.ProjectDir, items[0].Identifier), 12)

	ctrl := startController(t, cfg, st, itemops.NewRegistry(cfg, logging.NewNop()))
	ctx := context.Background()
	if _, err := ctrl.OpenProject(ctx, "UP001234"); err != nil {
		t.Fatalf("OpenProject: %v", err)
	}

	rows, err := ctrl.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 1 || rows[0].Trigger != pipeline.TaskRename {
		t.Fatalf("expected rename trigger on fresh item, got %+v", rows)
	}
	if rows[0].Display != "Letters UP001234-001, 1901-1905" {
		t.Fatalf("unexpected display string %q", rows[0].Display)
	}

	result, err := ctrl.RequestTask(ctx, items[0].ID, pipeline.TaskRename)
	if err != nil {
		t.Fatalf("RequestTask: %v", err)
	}
	if res := await(t, result); res.Err != nil {
		t.Fatalf("rename failed: %v", res.Err)
	}

	rows, err = ctrl.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	row := rows[0]
	if row.PageCount != 12 || row.Trigger != pipeline.TaskCopy {
		t.Fatalf("unexpected row after rename: %+v", row)
	}
	if got := row.ProgressLabel(); got != "1 of 3 tasks complete" {
		t.Fatalf("ProgressLabel = %q", got)
	}

	status := ctrl.Status(ctx)
	if !status.Running || status.InFlight != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.LastRun == nil || status.LastRun.Task != pipeline.TaskRename || status.LastError != "" {
		t.Fatalf("expected last run rename without error, got %+v", status)
	}
	if !status.Database.DatabaseReadable || status.Database.TotalItems != 1 {
		t.Fatalf("unexpected database health: %+v", status.Database)
	}
	if len(status.TaskHealth) != len(pipeline.AllTasks()) {
		t.Fatalf("expected health for every task, got %+v", status.TaskHealth)
	}
	if status.Project == nil || status.Project.CollectionID != "UP001234" {
		t.Fatalf("expected open project in status, got %+v", status.Project)
	}
}

func TestSecondControllerIsLockedOut(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	startController(t, cfg, st, stubRegistry(nil))

	other := workflow.NewController(cfg, st, stubRegistry(nil), logging.NewNop())
	if err := other.Start(context.Background()); !errors.Is(err, runlock.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestStartRequiresEveryTask(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	registry := tasks.NewRegistry()
	registry.Register(pipeline.TaskRename, tasks.OperationFunc(func(context.Context, tasks.WorkItem) (tasks.Outcome, error) {
		return tasks.Outcome{}, nil
	}))

	ctrl := workflow.NewController(cfg, st, registry, logging.NewNop())
	if err := ctrl.Start(context.Background()); err == nil {
		ctrl.Stop()
		t.Fatal("expected start to fail with missing operations")
	}
}

func TestNavigationBlockedWhileRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	_, items := testsupport.SeedProject(t, st, cfg, "UP001234", "UP001234-001")
	testsupport.SeedProject(t, st, cfg, "UP009999", "UP009999-001")

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	registry := stubRegistry(map[pipeline.Task]tasks.Operation{
		pipeline.TaskRename: tasks.OperationFunc(func(ctx context.Context, _ tasks.WorkItem) (tasks.Outcome, error) {
			started <- struct{}{}
			select {
			case <-release:
				return tasks.Outcome{Message: "renamed"}, nil
			case <-ctx.Done():
				return tasks.Outcome{}, ctx.Err()
			}
		}),
	})
	ctrl := startController(t, cfg, st, registry)
	ctx := context.Background()
	if _, err := ctrl.OpenProject(ctx, "UP001234"); err != nil {
		t.Fatalf("OpenProject: %v", err)
	}

	result, err := ctrl.RequestTask(ctx, items[0].ID, pipeline.TaskRename)
	if err != nil {
		t.Fatalf("RequestTask: %v", err)
	}
	<-started

	if ctrl.CanNavigate() {
		t.Fatal("CanNavigate should be false while rename runs")
	}
	if err := ctrl.CloseProject(); !errors.Is(err, workflow.ErrNavigationBlocked) {
		t.Fatalf("CloseProject: expected ErrNavigationBlocked, got %v", err)
	}
	if _, err := ctrl.OpenProject(ctx, "UP009999"); !errors.Is(err, workflow.ErrNavigationBlocked) {
		t.Fatalf("OpenProject: expected ErrNavigationBlocked, got %v", err)
	}
	rows, err := ctrl.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if rows[0].State != scheduler.StateRunning || rows[0].Trigger != "" || rows[0].Running != pipeline.TaskRename {
		t.Fatalf("running row should expose no trigger: %+v", rows[0])
	}

	close(release)
	await(t, result)

	if err := ctrl.CloseProject(); err != nil {
		t.Fatalf("CloseProject after completion: %v", err)
	}
	if ctrl.Project() != nil {
		t.Fatal("expected no open project")
	}
	if _, err := ctrl.RequestTask(ctx, items[0].ID, pipeline.TaskCopy); !errors.Is(err, workflow.ErrNoProject) {
		t.Fatalf("expected ErrNoProject, got %v", err)
	}
}

func TestAdvanceIsFailSoft(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedProject(t, st, cfg, "UP001234", "UP001234-001", "UP001234-002", "UP001234-003")

	registry := stubRegistry(map[pipeline.Task]tasks.Operation{
		pipeline.TaskCopy: tasks.OperationFunc(func(_ context.Context, item tasks.WorkItem) (tasks.Outcome, error) {
			if item.Identifier == "UP001234-002" {
				return tasks.Outcome{}, services.Wrap(services.ErrConfiguration, "copy", "copy", "storage unavailable", nil)
			}
			return tasks.Outcome{Message: "copied"}, nil
		}),
	})
	ctrl := startController(t, cfg, st, registry)
	ctx := context.Background()
	if _, err := ctrl.OpenProject(ctx, "UP001234"); err != nil {
		t.Fatalf("OpenProject: %v", err)
	}

	report, err := ctrl.Advance(ctx)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if report.Rounds != 3 || report.Succeeded != 7 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Failures) != 1 || report.Failures[0].Identifier != "UP001234-002" || report.Failures[0].Task != pipeline.TaskCopy {
		t.Fatalf("unexpected failures: %+v", report.Failures)
	}

	rows, err := ctrl.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	for _, row := range rows {
		if row.Identifier == "UP001234-002" {
			if row.Complete() || row.Trigger != pipeline.TaskCopy || row.LastError == "" {
				t.Fatalf("failed item should wait on copy with an error: %+v", row)
			}
			continue
		}
		if !row.Complete() {
			t.Fatalf("expected %s complete, got %+v", row.Identifier, row)
		}
	}
	if status := ctrl.Status(ctx); !strings.Contains(status.LastError, "storage unavailable") {
		t.Fatalf("expected last error recorded, got %q", status.LastError)
	}
}

func TestEventsReachInjectedSinks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	_, items := testsupport.SeedProject(t, st, cfg, "UP001234", "UP001234-001")

	events := make(chan tasks.Event, 16)
	var callbacks []tasks.EventKind
	done := make(chan struct{})
	sink := tasks.SinkFunc(func(evt tasks.Event) {
		callbacks = append(callbacks, evt.Kind)
		if evt.Kind == tasks.EventFinished {
			close(done)
		}
	})
	hub := logging.NewStreamHub(64)

	ctrl := startController(t, cfg, st, stubRegistry(nil),
		workflow.WithLogChannel(events),
		workflow.WithLogSink(sink),
		workflow.WithLogHub(hub),
		workflow.WithWorkerCount(1),
	)
	ctx := context.Background()
	if _, err := ctrl.OpenProject(ctx, "UP001234"); err != nil {
		t.Fatalf("OpenProject: %v", err)
	}
	result, err := ctrl.RequestTask(ctx, items[0].ID, pipeline.TaskRename)
	if err != nil {
		t.Fatalf("RequestTask: %v", err)
	}
	await(t, result)
	<-done

	want := []tasks.EventKind{tasks.EventStarted, tasks.EventSuccess, tasks.EventFinished}
	for i, kind := range want {
		evt := <-events
		if evt.Kind != kind || evt.Identifier != "UP001234-001" {
			t.Fatalf("event %d = %+v, want %s", i, evt, kind)
		}
	}
	if len(callbacks) != len(want) {
		t.Fatalf("callback saw %v", callbacks)
	}

	tail, _ := hub.Tail(100)
	found := false
	for _, evt := range tail {
		if strings.Contains(evt.Message, "successfully finished renaming files for UP001234-001") {
			found = true
			if evt.CollectionID != "UP001234" {
				t.Fatalf("hub event missing collection id: %+v", evt)
			}
		}
	}
	if !found {
		t.Fatalf("success message not published to hub: %+v", tail)
	}

	logPath := filepath.Join(cfg.Paths.LogDir, "projects", "up001234-up001234-papers.log")
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read project log: %v", err)
	}
	if !strings.Contains(string(data), "renaming files for UP001234-001") {
		t.Fatalf("project log missing run events:\n%s", data)
	}
}

func TestRequestsOutsideOpenProject(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedProject(t, st, cfg, "UP001234", "UP001234-001")
	_, others := testsupport.SeedProject(t, st, cfg, "UP009999", "UP009999-001")

	ctrl := startController(t, cfg, st, stubRegistry(nil))
	ctx := context.Background()

	if _, err := ctrl.OpenProject(ctx, "UP000000"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown collection, got %v", err)
	}
	if _, err := ctrl.OpenProject(ctx, "UP001234"); err != nil {
		t.Fatalf("OpenProject: %v", err)
	}
	if _, err := ctrl.RequestTask(ctx, others[0].ID, pipeline.TaskRename); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign item, got %v", err)
	}
	if err := ctrl.RequestReset(ctx, others[0].ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign reset, got %v", err)
	}

	projects, err := ctrl.Projects(ctx)
	if err != nil {
		t.Fatalf("Projects: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("expected two projects, got %d", len(projects))
	}
}

func TestRequestsBeforeStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctrl := workflow.NewController(cfg, st, stubRegistry(nil), nil)

	if _, err := ctrl.OpenProject(context.Background(), "UP001234"); !errors.Is(err, workflow.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if !ctrl.CanNavigate() {
		t.Fatal("a stopped controller never blocks navigation")
	}
	ctrl.Stop()
}
