package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"scanpipe/internal/logging"
	"scanpipe/internal/pipeline"
	"scanpipe/internal/preflight"
	"scanpipe/internal/store"
	"scanpipe/internal/tasks"
	"scanpipe/internal/workflow"
)

// syncWriter serializes event lines from concurrent runs.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

// eventPrinter renders lifecycle events as operator log lines.
func eventPrinter(out io.Writer) tasks.Sink {
	w := &syncWriter{w: out}
	return tasks.SinkFunc(func(evt tasks.Event) {
		switch evt.Kind {
		case tasks.EventStarted, tasks.EventSuccess:
			w.printf("%s\n", evt.Message)
		case tasks.EventError:
			w.printf("error: %s: %s\n", evt.Identifier, evt.Message)
		}
	})
}

// printRecentErrors lists the latest task error records from hub.
func printRecentErrors(out io.Writer, hub *logging.StreamHub, limit int) {
	events, _ := hub.Tail(0)
	var lines []string
	for i := len(events) - 1; i >= 0 && len(lines) < limit; i-- {
		evt := events[i]
		if evt.Fields["event_type"] != "task_error" {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s %s %s: %s",
			evt.Timestamp.Local().Format("15:04:05"), evt.Identifier, evt.Task, evt.Message))
	}
	if len(lines) == 0 {
		return
	}
	slices.Reverse(lines)
	fmt.Fprintln(out, "Recent errors:")
	fmt.Fprintln(out, strings.Join(lines, "\n"))
}

func warnPreflight(cmd *cobra.Command, ctx *commandContext) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return
	}
	for _, result := range preflight.Failed(preflight.RunAll(commandCtx(cmd), cfg)) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s\n", result.Name, result.Detail)
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <collection_id> <identifier> [task]",
		Short: "Run an item's next task, or the named task when it is the next one",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			warnPreflight(cmd, ctx)
			opts := []workflow.Option{workflow.WithLogSink(eventPrinter(cmd.OutOrStdout()))}
			return ctx.withController(commandCtx(cmd), args[0], opts, func(ctrl *workflow.Controller, st *store.Store) error {
				_, item, err := lookupItem(commandCtx(cmd), st, args[0], args[1])
				if err != nil {
					return err
				}
				task, err := resolveTask(ctrl, item, args[2:])
				if err != nil {
					return err
				}
				result, err := ctrl.RequestTask(commandCtx(cmd), item.ID, task)
				if err != nil {
					return err
				}
				res := <-result
				if res.Err != nil {
					return fmt.Errorf("%s failed for %s: %w", task, item.Identifier, res.Err)
				}
				return nil
			})
		},
	}
}

func resolveTask(ctrl *workflow.Controller, item *store.Item, args []string) (pipeline.Task, error) {
	if len(args) > 0 {
		return pipeline.ParseTask(args[0])
	}
	row := workflow.NewRow(ctrl.Graph(), item)
	if row.Trigger == "" {
		return "", fmt.Errorf("%s has completed every task", item.Identifier)
	}
	return row.Trigger, nil
}

func newAdvanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "advance <collection_id>",
		Short: "Run every item of a project as far as it will go",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			warnPreflight(cmd, ctx)
			out := cmd.OutOrStdout()
			opts := []workflow.Option{workflow.WithLogSink(eventPrinter(out))}
			return ctx.withController(commandCtx(cmd), args[0], opts, func(ctrl *workflow.Controller, _ *store.Store) error {
				report, err := ctrl.Advance(commandCtx(cmd))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Advanced %s: %d task runs in %d rounds\n", args[0], report.Succeeded, report.Rounds)
				if len(report.Failures) == 0 {
					return nil
				}
				for _, failure := range report.Failures {
					fmt.Fprintf(out, "  %s stopped at %s: %v\n", failure.Identifier, failure.Task, failure.Err)
				}
				printRecentErrors(out, ctx.streamHub(), len(report.Failures))
				return fmt.Errorf("%d item(s) failed", len(report.Failures))
			})
		},
	}
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <collection_id> <identifier>",
		Short: "Clear an item's progress so it starts again from the first task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withController(commandCtx(cmd), args[0], nil, func(ctrl *workflow.Controller, st *store.Store) error {
				_, item, err := lookupItem(commandCtx(cmd), st, args[0], args[1])
				if err != nil {
					return err
				}
				if err := ctrl.RequestReset(commandCtx(cmd), item.ID); err != nil {
					return fmt.Errorf("reset %s: %w", item.Identifier, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %s; next task is %s\n", item.Identifier, ctrl.Graph().First())
				return nil
			})
		},
	}
}
