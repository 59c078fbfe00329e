package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"scanpipe/internal/config"
	"scanpipe/internal/itemops"
	"scanpipe/internal/preflight"
	"scanpipe/internal/runlock"
	"scanpipe/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show workspace, database, and tool readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				reqCtx := commandCtx(cmd)

				var lines []string
				lines = append(lines, renderSectionHeader("Workspace", colorize)...)
				lines = append(lines, workspaceLockLine(cfg, colorize))
				for _, result := range preflight.RunAll(reqCtx, cfg) {
					lines = append(lines, preflightStatusLine(result, colorize))
				}
				lines = append(lines, renderStatusLine("Derivatives", statusInfo, derivativesDetail(cfg), colorize))

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Database", colorize)...)
				health, err := st.CheckHealth(reqCtx)
				switch {
				case err != nil:
					lines = append(lines, renderStatusLine("Database", statusError, err.Error(), colorize))
				case !health.IntegrityCheck:
					lines = append(lines, renderStatusLine("Database", statusWarn, health.Error, colorize))
				default:
					lines = append(lines, renderStatusLine("Database", statusOK,
						fmt.Sprintf("schema v%d at %s", health.SchemaVersion, health.DBPath), colorize))
				}
				lines = append(lines, renderStatusLine("Projects", statusInfo, humanize.Comma(int64(health.TotalProjects)), colorize))
				lines = append(lines, renderStatusLine("Items", statusInfo, humanize.Comma(int64(health.TotalItems)), colorize))

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Tasks", colorize)...)
				for _, h := range itemops.NewRegistry(cfg, ctx.logger()).Health(reqCtx) {
					kind, detail := statusOK, "Ready"
					if !h.Ready {
						kind, detail = statusWarn, h.Detail
					}
					lines = append(lines, renderStatusLine(h.Task.Label(), kind, detail, colorize))
				}

				fmt.Fprintln(out, strings.Join(lines, "\n"))
				return nil
			})
		},
	}
}

func workspaceLockLine(cfg *config.Config, colorize bool) string {
	lock, err := runlock.Acquire(cfg.LockPath())
	if err != nil {
		return renderStatusLine("Controller", statusInfo, "Running (workspace locked)", colorize)
	}
	_ = lock.Release()
	return renderStatusLine("Controller", statusInfo, "Not running", colorize)
}

func preflightStatusLine(result preflight.Result, colorize bool) string {
	if result.Passed {
		return renderStatusLine(result.Name, statusOK, result.Detail, colorize)
	}
	return renderStatusLine(result.Name, statusError, result.Detail, colorize)
}

func derivativesDetail(cfg *config.Config) string {
	if !cfg.Pipeline.GenerateDerivatives {
		return "Disabled"
	}
	return fmt.Sprintf("%s via %s", cfg.Pipeline.DerivativeType, cfg.DerivativeBinary())
}
