package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"scanpipe/internal/config"
	"scanpipe/internal/store"
)

func newProjectsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List projects with item and scan totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				projects, err := st.ListAllProjects(commandCtx(cmd))
				if err != nil {
					return err
				}
				if !asJSON && len(projects) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No projects registered")
					return nil
				}
				return writeOutput(cmd, asJSON, projects, func() string {
					return renderProjects(projects)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func renderProjects(projects []store.ProjectSummary) string {
	rows := make([][]string, 0, len(projects))
	var items, completed, scans int
	for _, p := range projects {
		items += p.TotalItems
		completed += p.CompletedItems
		scans += p.TotalScans
		rows = append(rows, []string{
			p.CollectionID,
			p.Name,
			strconv.Itoa(p.TotalItems),
			strconv.Itoa(p.CompletedItems),
			strconv.Itoa(p.TotalScans),
		})
	}
	return renderTable(
		[]string{"Collection", "Name", "Items", "Completed", "Scans"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
		"Total", "", strconv.Itoa(items), strconv.Itoa(completed), strconv.Itoa(scans),
	)
}

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}
	projectCmd.AddCommand(newProjectAddCommand(ctx))
	return projectCmd
}

func newProjectAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <collection_id> <name> <project_dir>",
		Short: "Register a project; relative directories resolve under output_dir",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				dir, err := cfg.ResolveProjectDir(args[2])
				if err != nil {
					return err
				}
				project, err := st.CreateProject(commandCtx(cmd), args[0], args[1], dir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added project %s (%s) at %s\n", project.CollectionID, project.Name, project.ProjectDir)
				return nil
			})
		},
	}
}

func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
