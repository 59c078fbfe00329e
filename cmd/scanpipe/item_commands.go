package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"scanpipe/internal/config"
	"scanpipe/internal/pipeline"
	"scanpipe/internal/services"
	"scanpipe/internal/store"
	"scanpipe/internal/workflow"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "items <collection_id>",
		Short: "List a project's items and their progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				project, err := st.ProjectByCollectionID(commandCtx(cmd), args[0])
				if err != nil {
					return err
				}
				if project == nil {
					return fmt.Errorf("%w: no project found in database for collection_id %s", services.ErrNotFound, args[0])
				}
				items, err := st.ItemsByProject(commandCtx(cmd), project.ID)
				if err != nil {
					return err
				}
				graph := pipeline.NewGraph(cfg.Pipeline.GenerateDerivatives)
				rows := make([]workflow.Row, 0, len(items))
				for _, item := range items {
					rows = append(rows, workflow.NewRow(graph, item))
				}
				if !asJSON && len(rows) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No items registered for %s\n", project.CollectionID)
					return nil
				}
				return writeOutput(cmd, asJSON, rows, func() string {
					return renderItemRows(rows)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func renderItemRows(rows []workflow.Row) string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		next := "-"
		if row.Trigger != "" {
			next = row.Trigger.Label()
		}
		out = append(out, []string{
			row.Identifier,
			row.Display,
			rowStateLabel(row),
			row.ProgressLabel(),
			strconv.Itoa(row.PageCount),
			next,
		})
	}
	return renderTable(
		[]string{"Identifier", "Description", "State", "Progress", "Pages", "Next"},
		out,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func newItemCommand(ctx *commandContext) *cobra.Command {
	itemCmd := &cobra.Command{
		Use:   "item",
		Short: "Manage items",
	}
	itemCmd.AddCommand(newItemAddCommand(ctx))
	return itemCmd
}

func newItemAddCommand(ctx *commandContext) *cobra.Command {
	var in store.NewItem
	cmd := &cobra.Command{
		Use:   "add <collection_id> <identifier>",
		Short: "Register an item under a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				project, err := st.ProjectByCollectionID(commandCtx(cmd), args[0])
				if err != nil {
					return err
				}
				if project == nil {
					return fmt.Errorf("%w: no project found in database for collection_id %s", services.ErrNotFound, args[0])
				}
				in.Identifier = args[1]
				item, err := st.CreateItem(commandCtx(cmd), project.ID, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added item %s (%s) to %s\n", item.Identifier, item.DisplayString(), project.CollectionID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "Item title")
	cmd.Flags().StringVar(&in.Dates, "dates", "", "Item date range")
	cmd.Flags().StringVar(&in.Box, "box", "", "Box number")
	cmd.Flags().StringVar(&in.Folder, "folder", "", "Folder number")
	cmd.Flags().StringVar(&in.URI, "uri", "", "Archival object URI")
	return cmd
}
