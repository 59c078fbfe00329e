package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"scanpipe/internal/batch"
	"scanpipe/internal/config"
	"scanpipe/internal/itemops"
	"scanpipe/internal/store"
)

//nolint:staticcheck // operator-facing message
var errNoAction = errors.New("Please supply an action.")

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var derivatives bool

	cmd := &cobra.Command{
		Use:   "batch <collection_id>",
		Short: "Run one task across a whole project without the interactive controller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !derivatives {
				return errNoAction
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				logger := ctx.logger()
				out := cmd.OutOrStdout()
				runner := batch.NewRunner(cfg, st, itemops.NewRegistry(cfg, logger), out, logger)
				report, err := runner.RunDerivatives(commandCtx(cmd), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Generated derivatives for %d item(s) in %s (%d skipped)\n",
					len(report.Processed), report.CollectionID, report.Skipped)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&derivatives, "derivatives", "d", false, "Generate derivatives for every renamed item")
	return cmd
}
