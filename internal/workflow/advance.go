package workflow

import (
	"context"
	"errors"

	"scanpipe/internal/logging"
	"scanpipe/internal/pipeline"
	"scanpipe/internal/scheduler"
)

// AdvanceReport summarizes one Advance call.
type AdvanceReport struct {
	Rounds    int
	Succeeded int
	Failures  []ItemFailure
}

// ItemFailure records the run that took an item out of an Advance.
type ItemFailure struct {
	ItemID     int64
	Identifier string
	Task       pipeline.Task
	Err        error
}

// Advance dispatches the next eligible task for every idle item of the open
// project, waits for the round to finish, and repeats until nothing is
// eligible. An item whose run fails is left out of later rounds; the other
// items keep going.
func (c *Controller) Advance(ctx context.Context) (AdvanceReport, error) {
	var report AdvanceReport
	excluded := make(map[int64]bool)

	for {
		rows, err := c.Rows(ctx)
		if err != nil {
			return report, err
		}

		type pending struct {
			row    Row
			task   pipeline.Task
			result <-chan scheduler.RunResult
		}
		var round []pending
		for _, row := range rows {
			if excluded[row.ItemID] || row.Trigger == "" {
				continue
			}
			result, err := c.RequestTask(ctx, row.ItemID, row.Trigger)
			if errors.Is(err, scheduler.ErrItemBusy) {
				continue
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return report, ctxErr
				}
				excluded[row.ItemID] = true
				report.Failures = append(report.Failures, ItemFailure{ItemID: row.ItemID, Identifier: row.Identifier, Task: row.Trigger, Err: err})
				continue
			}
			round = append(round, pending{row: row, task: row.Trigger, result: result})
		}
		if len(round) == 0 {
			break
		}
		report.Rounds++

		for _, p := range round {
			var res scheduler.RunResult
			select {
			case res = <-p.result:
			case <-ctx.Done():
				return report, ctx.Err()
			}
			if res.Err != nil {
				excluded[p.row.ItemID] = true
				report.Failures = append(report.Failures, ItemFailure{ItemID: p.row.ItemID, Identifier: p.row.Identifier, Task: p.task, Err: res.Err})
				continue
			}
			report.Succeeded++
		}
	}

	c.logger.Info("advance finished",
		logging.Int("rounds", report.Rounds),
		logging.Int("succeeded", report.Succeeded),
		logging.Int("failed", len(report.Failures)),
	)
	return report, nil
}
