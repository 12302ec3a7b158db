package workflow

import (
	"context"
	"time"

	"github.com/billy3321/ivod-engine/internal/batch"
	"github.com/billy3321/ivod-engine/internal/index"
	"github.com/billy3321/ivod-engine/internal/ledger"
)

// Full traverses every date in [start,end], fetching and assembling every
// id the catalog lists for that date and upserting it. start and end are
// clamped per ClampRange before traversal begins.
func (e *Engine) Full(ctx context.Context, batchSize, commitInterval int, start, end time.Time) (Result, error) {
	if err := e.ensureSchema(ctx); err != nil {
		return Result{}, err
	}
	start, end = ClampRange(start, end, e.Log)

	proc := e.newProcessor(batchSize, commitInterval)

	for _, date := range dateRange(start, end) {
		ids, err := e.Fetch.ListIDs(ctx, date)
		if err != nil {
			e.Log.Warn().Err(err).Time("date", date).Msg("listing ids for date failed, skipping date")
			continue
		}
		for _, id := range ids {
			select {
			case <-ctx.Done():
				return e.finishFull(ctx, proc, ctx.Err())
			default:
			}

			existing, err := e.Store.Get(ctx, id)
			if err != nil {
				e.recordFailure(id, ledger.PhaseProcessing, err)
				continue
			}
			rec, err := e.fetchAndAssemble(ctx, id, existing)
			if err != nil {
				e.recordFailure(id, ledger.PhaseProcessing, err)
				continue
			}
			if err := proc.Add(ctx, rec); err != nil {
				return e.finishFull(ctx, proc, err)
			}
		}
	}
	return e.finishFull(ctx, proc, nil)
}

func (e *Engine) finishFull(ctx context.Context, proc *batch.Processor, runErr error) (Result, error) {
	if flushErr := proc.Flush(ctx); flushErr != nil && runErr == nil {
		runErr = flushErr
	}
	processed, errored := proc.Stats()
	res := Result{Processed: processed, Errored: errored}
	reportBatchMetrics("full", proc)
	if runErr != nil {
		return res, runErr
	}
	e.align(ctx, index.Selector{Full: true})
	return res, nil
}
