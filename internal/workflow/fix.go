package workflow

import (
	"context"

	"github.com/billy3321/ivod-engine/internal/batch"
	"github.com/billy3321/ivod-engine/internal/index"
	"github.com/billy3321/ivod-engine/internal/ledger"
)

const fixBatchSize = 30

// Fix re-fetches exactly the given ids. If fromLedger is true, a
// successfully-reassembled id is removed from the Failure Ledger; a
// failure is appended with phase fix_retry regardless of source. ids is
// expected to already be deduplicated (ledger.ReadIDs does this).
func (e *Engine) Fix(ctx context.Context, commitInterval int, ids []int64, fromLedger bool) (Result, error) {
	if len(ids) == 0 {
		return Result{}, nil
	}
	if err := e.ensureSchema(ctx); err != nil {
		return Result{}, err
	}

	proc := e.newProcessor(fixBatchSize, commitInterval)
	var succeeded []int64

	for _, id := range ids {
		select {
		case <-ctx.Done():
			return e.finishFix(ctx, proc, succeeded, fromLedger, ctx.Err())
		default:
		}

		existing, err := e.Store.Get(ctx, id)
		if err != nil {
			e.recordFailure(id, ledger.PhaseFixRetry, err)
			continue
		}
		rec, err := e.fetchAndAssemble(ctx, id, existing)
		if err != nil {
			e.recordFailure(id, ledger.PhaseFixRetry, err)
			continue
		}

		if err := proc.Add(ctx, rec); err != nil {
			return e.finishFix(ctx, proc, succeeded, fromLedger, err)
		}
		succeeded = append(succeeded, id)
	}
	return e.finishFix(ctx, proc, succeeded, fromLedger, nil)
}

// finishFix flushes the batch and, only once that final commit has
// durably landed, removes each successfully-reassembled id from the
// Failure Ledger. Removing earlier (e.g. inside the per-id loop) would
// make an id unrecoverable if the trailing Flush later failed: its
// Failure Ledger entry would already be gone even though its record was
// never committed.
func (e *Engine) finishFix(ctx context.Context, proc *batch.Processor, succeeded []int64, fromLedger bool, runErr error) (Result, error) {
	flushErr := proc.Flush(ctx)
	if flushErr != nil && runErr == nil {
		runErr = flushErr
	}
	processed, errored := proc.Stats()
	res := Result{Processed: processed, Errored: errored}
	reportBatchMetrics("fix", proc)
	if runErr != nil {
		return res, runErr
	}
	if fromLedger && e.Ledger != nil {
		for _, id := range succeeded {
			if rerr := e.Ledger.Remove(id); rerr != nil {
				e.Log.Error().Err(rerr).Int64("ivod_id", id).Msg("failed to remove id from failure ledger")
			}
		}
	}
	if len(succeeded) > 0 {
		e.align(ctx, index.Selector{IDs: succeeded})
	}
	return res, nil
}
