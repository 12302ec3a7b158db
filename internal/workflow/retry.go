package workflow

import (
	"context"
	"sort"
	"time"

	"github.com/billy3321/ivod-engine/internal/batch"
	"github.com/billy3321/ivod-engine/internal/index"
	"github.com/billy3321/ivod-engine/internal/ledger"
	"github.com/billy3321/ivod-engine/internal/metrics"
	"github.com/billy3321/ivod-engine/internal/model"
)

// retryItem tags a failed row with which transcript kind made it
// eligible for retry; a row can appear twice, once per failing kind.
type retryItem struct {
	rec  *model.Record
	kind model.TranscriptKind
}

// breakerState is the per-kind circuit breaker state for one Retry run.
type breakerState struct {
	lastDate    time.Time
	consecutive int
	stopped     bool
}

// Retry re-fetches every row currently marked failed for either
// transcript kind, ordered by (date, id), stopping each kind
// independently after three consecutive failing calendar dates.
func (e *Engine) Retry(ctx context.Context, batchSize, commitInterval int) (Result, error) {
	if err := e.ensureSchema(ctx); err != nil {
		return Result{}, err
	}

	aiFailed, err := e.Store.QueryFailed(ctx, model.KindAI, 0)
	if err != nil {
		return Result{}, &PreludeError{Op: "query_failed_ai", Err: err}
	}
	lyFailed, err := e.Store.QueryFailed(ctx, model.KindLY, 0)
	if err != nil {
		return Result{}, &PreludeError{Op: "query_failed_ly", Err: err}
	}

	items := make([]retryItem, 0, len(aiFailed)+len(lyFailed))
	for _, rec := range aiFailed {
		items = append(items, retryItem{rec: rec, kind: model.KindAI})
	}
	for _, rec := range lyFailed {
		items = append(items, retryItem{rec: rec, kind: model.KindLY})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].rec.Date.Equal(items[j].rec.Date) {
			return items[i].rec.Date.Before(items[j].rec.Date)
		}
		return items[i].rec.IVODID < items[j].rec.IVODID
	})

	proc := e.newProcessor(batchSize, commitInterval)
	breakers := map[model.TranscriptKind]*breakerState{
		model.KindAI: {},
		model.KindLY: {},
	}
	var reprocessed []int64

	for _, item := range items {
		select {
		case <-ctx.Done():
			return e.finishRetry(ctx, proc, reprocessed, ctx.Err())
		default:
		}

		state := breakers[item.kind]
		if state.stopped {
			continue
		}

		id := item.rec.IVODID
		rec, err := e.fetchAndAssemble(ctx, id, item.rec)
		failed := err != nil
		if err != nil {
			e.recordFailure(id, ledger.PhaseRetry, err)
		} else {
			failed = rec.Failed(item.kind)
		}

		itemDate := item.rec.Date
		sameDate := !state.lastDate.IsZero() && itemDate.Equal(state.lastDate)
		switch {
		case failed && sameDate && state.consecutive > 0:
			// another failing item on a date already counted: one step per date
		case failed && (state.lastDate.IsZero() || itemDate.Sub(state.lastDate) <= 24*time.Hour):
			state.consecutive++
		default:
			state.consecutive = 1
		}
		state.lastDate = itemDate
		if state.consecutive >= 3 {
			state.stopped = true
			e.Log.Warn().Str("kind", string(item.kind)).Time("date", itemDate).Msg("retry circuit breaker tripped after three consecutive failing dates")
			metrics.CircuitBreakerStopsTotal.WithLabelValues(string(item.kind)).Inc()
		}
		if !failed {
			state.consecutive = 0
		}

		if err != nil {
			continue
		}

		if err := proc.Add(ctx, rec); err != nil {
			return e.finishRetry(ctx, proc, reprocessed, err)
		}
		reprocessed = append(reprocessed, id)
	}
	return e.finishRetry(ctx, proc, reprocessed, nil)
}

func (e *Engine) finishRetry(ctx context.Context, proc *batch.Processor, reprocessed []int64, runErr error) (Result, error) {
	if flushErr := proc.Flush(ctx); flushErr != nil && runErr == nil {
		runErr = flushErr
	}
	processed, errored := proc.Stats()
	res := Result{Processed: processed, Errored: errored}
	reportBatchMetrics("retry", proc)
	if runErr != nil {
		return res, runErr
	}
	if len(reprocessed) > 0 {
		e.align(ctx, index.Selector{IDs: reprocessed})
	}
	return res, nil
}
