// Package workflow implements the four ways the engine reconciles the
// Store against the upstream catalog: Full, Incremental, Retry, and Fix.
// All four share one prelude (schema, Fetcher, Store session, Batch
// Processor) and one epilogue (flush, then a search-index alignment
// call), differing only in how they choose which ids to process.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/assembler"
	"github.com/billy3321/ivod-engine/internal/batch"
	"github.com/billy3321/ivod-engine/internal/index"
	"github.com/billy3321/ivod-engine/internal/ledger"
	"github.com/billy3321/ivod-engine/internal/metrics"
	"github.com/billy3321/ivod-engine/internal/model"
	"github.com/billy3321/ivod-engine/internal/store"
)

// Result summarizes one workflow run.
type Result struct {
	Processed int
	Errored   int
}

// Fetcher is the subset of fetcher.Fetcher every workflow needs,
// narrowed to an interface so tests can substitute a fake instead of
// standing up an httptest.Server per workflow scenario.
type Fetcher interface {
	ListIDs(ctx context.Context, date time.Time) ([]int64, error)
	GetRecord(ctx context.Context, id int64) (json.RawMessage, error)
	GetSpeech(ctx context.Context, id int64) (string, error)
}

// Engine wires together the components a workflow needs. One Engine is
// built per CLI invocation and discarded afterward; it holds no state
// across runs.
type Engine struct {
	Store   store.Store
	Fetch   Fetcher
	Ledger  *ledger.Ledger
	Aligner *index.Aligner
	Log     zerolog.Logger
}

// New builds an Engine. aligner may be nil, in which case alignment is
// skipped with a log line (equivalent to a disabled Aligner).
func New(st store.Store, f Fetcher, l *ledger.Ledger, a *index.Aligner, log zerolog.Logger) *Engine {
	return &Engine{Store: st, Fetch: f, Ledger: l, Aligner: a, Log: log.With().Str("component", "workflow").Logger()}
}

// fetchAndAssemble retrieves one record's raw document and turns it into
// a model.Record, carrying over existing retry counters. It never
// returns a (*model.Record)(nil), nil pair.
func (e *Engine) fetchAndAssemble(ctx context.Context, id int64, existing *model.Record) (*model.Record, error) {
	raw, err := e.Fetch.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := assembler.Assemble(ctx, id, raw, existing, e.Fetch)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// align runs the Index Aligner over sel, if one is configured. Failure
// or unavailability of the index is logged but never fails the
// workflow.
func (e *Engine) align(ctx context.Context, sel index.Selector) {
	if e.Aligner == nil {
		e.Log.Info().Msg("no index aligner configured, skipping alignment")
		return
	}
	res, err := e.Aligner.Align(ctx, e.Store, sel)
	if err != nil {
		e.Log.Warn().Err(err).Msg("index alignment failed")
		return
	}
	e.Log.Info().Int("updated", res.Updated).Int("skipped", res.Skipped).Int("errors", res.Errors).Msg("index alignment complete")
	metrics.AlignUpdatedTotal.Add(float64(res.Updated))
	metrics.AlignSkippedTotal.Add(float64(res.Skipped))
	metrics.AlignErrorsTotal.Add(float64(res.Errors))
}

// reportBatchMetrics copies a finished Processor's counters into the
// admin metrics surface, labeled by workflow name.
func reportBatchMetrics(workflow string, proc *batch.Processor) {
	processed, errored := proc.Stats()
	committed, rolledBack := proc.TxnStats()
	metrics.RecordsProcessedTotal.WithLabelValues(workflow).Add(float64(processed))
	metrics.RecordsFailedTotal.WithLabelValues(workflow).Add(float64(errored))
	metrics.BatchesCommittedTotal.WithLabelValues(workflow).Add(float64(committed))
	metrics.BatchesRolledBackTotal.WithLabelValues(workflow).Add(float64(rolledBack))
}

// newProcessor builds a batch.Processor over the Engine's Store with the
// given group size and commit interval.
func (e *Engine) newProcessor(batchSize, commitInterval int) *batch.Processor {
	return batch.New(e.Store, batchSize, commitInterval, e.Log)
}

// phaseWorkflowLabel maps a ledger Phase to the workflow label
// reportBatchMetrics uses, so RecordsFailedTotal accumulates under one
// consistent label vocabulary regardless of which failure path
// incremented it.
var phaseWorkflowLabel = map[ledger.Phase]string{
	ledger.PhaseProcessing:  "full",
	ledger.PhaseIncremental: "incremental",
	ledger.PhaseRetry:       "retry",
	ledger.PhaseFixRetry:    "fix",
	ledger.PhaseManualFix:   "fix",
	ledger.PhaseGeneral:     "general",
}

// recordFailure logs a per-record error and writes it to the Failure
// Ledger, as every workflow's failure semantics require (§4.F).
func (e *Engine) recordFailure(id int64, phase ledger.Phase, err error) {
	e.Log.Warn().Err(err).Int64("ivod_id", id).Str("phase", string(phase)).Msg("record processing failed")
	metrics.RecordsFailedTotal.WithLabelValues(phaseWorkflowLabel[phase]).Inc()
	if e.Ledger == nil {
		return
	}
	if lerr := e.Ledger.Append(id, phase); lerr != nil {
		e.Log.Error().Err(lerr).Int64("ivod_id", id).Msg("failed to write to failure ledger")
	}
}

// PreludeError marks a failure that occurred before any record was
// fetched (schema creation, missing configuration). Workflows return
// this failure before touching the network.
type PreludeError struct {
	Op  string
	Err error
}

func (e *PreludeError) Error() string { return fmt.Sprintf("workflow: prelude failed (%s): %v", e.Op, e.Err) }
func (e *PreludeError) Unwrap() error  { return e.Err }

func (e *Engine) ensureSchema(ctx context.Context) error {
	if err := e.Store.EnsureSchema(ctx); err != nil {
		return &PreludeError{Op: "ensure_schema", Err: err}
	}
	return nil
}
