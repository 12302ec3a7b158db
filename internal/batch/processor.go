// Package batch buffers assembled records and commits them to a Store in
// fixed-size groups, committing the underlying transaction every N groups
// and rolling back on failure.
//
// This differs from a fire-and-forget buffer: Add never returns until any
// buffered group it triggers has been durably upserted against the open
// transaction, and Flush's caller learns synchronously whether the final
// commit succeeded.
package batch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/model"
	"github.com/billy3321/ivod-engine/internal/store"
)

// Processor buffers records and commits them to a Store in groups.
type Processor struct {
	store          store.Store
	batchSize      int
	commitInterval int
	log            zerolog.Logger

	buffer             []*model.Record
	current            store.Batch
	batchesSinceCommit int
	processed          int
	errored            int
	committedTxns      int
	rolledBackTxns     int
}

// New builds a Processor. batchSize and commitInterval must be positive;
// callers validate this via config.Config.Validate before construction.
func New(st store.Store, batchSize, commitInterval int, log zerolog.Logger) *Processor {
	return &Processor{
		store:          st,
		batchSize:      batchSize,
		commitInterval: commitInterval,
		log:            log.With().Str("component", "batch").Logger(),
	}
}

// Add buffers rec. Once the buffer reaches batchSize, it is upserted into
// the current open transaction; every commitInterval groups, that
// transaction commits. A returned error means the open transaction (and
// everything upserted into it since the last commit) was rolled back.
func (p *Processor) Add(ctx context.Context, rec *model.Record) error {
	p.buffer = append(p.buffer, rec)
	if len(p.buffer) < p.batchSize {
		return nil
	}
	return p.processBuffered(ctx)
}

func (p *Processor) processBuffered(ctx context.Context) error {
	if p.current == nil {
		b, err := p.store.BeginBatch(ctx)
		if err != nil {
			return fmt.Errorf("batch: begin transaction: %w", err)
		}
		p.current = b
	}

	group := p.buffer
	p.buffer = nil

	for _, rec := range group {
		if err := p.current.Upsert(ctx, rec); err != nil {
			p.current.Rollback(ctx)
			p.current = nil
			p.batchesSinceCommit = 0
			p.errored += len(group)
			p.rolledBackTxns++
			return fmt.Errorf("batch: upsert ivod %d failed, transaction rolled back: %w", rec.IVODID, err)
		}
		p.processed++
	}

	p.batchesSinceCommit++
	p.log.Info().Int("group_size", len(group)).Int("batches_since_commit", p.batchesSinceCommit).Msg("batch group upserted")

	if p.batchesSinceCommit >= p.commitInterval {
		return p.commitCurrent(ctx)
	}
	return nil
}

func (p *Processor) commitCurrent(ctx context.Context) error {
	if p.current == nil {
		return nil
	}
	b := p.current
	p.current = nil
	n := p.batchesSinceCommit
	p.batchesSinceCommit = 0

	if err := b.Commit(ctx); err != nil {
		b.Rollback(ctx)
		p.rolledBackTxns++
		return fmt.Errorf("batch: commit failed, transaction rolled back: %w", err)
	}
	p.committedTxns++
	p.log.Info().Int("batches", n).Int("total_processed", p.processed).Msg("batch commit")
	return nil
}

// Flush processes any residual buffered records and performs the final
// commit. Always call Flush at the end of a workflow run, even if every
// Add call returned nil — there may be an uncommitted group or an
// in-progress transaction still open.
func (p *Processor) Flush(ctx context.Context) error {
	if len(p.buffer) > 0 {
		if err := p.processBuffered(ctx); err != nil {
			return err
		}
	}
	return p.commitCurrent(ctx)
}

// Stats returns the number of records successfully upserted and the
// number that failed (and were rolled back) since the Processor was
// constructed.
func (p *Processor) Stats() (processed, errored int) {
	return p.processed, p.errored
}

// TxnStats returns the number of transactions committed and rolled back
// since construction. Exposed for the admin metrics surface.
func (p *Processor) TxnStats() (committed, rolledBack int) {
	return p.committedTxns, p.rolledBackTxns
}
