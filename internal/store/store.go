// Package store persists the canonical model.Record across three
// interchangeable backends (PostgreSQL, MySQL, SQLite), hiding their
// dialect differences behind one Store interface.
package store

import (
	"context"
	"time"

	"github.com/billy3321/ivod-engine/internal/model"
)

// FailedKind selects which transcript's failure state QueryFailed filters
// on.
type FailedKind = model.TranscriptKind

// Store is implemented once per backend. Every write stamps
// model.Record.LastUpdated unless the call documents otherwise (Restore
// preserves the backed-up value).
type Store interface {
	// EnsureSchema creates the table if absent. Idempotent.
	EnsureSchema(ctx context.Context) error

	// Get returns the record for id, or (nil, nil) if absent.
	Get(ctx context.Context, id int64) (*model.Record, error)

	// Upsert creates or overwrites the record, keyed by IVODID.
	Upsert(ctx context.Context, rec *model.Record) error

	// UpsertPreservingTimestamp is like Upsert but writes rec.LastUpdated
	// verbatim instead of stamping the current time. Used only by Restore.
	UpsertPreservingTimestamp(ctx context.Context, rec *model.Record) error

	// QueryFailed returns records whose given transcript kind is marked
	// failed, ordered by (date asc, id asc). maxRetries, if > 0, excludes
	// rows whose corresponding retry counter has reached or exceeded it;
	// pass 0 for circuit-breaker-only selection (see workflow.Retry).
	QueryFailed(ctx context.Context, kind FailedKind, maxRetries int) ([]*model.Record, error)

	// QueryRecentlyUpdated returns records whose LastUpdated is within
	// window of now.
	QueryRecentlyUpdated(ctx context.Context, window time.Duration) ([]*model.Record, error)

	// QueryAll returns every record, ordered by id. Used by Backup and by
	// the index aligner's full selector.
	QueryAll(ctx context.Context) ([]*model.Record, error)

	// QueryByIDs returns the records matching the given ids, in
	// unspecified order; missing ids are simply absent from the result.
	QueryByIDs(ctx context.Context, ids []int64) ([]*model.Record, error)

	// DeleteAll removes every row. Only ever called by Restore.
	DeleteAll(ctx context.Context) error

	// Count returns the total row count.
	Count(ctx context.Context) (int64, error)

	// BeginBatch opens a transaction-scoped batch: every Upsert made
	// through the returned Batch is visible only after Commit, and
	// Rollback discards them all. The Batch Processor uses this to give
	// "commit every N batches" real rollback semantics.
	BeginBatch(ctx context.Context) (Batch, error)

	// Close releases any held connections.
	Close() error
}

// Batch is a transaction-scoped set of upserts.
type Batch interface {
	Upsert(ctx context.Context, rec *model.Record) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
