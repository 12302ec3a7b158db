package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/model"
	"github.com/billy3321/ivod-engine/internal/store"
)

type fakeBatch struct {
	upserted   []int64
	failOnID   int64
	committed  bool
	rolledBack bool
}

func (b *fakeBatch) Upsert(ctx context.Context, rec *model.Record) error {
	if b.failOnID != 0 && rec.IVODID == b.failOnID {
		return errors.New("simulated write failure")
	}
	b.upserted = append(b.upserted, rec.IVODID)
	return nil
}

func (b *fakeBatch) Commit(ctx context.Context) error   { b.committed = true; return nil }
func (b *fakeBatch) Rollback(ctx context.Context) error { b.rolledBack = true; return nil }

type fakeStore struct {
	store.Store
	batches  []*fakeBatch
	failOnID int64
}

func (s *fakeStore) BeginBatch(ctx context.Context) (store.Batch, error) {
	b := &fakeBatch{failOnID: s.failOnID}
	s.batches = append(s.batches, b)
	return b, nil
}

func rec(id int64) *model.Record { return &model.Record{IVODID: id} }

func TestProcessorCommitsEveryNGroups(t *testing.T) {
	fs := &fakeStore{}
	p := New(fs, 2, 2, zerolog.Nop())
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3, 4} {
		if err := p.Add(ctx, rec(id)); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
	}

	if len(fs.batches) != 1 {
		t.Fatalf("expected 1 transaction across 2 groups (commit_interval=2), got %d", len(fs.batches))
	}
	if !fs.batches[0].committed {
		t.Error("expected transaction to be committed after 2 groups")
	}
	processed, errored := p.Stats()
	if processed != 4 || errored != 0 {
		t.Errorf("Stats = %d/%d, want 4/0", processed, errored)
	}
}

func TestProcessorFlushCommitsResidual(t *testing.T) {
	fs := &fakeStore{}
	p := New(fs, 10, 5, zerolog.Nop())
	ctx := context.Background()

	p.Add(ctx, rec(1))
	p.Add(ctx, rec(2))

	if len(fs.batches) != 0 {
		t.Fatal("no group should have been processed before batchSize reached")
	}

	if err := p.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(fs.batches) != 1 || !fs.batches[0].committed {
		t.Error("Flush should process the residual buffer and commit")
	}
}

func TestProcessorRollsBackOnUpsertFailure(t *testing.T) {
	fs := &fakeStore{failOnID: 2}
	p := New(fs, 1, 1, zerolog.Nop())
	ctx := context.Background()

	if err := p.Add(ctx, rec(1)); err != nil {
		t.Fatalf("Add(1): %v", err)
	}
	if err := p.Add(ctx, rec(2)); err == nil {
		t.Fatal("expected error from failing upsert")
	}
	if err := p.Add(ctx, rec(3)); err != nil {
		t.Fatalf("Add(3) after rollback: %v", err)
	}

	if len(fs.batches) != 3 {
		t.Fatalf("expected a fresh transaction per group, got %d batches", len(fs.batches))
	}
	if !fs.batches[0].committed {
		t.Error("expected first transaction (id 1) to commit")
	}
	if !fs.batches[1].rolledBack {
		t.Error("expected second transaction (id 2) to roll back")
	}
	if !fs.batches[2].committed {
		t.Error("expected third transaction (id 3) to commit")
	}
	processed, errored := p.Stats()
	if processed != 2 {
		t.Errorf("processed = %d, want 2", processed)
	}
	if errored != 1 {
		t.Errorf("errored = %d, want 1", errored)
	}
}
