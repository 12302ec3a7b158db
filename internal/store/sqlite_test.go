package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/model"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ivod.db")
	s, err := OpenSQLite(context.Background(), path, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id int64) *model.Record {
	return &model.Record{
		IVODID:         id,
		Date:           time.Date(2024, 3, 6, 0, 0, 0, 0, model.TaipeiLocation),
		MeetingTime:    time.Date(2024, 3, 6, 9, 0, 0, 0, model.TaipeiLocation),
		Title:          "committee meeting",
		CommitteeNames: []string{"司法及法制委員會", "財政委員會"},
		AITranscript:   "hello",
		AIStatus:       model.StatusSuccess,
		LYTranscript:   "line one",
		LYStatus:       model.StatusSuccess,
	}
}

func TestSQLiteUpsertAndGet(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	rec := sampleRecord(100)
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if rec.LastUpdated.IsZero() {
		t.Error("Upsert did not stamp LastUpdated")
	}

	got, err := s.Get(ctx, 100)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil, want record")
	}
	if got.Title != "committee meeting" || len(got.CommitteeNames) != 2 {
		t.Errorf("got = %+v", got)
	}
	if got.CommitteeNames[0] != "司法及法制委員會" {
		t.Errorf("CommitteeNames[0] = %q", got.CommitteeNames[0])
	}
}

func TestSQLiteUpsertIsIdempotent(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	rec := sampleRecord(101)
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	rec.Title = "updated title"
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1 (upsert must not duplicate)", n)
	}

	got, _ := s.Get(ctx, 101)
	if got.Title != "updated title" {
		t.Errorf("Title = %q, want updated title", got.Title)
	}
}

func TestSQLiteQueryFailedCircuitBreakerOnlySelection(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	for i, retries := range []int{0, 6, 10} {
		rec := sampleRecord(int64(200 + i))
		rec.AIStatus = model.StatusFailed
		rec.AIRetries = retries
		if err := s.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	// maxRetries = 0 means no cap: every failed row comes back regardless
	// of its retry count.
	all, err := s.QueryFailed(ctx, model.KindAI, 0)
	if err != nil {
		t.Fatalf("QueryFailed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("QueryFailed(maxRetries=0) returned %d rows, want 3", len(all))
	}

	capped, err := s.QueryFailed(ctx, model.KindAI, 5)
	if err != nil {
		t.Fatalf("QueryFailed: %v", err)
	}
	if len(capped) != 1 {
		t.Errorf("QueryFailed(maxRetries=5) returned %d rows, want 1", len(capped))
	}
}

func TestSQLiteUpsertPreservingTimestamp(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	rec := sampleRecord(300)
	backedUp := time.Date(2023, 1, 1, 0, 0, 0, 0, model.TaipeiLocation)
	rec.LastUpdated = backedUp
	if err := s.UpsertPreservingTimestamp(ctx, rec); err != nil {
		t.Fatalf("UpsertPreservingTimestamp: %v", err)
	}

	got, _ := s.Get(ctx, 300)
	if !got.LastUpdated.Equal(backedUp) {
		t.Errorf("LastUpdated = %v, want %v (restore must not re-stamp)", got.LastUpdated, backedUp)
	}
}

func TestSQLiteDeleteAll(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	s.Upsert(ctx, sampleRecord(400))
	s.Upsert(ctx, sampleRecord(401))
	if err := s.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	n, _ := s.Count(ctx)
	if n != 0 {
		t.Errorf("Count after DeleteAll = %d, want 0", n)
	}
}
