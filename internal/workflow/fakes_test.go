package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/billy3321/ivod-engine/internal/model"
	"github.com/billy3321/ivod-engine/internal/store"
)

// fakeStore is an in-memory store.Store good enough to drive workflow
// tests without a real database. BeginBatch gives real transactional
// isolation: writes are invisible until Commit.
type fakeStore struct {
	records map[int64]*model.Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[int64]*model.Record)}
}

func (s *fakeStore) EnsureSchema(ctx context.Context) error { return nil }

func (s *fakeStore) Get(ctx context.Context, id int64) (*model.Record, error) {
	if rec, ok := s.records[id]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeStore) Upsert(ctx context.Context, rec *model.Record) error {
	cp := *rec
	cp.LastUpdated = model.Now()
	s.records[rec.IVODID] = &cp
	return nil
}

func (s *fakeStore) UpsertPreservingTimestamp(ctx context.Context, rec *model.Record) error {
	cp := *rec
	s.records[rec.IVODID] = &cp
	return nil
}

func (s *fakeStore) QueryFailed(ctx context.Context, kind store.FailedKind, maxRetries int) ([]*model.Record, error) {
	var out []*model.Record
	for _, rec := range s.records {
		if rec.Failed(kind) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IVODID < out[j].IVODID })
	return out, nil
}

func (s *fakeStore) QueryRecentlyUpdated(ctx context.Context, window time.Duration) ([]*model.Record, error) {
	return s.QueryAll(ctx)
}

func (s *fakeStore) QueryAll(ctx context.Context) ([]*model.Record, error) {
	var out []*model.Record
	for _, rec := range s.records {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IVODID < out[j].IVODID })
	return out, nil
}

func (s *fakeStore) QueryByIDs(ctx context.Context, ids []int64) ([]*model.Record, error) {
	var out []*model.Record
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteAll(ctx context.Context) error {
	s.records = make(map[int64]*model.Record)
	return nil
}

func (s *fakeStore) Count(ctx context.Context) (int64, error) { return int64(len(s.records)), nil }

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) BeginBatch(ctx context.Context) (store.Batch, error) {
	return &fakeBatchTx{parent: s, pending: make(map[int64]*model.Record)}, nil
}

type fakeBatchTx struct {
	parent  *fakeStore
	pending map[int64]*model.Record
}

func (b *fakeBatchTx) Upsert(ctx context.Context, rec *model.Record) error {
	cp := *rec
	cp.LastUpdated = model.Now()
	b.pending[rec.IVODID] = &cp
	return nil
}

func (b *fakeBatchTx) Commit(ctx context.Context) error {
	for id, rec := range b.pending {
		b.parent.records[id] = rec
	}
	return nil
}

func (b *fakeBatchTx) Rollback(ctx context.Context) error {
	b.pending = nil
	return nil
}

// fakeFetcher serves canned responses keyed by date or id.
type fakeFetcher struct {
	idsByDate map[string][]int64
	docs      map[int64]json.RawMessage
	speech    map[int64]string
	failIDs   map[int64]bool
	called    map[int64]bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		idsByDate: make(map[string][]int64),
		docs:      make(map[int64]json.RawMessage),
		speech:    make(map[int64]string),
		failIDs:   make(map[int64]bool),
		called:    make(map[int64]bool),
	}
}

func (f *fakeFetcher) ListIDs(ctx context.Context, date time.Time) ([]int64, error) {
	return f.idsByDate[date.Format("2006-01-02")], nil
}

func (f *fakeFetcher) GetRecord(ctx context.Context, id int64) (json.RawMessage, error) {
	f.called[id] = true
	if f.failIDs[id] {
		return nil, errors.New("simulated upstream failure")
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, errors.New("no such id")
	}
	return doc, nil
}

func (f *fakeFetcher) GetSpeech(ctx context.Context, id int64) (string, error) {
	return f.speech[id], nil
}

// rawDocJSON builds a minimal well-formed document for id, with both
// transcripts present unless overridden.
func rawDocJSON(date, meetingTime string, aiText, lyBlock string) json.RawMessage {
	doc := map[string]any{
		"日期":   date,
		"會議時間": meetingTime,
		"transcript": map[string]any{
			"whisperx": []map[string]string{{"text": aiText}},
		},
	}
	if lyBlock != "" {
		doc["gazette"] = map[string]any{"blocks": [][]string{{lyBlock}}}
	}
	b, _ := json.Marshal(doc)
	return b
}
