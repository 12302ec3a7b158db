package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/model"
)

func mustParseDate(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, model.TaipeiLocation)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRetryCircuitBreakerStopsAfterThreeConsecutiveFailingDates(t *testing.T) {
	st := newFakeStore()
	ft := newFakeFetcher()

	dates := []string{"2024-04-01", "2024-04-02", "2024-04-03", "2024-04-04"}
	ids := []int64{500, 501, 502, 503}
	for i, d := range dates {
		id := ids[i]
		st.records[id] = &model.Record{
			IVODID:    id,
			Date:      mustParseDate(d),
			LYStatus:  model.StatusFailed,
			LYRetries: 1,
		}
		ft.failIDs[id] = true
	}

	e := New(st, ft, nil, nil, zerolog.Nop())
	if _, err := e.Retry(context.Background(), 10, 1); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	for _, id := range ids[:3] {
		if !ft.called[id] {
			t.Errorf("id %d (within the three failing dates) should have been retried", id)
		}
	}
	if ft.called[503] {
		t.Error("id 503 (the fourth consecutive failing date) should have been skipped by the circuit breaker")
	}
}

func TestRetrySuccessResetsBreaker(t *testing.T) {
	st := newFakeStore()
	ft := newFakeFetcher()

	okDate := "2024-05-01"
	failDate1 := "2024-05-02"
	failDate2 := "2024-05-03"

	st.records[600] = &model.Record{IVODID: 600, Date: mustParseDate(okDate), LYStatus: model.StatusFailed, LYRetries: 3}
	st.records[601] = &model.Record{IVODID: 601, Date: mustParseDate(failDate1), LYStatus: model.StatusFailed, LYRetries: 1}
	st.records[602] = &model.Record{IVODID: 602, Date: mustParseDate(failDate2), LYStatus: model.StatusFailed, LYRetries: 1}

	ft.docs[600] = rawDocJSON(okDate, okDate+"T09:00:00+08:00", "ai text", "ly text")
	ft.failIDs[601] = true
	ft.failIDs[602] = true

	e := New(st, ft, nil, nil, zerolog.Nop())
	res, err := e.Retry(context.Background(), 10, 1)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if res.Processed != 1 {
		t.Errorf("Processed = %d, want 1 (only the successful re-fetch reaches the batch)", res.Processed)
	}

	rec, _ := st.Get(context.Background(), 600)
	if rec.LYStatus != model.StatusSuccess || rec.LYRetries != 0 {
		t.Errorf("record 600 = %s/%d, want success/0", rec.LYStatus, rec.LYRetries)
	}
	if !ft.called[601] || !ft.called[602] {
		t.Error("both subsequent failing-date ids should still have been attempted (breaker reset by the earlier success)")
	}
}
