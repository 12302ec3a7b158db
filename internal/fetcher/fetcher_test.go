package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeSpeech struct {
	body string
	err  error
}

func (f *fakeSpeech) FetchSpeechPage(ctx context.Context, url string) (string, error) {
	return f.body, f.err
}

func TestLatestDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ivods":[{"日期":"2024-03-06"}]}`))
	}))
	defer srv.Close()

	f := New(Options{BaseURL: srv.URL, Timeout: time.Second})
	d, err := f.LatestDate(context.Background())
	if err != nil {
		t.Fatalf("LatestDate: %v", err)
	}
	if d.Format("2006-01-02") != "2024-03-06" {
		t.Errorf("LatestDate = %v, want 2024-03-06", d)
	}
}

func TestLatestDateEmptyCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ivods":[]}`))
	}))
	defer srv.Close()

	f := New(Options{BaseURL: srv.URL, Timeout: time.Second})
	_, err := f.LatestDate(context.Background())
	if err == nil {
		t.Fatal("expected error for empty catalog")
	}
	if e, ok := err.(*Error); !ok || e.Kind != KindAPI {
		t.Errorf("err = %v, want KindAPI", err)
	}
}

func TestListIDsSkipsUnparseable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ivods":[{"IVOD_ID":"100"},{"IVOD_ID":"not-a-number"},{"IVOD_ID":"101"}]}`))
	}))
	defer srv.Close()

	f := New(Options{BaseURL: srv.URL, Timeout: time.Second})
	ids, err := f.ListIDs(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ListIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != 100 || ids[1] != 101 {
		t.Errorf("ids = %v, want [100 101]", ids)
	}
}

func TestGetRecordAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":true,"message":"not found"}`))
	}))
	defer srv.Close()

	f := New(Options{BaseURL: srv.URL, Timeout: time.Second})
	_, err := f.GetRecord(context.Background(), 159939)
	if err == nil {
		t.Fatal("expected error")
	}
	e, ok := err.(*Error)
	if !ok || e.Kind != KindAPI || e.IVODID != 159939 {
		t.Errorf("err = %+v, want KindAPI for 159939", e)
	}
}

func TestGetRecordSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"日期":"2024-03-06","title":"foo"}}`))
	}))
	defer srv.Close()

	f := New(Options{BaseURL: srv.URL, Timeout: time.Second})
	raw, err := f.GetRecord(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if len(raw) == 0 {
		t.Error("expected non-empty raw data")
	}
}

func TestGetSpeechNormalizesBreaks(t *testing.T) {
	f := New(Options{SpeechClient: &fakeSpeech{body: "  line one<br />line two  "}})
	text, err := f.GetSpeech(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetSpeech: %v", err)
	}
	want := "line one\nline two"
	if text != want {
		t.Errorf("GetSpeech = %q, want %q", text, want)
	}
}

func TestPoliteSleepRespectsCancellation(t *testing.T) {
	f := New(Options{MinSleep: 10 * time.Second, MaxSleep: 10 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		f.politeSleep(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("politeSleep did not respect cancelled context")
	}
}
