package adminhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/store"
)

type fakeHealthStore struct {
	store.Store
	countErr error
}

func (s *fakeHealthStore) Count(ctx context.Context) (int64, error) { return 0, s.countErr }

func TestHealthHandlerReportsStoreStatus(t *testing.T) {
	srv := New("127.0.0.1:0", &fakeHealthStore{}, nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Healthy || resp.Store != "ok" || resp.Index != "disabled" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHealthHandlerReportsStoreUnreachable(t *testing.T) {
	srv := New("127.0.0.1:0", &fakeHealthStore{countErr: context.DeadlineExceeded}, nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var resp healthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Healthy {
		t.Error("expected Healthy=false when store is unreachable")
	}
}

