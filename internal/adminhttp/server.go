// Package adminhttp serves the optional observability surface a
// workflow run exposes for its duration: /healthz (Store and Index
// Aligner reachability) and /metrics (Prometheus counters from
// internal/metrics). It is started only when ADMIN_ADDR is set.
package adminhttp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/index"
	"github.com/billy3321/ivod-engine/internal/metrics"
	"github.com/billy3321/ivod-engine/internal/store"
)

// Server is the admin HTTP surface for one workflow run.
type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// New builds a Server bound to addr. aligner may be nil.
func New(addr string, st store.Store, aligner *index.Aligner, log zerolog.Logger) *Server {
	log = log.With().Str("component", "adminhttp").Logger()
	r := chi.NewRouter()
	r.Get("/healthz", healthHandler(st, aligner))
	r.Get("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}).ServeHTTP)

	return &Server{
		http: &http.Server{Addr: addr, Handler: r},
		log:  log,
	}
}

type healthResponse struct {
	Store   string `json:"store"`
	Index   string `json:"index"`
	Healthy bool   `json:"healthy"`
}

func healthHandler(st store.Store, aligner *index.Aligner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Store: "ok", Index: "disabled", Healthy: true}

		if _, err := st.Count(r.Context()); err != nil {
			resp.Store = "unreachable"
			resp.Healthy = false
		}
		if aligner != nil {
			if aligner.Ping(r.Context()) {
				resp.Index = "ok"
			} else {
				resp.Index = "unreachable"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if !resp.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}

// Start blocks serving until Shutdown is called. A closed server is not
// an error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("admin http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("admin http server shutting down")
	return s.http.Shutdown(ctx)
}
