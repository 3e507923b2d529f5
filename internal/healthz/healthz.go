// Package healthz exposes a minimal liveness/readiness HTTP endpoint over
// the indexer's current watermark, grounded on daglabs-btcd's apiserver
// package's use of gorilla/mux for simple JSON GET routes, scoped down
// to the single health surface spec.md's DOMAIN STACK calls for (no REST
// query API — that is explicitly out of scope, see SPEC_FULL.md).
package healthz

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/mux"

	"github.com/nintondo/doge20indexer/internal/log"
)

// Status is the liveness/readiness snapshot served at /healthz.
type Status struct {
	LastHeight uint32 `json:"last_height"`
	LastHash   string `json:"last_hash"`
	Ready      bool   `json:"ready"`
}

// Server serves the health endpoint; the indexer updates its watermark
// via Update as each block commits.
type Server struct {
	height atomic.Uint32
	hash   atomic.Value // string
	ready  atomic.Bool

	srv *http.Server
}

// New builds a Server bound to addr. Call Run to start serving.
func New(addr string) *Server {
	s := &Server{}
	s.hash.Store("")

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.srv = &http.Server{Addr: addr, Handler: r}
	return s
}

// Update records the latest committed block's height and hash and marks
// the server ready to serve traffic.
func (s *Server) Update(height uint32, hash string) {
	s.height.Store(height)
	s.hash.Store(hash)
	s.ready.Store(true)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := Status{
		LastHeight: s.height.Load(),
		LastHash:   s.hash.Load().(string),
		Ready:      s.ready.Load(),
	}
	w.Header().Set("Content-Type", "application/json")
	if !status.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Healthz.Error().Err(err).Msg("encode health response")
	}
}

// Run serves and blocks until Close stops the server. Errors other than
// http.ErrServerClosed are logged, never fatal to the indexer itself.
func (s *Server) Run() {
	log.Healthz.Info().Str("addr", s.srv.Addr).Msg("starting health endpoint")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Healthz.Error().Err(err).Msg("health endpoint stopped unexpectedly")
	}
}

// Close stops the server.
func (s *Server) Close() error {
	return s.srv.Close()
}
