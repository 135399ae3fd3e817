package server

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/trendscope/trendscope/pkg/filter"
	"github.com/trendscope/trendscope/pkg/pipeline"
	"github.com/trendscope/trendscope/pkg/sources"
	"github.com/trendscope/trendscope/pkg/storage"
	"github.com/trendscope/trendscope/pkg/vision"
)

// Server exposes the pipeline over HTTP: scan and import triggers, the
// secret-guarded maintenance job, and the read-only signal views.
type Server struct {
	DB         *storage.DB
	Sources    []sources.Source
	Harvester  pipeline.Harvester
	Classifier vision.Classifier

	FilterOptions filter.Options

	// Secret guards the scheduled maintenance endpoint. Empty disables the
	// endpoint entirely rather than leaving it open.
	Secret string

	SourceConcurrency int
	EnrichConcurrency int
}

func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/scan", s.handleScan)
	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("POST /api/jobs/maintenance", s.bearerAuth(s.handleMaintenance))
	mux.HandleFunc("GET /api/signals", s.handleSignals)
	mux.HandleFunc("GET /api/featured", s.handleFeatured)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	log.Printf("Starting server on %s", addr)
	return http.ListenAndServe(addr, mux)
}

// bearerAuth enforces the shared-secret check scheduled jobs authenticate
// with.
func (s *Server) bearerAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Secret == "" {
			http.Error(w, "maintenance secret not configured", http.StatusServiceUnavailable)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Secret)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
