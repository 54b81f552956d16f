// Package web provides the HTTP API for psync.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/evcraddock/property-sync/internal/auth"
	"github.com/evcraddock/property-sync/internal/logging"
	"github.com/evcraddock/property-sync/internal/store"
	"github.com/evcraddock/property-sync/internal/syncer"
)

const shutdownTimeout = 10 * time.Second

// Server is the psync HTTP API server.
type Server struct {
	service *syncer.Service
	store   store.Store
	log     zerolog.Logger
	mux     *http.ServeMux
	handler http.Handler
}

// NewServer creates an API server. service may be nil when no lookup
// credential is configured; sync requests then fail with 503. Every /api/
// route requires apiToken as a bearer token; an empty apiToken locks the
// API.
func NewServer(service *syncer.Service, st store.Store, apiToken string, log zerolog.Logger) *Server {
	s := &Server{
		service: service,
		store:   st,
		log:     log,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/sync", s.apiSync)
	s.mux.HandleFunc("GET /api/properties/{external_id}", s.apiGetProperty)

	s.handler = logging.RequestLogger(log)(auth.RequireAPIKey(auth.NewValidator(apiToken), s.mux))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on port until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info().Str("addr", srv.Addr).Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info().Msg("shutting down API server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	apiJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
