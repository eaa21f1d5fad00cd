// Package server exposes the cache engine over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gatti/quote-cache/internal/platform/observability"
	"github.com/gatti/quote-cache/internal/quote"
)

// Config holds HTTP server settings.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Readiness reports whether dependencies are ready to take traffic.
type Readiness func(ctx context.Context) error

// Server is the client-facing API server.
type Server struct {
	engine *quote.Engine
	logger *observability.Logger
	ready  Readiness
	httpd  *http.Server
}

// New creates the API server. ready may be nil.
func New(cfg Config, engine *quote.Engine, logger *observability.Logger, ready Readiness) *Server {
	s := &Server{
		engine: engine,
		logger: logger,
		ready:  ready,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /price/{chain}/{tokenIn}/{tokenOut}", s.handlePrice)
	mux.HandleFunc("POST /prices", s.handlePrices)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("POST /admin/tiers/{tier}/pairs", s.handleAssignTier)
	mux.HandleFunc("POST /admin/refresh", s.handleForceRefresh)

	s.httpd = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Handler returns the server's handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpd.Handler
}

// ListenAndServe runs the server until it is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpd.ListenAndServe()
}

// Shutdown stops accepting new requests and drains in-flight ones within
// the grace window.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpd.Shutdown(ctx)
}
