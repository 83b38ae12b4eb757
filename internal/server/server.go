// Package server wires the HTTP stack: routes, middleware and lifecycle.
package server

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/skyplanner/skyplanner/internal/config"
	"github.com/skyplanner/skyplanner/internal/middleware"
)

// Server wraps the HTTP server with graceful shutdown.
type Server struct {
	httpServer  *http.Server
	logger      zerolog.Logger
	rateLimiter *middleware.RateLimiter
}

// New creates a new Server.
func New(cfg *config.Config, version string, logger zerolog.Logger, deps Deps) *Server {
	rl := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	router := NewRouter(cfg, version, logger, deps, rl)

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.Addr(),
			Handler: router,
		},
		logger:      logger,
		rateLimiter: rl,
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("SkyPlanner listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and stops background goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server")
	err := s.httpServer.Shutdown(ctx)
	s.rateLimiter.Stop()
	return err
}
