package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/skyplanner/skyplanner/internal/agent"
	"github.com/skyplanner/skyplanner/internal/config"
	"github.com/skyplanner/skyplanner/internal/handler"
	mw "github.com/skyplanner/skyplanner/internal/middleware"
	"github.com/skyplanner/skyplanner/internal/session"
)

// NewRouter creates the chi router with all routes registered.
func NewRouter(cfg *config.Config, version string, logger zerolog.Logger, deps Deps, rateLimiter *mw.RateLimiter) http.Handler {
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(mw.AccessLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(mw.BodyLimit(cfg.Server.MaxBodyBytes))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Handlers
	healthH := handler.NewHealthHandler(version, cfg.Storage.Backend)
	sessionH := handler.NewSessionHandler(deps.Store)
	chatH := handler.NewChatHandler(deps.Store, deps.Gateway, deps.Registry, deps.Titles, cfg.Agent.MaxIterations)
	messageH := handler.NewMessageHandler(deps.Store, deps.Gateway, deps.Registry, deps.Titles, cfg.Agent.MaxIterations)
	toolsH := handler.NewToolsHandler(deps.Registry)

	r.Get("/health", healthH.Handle)

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimiter.Middleware())

		// CRUD routes — 60s timeout
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(60 * time.Second))
			r.Get("/tools", toolsH.List)
			r.Post("/sessions", sessionH.Create)
			r.Get("/sessions", sessionH.List)
			r.Get("/sessions/{id}", sessionH.Get)
			r.Delete("/sessions/{id}", sessionH.Delete)
		})

		// Agent runs can take several model round-trips
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(5 * time.Minute))
			r.Post("/sessions/{id}/messages", messageH.Send)
		})

		// SSE stream — no timeout, heartbeat keeps alive
		r.Post("/sessions/{id}/chat", chatH.Chat)
	})

	return r
}

// Deps bundles what the handlers need.
type Deps struct {
	Store    session.Store
	Gateway  agent.Gateway
	Registry *agent.Registry
	Titles   *session.TitleGenerator
}
