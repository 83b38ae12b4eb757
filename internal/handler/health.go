package handler

import (
	"net/http"
)

// HealthHandler serves the health check endpoint.
type HealthHandler struct {
	version string
	backend string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version, backend string) *HealthHandler {
	return &HealthHandler{version: version, backend: backend}
}

// Handle responds with server health status.
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "skyplanner",
		"version": h.version,
		"storage": h.backend,
	})
}
