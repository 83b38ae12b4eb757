package handler

import (
	"net/http"

	"github.com/skyplanner/skyplanner/internal/agent"
)

// ToolsHandler lists the tools available to the agent.
type ToolsHandler struct {
	registry *agent.Registry
}

// NewToolsHandler creates the tool listing handler.
func NewToolsHandler(registry *agent.Registry) *ToolsHandler {
	return &ToolsHandler{registry: registry}
}

// List handles GET /api/tools.
func (h *ToolsHandler) List(w http.ResponseWriter, r *http.Request) {
	schemas := h.registry.ModelSchemas()
	tools := make([]map[string]any, 0, len(schemas))
	for _, s := range schemas {
		tools = append(tools, map[string]any{
			"name":        s.Name,
			"description": s.Description,
			"parameters":  s.InputSchema.Properties,
			"required":    s.InputSchema.Required,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}
