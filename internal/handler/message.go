package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/skyplanner/skyplanner/internal/agent"
	"github.com/skyplanner/skyplanner/internal/session"
)

// MessageHandler runs the agent loop to completion and returns the whole
// result in one JSON response. Useful for non-interactive clients that don't
// want SSE.
type MessageHandler struct {
	store         session.Store
	gateway       agent.Gateway
	registry      *agent.Registry
	titles        *session.TitleGenerator
	maxIterations int
}

// NewMessageHandler creates the blocking message handler.
func NewMessageHandler(store session.Store, gateway agent.Gateway, registry *agent.Registry, titles *session.TitleGenerator, maxIterations int) *MessageHandler {
	return &MessageHandler{
		store:         store,
		gateway:       gateway,
		registry:      registry,
		titles:        titles,
		maxIterations: maxIterations,
	}
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	SessionID  string             `json:"session_id"`
	Title      string             `json:"title,omitempty"`
	Content    string             `json:"content"`
	State      string             `json:"state"`
	TokensUsed int                `json:"tokens_used"`
	ToolCalls  []session.ToolCall `json:"tool_calls,omitempty"`
}

// Send handles POST /api/sessions/{id}/messages.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	sess, err := h.store.Get(ctx, id)
	if err != nil {
		var notFound *session.ErrSessionNotFound
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Error().Err(err).Str("session_id", id).Msg("load session failed")
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	isFirst := len(sess.Messages) == 0
	history := append(sess.MessagesForModel(), agent.UserText(req.Message))

	if err := h.store.AddMessage(ctx, id, session.Message{
		Role:      agent.RoleUser,
		Content:   req.Message,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("persist user message failed")
		writeError(w, http.StatusInternalServerError, "failed to save message")
		return
	}

	ag := agent.New(h.gateway, h.registry, agent.WithMaxIterations(h.maxIterations))
	result, err := ag.Run(ctx, history)
	if err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("agent run failed")
		writeError(w, http.StatusBadGateway, "model request failed: "+err.Error())
		return
	}

	toolCalls := pairToolCalls(result)
	if err := h.store.AddMessage(ctx, id, session.Message{
		Role:      agent.RoleAssistant,
		Content:   result.Content,
		Timestamp: time.Now().UTC(),
		ToolCalls: toolCalls,
	}); err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("persist assistant message failed")
	}
	if result.TokensUsed > 0 {
		if err := h.store.AddTokens(ctx, id, result.TokensUsed); err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("persist token usage failed")
		}
	}

	resp := messageResponse{
		SessionID:  id,
		Content:    result.Content,
		State:      string(result.State),
		TokensUsed: result.TokensUsed,
		ToolCalls:  toolCalls,
	}
	if isFirst {
		title := h.titles.Generate(ctx, req.Message)
		if err := h.store.UpdateTitle(ctx, id, title); err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("persist title failed")
		}
		resp.Title = title
	}

	writeJSON(w, http.StatusOK, resp)
}

// pairToolCalls joins the run's calls with their results by tool use ID.
func pairToolCalls(result *agent.Result) []session.ToolCall {
	resultByID := make(map[string]string, len(result.ToolResults))
	for _, tr := range result.ToolResults {
		resultByID[tr.ToolUseID] = tr.Content
	}
	calls := make([]session.ToolCall, 0, len(result.ToolCalls))
	for _, tc := range result.ToolCalls {
		calls = append(calls, session.ToolCall{
			ID:     tc.ID,
			Name:   tc.Name,
			Input:  tc.Input,
			Result: resultByID[tc.ID],
		})
	}
	return calls
}
