package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/skyplanner/skyplanner/internal/agent"
	"github.com/skyplanner/skyplanner/internal/session"
	"github.com/skyplanner/skyplanner/internal/sse"
)

// ChatHandler streams agent responses over SSE.
type ChatHandler struct {
	store         session.Store
	gateway       agent.Gateway
	registry      *agent.Registry
	titles        *session.TitleGenerator
	maxIterations int
}

// NewChatHandler creates the streaming chat handler.
func NewChatHandler(store session.Store, gateway agent.Gateway, registry *agent.Registry, titles *session.TitleGenerator, maxIterations int) *ChatHandler {
	return &ChatHandler{
		store:         store,
		gateway:       gateway,
		registry:      registry,
		titles:        titles,
		maxIterations: maxIterations,
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

// Chat handles POST /api/sessions/{id}/chat. The response is an SSE stream of
// title, text, tool_use, tool_result and done/error events.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
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

	var req chatRequest
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

	events := make(chan sse.Event, 32)
	go h.run(ctx, id, isFirst, req.Message, history, events)
	sse.Stream(w, r, events)
}

// run drives the agent loop and translates its events into SSE events,
// persisting the assistant turn when the run finishes.
func (h *ChatHandler) run(ctx context.Context, id string, isFirst bool, userMessage string, history []agent.Message, events chan<- sse.Event) {
	defer close(events)

	emit := func(ev sse.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if isFirst {
		title := h.titles.Generate(ctx, userMessage)
		if err := h.store.UpdateTitle(ctx, id, title); err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("persist title failed")
		}
		if !emit(sse.Event{Type: "title", Data: sse.TitleData{Title: title}}) {
			return
		}
	}

	ag := agent.New(h.gateway, h.registry, agent.WithMaxIterations(h.maxIterations))

	var text strings.Builder
	var toolCalls []session.ToolCall
	callIndex := make(map[string]int)

	for ev := range ag.RunStream(ctx, history) {
		switch ev.Type {
		case agent.EventTextDelta:
			text.WriteString(ev.Content)
			if !emit(sse.Event{Type: "text", Data: sse.TextData{Content: ev.Content}}) {
				return
			}
		case agent.EventToolUse:
			callIndex[ev.ToolCall.ID] = len(toolCalls)
			toolCalls = append(toolCalls, session.ToolCall{
				ID:    ev.ToolCall.ID,
				Name:  ev.ToolCall.Name,
				Input: ev.ToolCall.Input,
			})
			if !emit(sse.Event{Type: "tool_use", Data: sse.ToolUseData{
				ID:    ev.ToolCall.ID,
				Tool:  ev.ToolCall.Name,
				Input: ev.ToolCall.Input,
			}}) {
				return
			}
		case agent.EventToolResult:
			if i, ok := callIndex[ev.ToolResult.ToolUseID]; ok {
				toolCalls[i].Result = ev.ToolResult.Content
			}
			if !emit(sse.Event{Type: "tool_result", Data: sse.ToolResultData{
				ToolUseID: ev.ToolResult.ToolUseID,
				Content:   ev.ToolResult.Content,
				IsError:   ev.ToolResult.IsError,
			}}) {
				return
			}
		case agent.EventDone:
			emit(sse.Event{Type: "done", Data: sse.DoneData{State: string(ev.State)}})
		case agent.EventError:
			emit(sse.Event{Type: "error", Data: sse.ErrorData{Message: ev.Content}})
		}
	}

	h.persistAssistant(id, text.String(), toolCalls)
}

// persistAssistant saves the assistant turn with a fresh context so a client
// disconnect doesn't lose the message.
func (h *ChatHandler) persistAssistant(id, content string, toolCalls []session.ToolCall) {
	if content == "" && len(toolCalls) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.store.AddMessage(ctx, id, session.Message{
		Role:      agent.RoleAssistant,
		Content:   content,
		Timestamp: time.Now().UTC(),
		ToolCalls: toolCalls,
	}); err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("persist assistant message failed")
	}
}
