package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyplanner/skyplanner/internal/agent"
	"github.com/skyplanner/skyplanner/internal/session"
)

// fakeGateway replays scripted blocking responses and streamed turns.
type fakeGateway struct {
	responses []*agent.ModelResponse
	turns     [][]agent.ModelEvent
}

func (g *fakeGateway) Complete(ctx context.Context, req *agent.ModelRequest) (*agent.ModelResponse, error) {
	if len(g.responses) == 0 {
		return nil, fmt.Errorf("no scripted response left")
	}
	resp := g.responses[0]
	g.responses = g.responses[1:]
	return resp, nil
}

func (g *fakeGateway) Stream(ctx context.Context, req *agent.ModelRequest) (*agent.ModelStream, error) {
	if len(g.turns) == 0 {
		return nil, fmt.Errorf("no scripted turn left")
	}
	events := g.turns[0]
	g.turns = g.turns[1:]
	ch := make(chan agent.ModelEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return &agent.ModelStream{Events: ch}, nil
}

func textOnlyResponse(text string) *agent.ModelResponse {
	return &agent.ModelResponse{
		StopReason: agent.StopEndTurn,
		Content:    []agent.ContentBlock{agent.TextBlock(text)},
		Usage:      agent.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func streamedTextTurn(text string) []agent.ModelEvent {
	return []agent.ModelEvent{
		{Type: agent.ModelBlockStart, BlockType: agent.BlockText},
		{Type: agent.ModelTextDelta, Text: text},
		{Type: agent.ModelBlockStop},
		{Type: agent.ModelDone, StopReason: agent.StopEndTurn},
	}
}

type testEnv struct {
	router *chi.Mux
	store  session.Store
}

func newTestEnv(t *testing.T, gw *fakeGateway, titleGW agent.Gateway) *testEnv {
	t.Helper()
	store := session.NewMemoryStore()
	registry := agent.NewRegistry()
	titles := session.NewTitleGenerator(titleGW)

	sessionH := NewSessionHandler(store)
	chatH := NewChatHandler(store, gw, registry, titles, 5)
	messageH := NewMessageHandler(store, gw, registry, titles, 5)
	toolsH := NewToolsHandler(registry)
	healthH := NewHealthHandler("test", "memory")

	r := chi.NewRouter()
	r.Get("/health", healthH.Handle)
	r.Get("/api/tools", toolsH.List)
	r.Post("/api/sessions", sessionH.Create)
	r.Get("/api/sessions", sessionH.List)
	r.Get("/api/sessions/{id}", sessionH.Get)
	r.Delete("/api/sessions/{id}", sessionH.Delete)
	r.Post("/api/sessions/{id}/chat", chatH.Chat)
	r.Post("/api/sessions/{id}/messages", messageH.Send)

	return &testEnv{router: r, store: store}
}

type staticTitleGateway struct{ title string }

func (g *staticTitleGateway) Complete(ctx context.Context, req *agent.ModelRequest) (*agent.ModelResponse, error) {
	return &agent.ModelResponse{
		StopReason: agent.StopEndTurn,
		Content:    []agent.ContentBlock{agent.TextBlock(g.title)},
	}, nil
}

func (g *staticTitleGateway) Stream(ctx context.Context, req *agent.ModelRequest) (*agent.ModelStream, error) {
	return nil, fmt.Errorf("not implemented")
}

func (e *testEnv) do(method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	rec := e.do("POST", "/api/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp["session_id"].(string)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, &staticTitleGateway{})
	rec := env.do("GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"storage":"memory"`)
}

func TestSessionCRUD(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, &staticTitleGateway{})

	id := env.createSession(t)

	rec := env.do("GET", "/api/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sess session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, id, sess.ID)
	assert.Empty(t, sess.Messages)

	rec = env.do("GET", "/api/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []session.Summary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, id, list.Sessions[0].ID)

	rec = env.do("DELETE", "/api/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do("GET", "/api/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionGetMissing(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, &staticTitleGateway{})
	rec := env.do("GET", "/api/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionListBadLimit(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, &staticTitleGateway{})
	rec := env.do("GET", "/api/sessions?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToolsList(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, &staticTitleGateway{})
	rec := env.do("GET", "/api/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tools []map[string]any `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Tools)
}

func TestMessageBlockingRun(t *testing.T) {
	gw := &fakeGateway{responses: []*agent.ModelResponse{textOnlyResponse("It will be sunny.")}}
	env := newTestEnv(t, gw, &staticTitleGateway{title: "Weather question"})

	id := env.createSession(t)
	rec := env.do("POST", "/api/sessions/"+id+"/messages", `{"message": "Weather tomorrow?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		SessionID  string `json:"session_id"`
		Title      string `json:"title"`
		Content    string `json:"content"`
		State      string `json:"state"`
		TokensUsed int    `json:"tokens_used"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.SessionID)
	assert.Equal(t, "Weather question", resp.Title)
	assert.Equal(t, "It will be sunny.", resp.Content)
	assert.Equal(t, "completed", resp.State)
	assert.Equal(t, 15, resp.TokensUsed)

	sess, err := env.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "user", sess.Messages[0].Role)
	assert.Equal(t, "assistant", sess.Messages[1].Role)
	assert.Equal(t, "Weather question", sess.Title)
	assert.Equal(t, 15, sess.TotalTokens)
}

func TestMessageValidation(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, &staticTitleGateway{})
	id := env.createSession(t)

	rec := env.do("POST", "/api/sessions/"+id+"/messages", `{"message": "  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("POST", "/api/sessions/"+id+"/messages", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("POST", "/api/sessions/missing/messages", `{"message": "hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageGatewayFailure(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, &staticTitleGateway{})
	id := env.createSession(t)

	rec := env.do("POST", "/api/sessions/"+id+"/messages", `{"message": "hi"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestChatStreamsEvents(t *testing.T) {
	gw := &fakeGateway{turns: [][]agent.ModelEvent{streamedTextTurn("It will be sunny.")}}
	env := newTestEnv(t, gw, &staticTitleGateway{title: "Weather question"})

	id := env.createSession(t)
	rec := env.do("POST", "/api/sessions/"+id+"/chat", `{"message": "Weather tomorrow?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: title\ndata: {\"title\":\"Weather question\"}")
	assert.Contains(t, body, "event: text\ndata: {\"content\":\"It will be sunny.\"}")
	assert.Contains(t, body, "event: done\ndata: {\"state\":\"completed\"}")

	// The title precedes the streamed text.
	assert.Less(t, strings.Index(body, "event: title"), strings.Index(body, "event: text"))

	sess, err := env.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "assistant", sess.Messages[1].Role)
	assert.Equal(t, "It will be sunny.", sess.Messages[1].Content)
	assert.Equal(t, "Weather question", sess.Title)
}

func TestChatSecondMessageSkipsTitle(t *testing.T) {
	gw := &fakeGateway{turns: [][]agent.ModelEvent{
		streamedTextTurn("First answer."),
		streamedTextTurn("Second answer."),
	}}
	env := newTestEnv(t, gw, &staticTitleGateway{title: "First title"})
	id := env.createSession(t)

	rec := env.do("POST", "/api/sessions/"+id+"/chat", `{"message": "first"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do("POST", "/api/sessions/"+id+"/chat", `{"message": "second"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "event: title")
}

func TestChatMissingSession(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, &staticTitleGateway{})
	rec := env.do("POST", "/api/sessions/missing/chat", `{"message": "hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
