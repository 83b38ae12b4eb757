package sse

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamWritesEvents(t *testing.T) {
	events := make(chan Event, 3)
	events <- Event{Type: "title", Data: TitleData{Title: "Picnic planning"}}
	events <- Event{Type: "text", Data: TextData{Content: "Hello"}}
	events <- Event{Type: "done", Data: DoneData{State: "completed"}}
	close(events)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/sessions/s1/chat", nil)

	Stream(rec, req, events)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	lines := strings.Split(strings.TrimSpace(body), "\n\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "event: title\ndata: {\"title\":\"Picnic planning\"}", lines[0])
	assert.Equal(t, "event: text\ndata: {\"content\":\"Hello\"}", lines[1])
	assert.Equal(t, "event: done\ndata: {\"state\":\"completed\"}", lines[2])
}

func TestStreamStopsOnClientDisconnect(t *testing.T) {
	events := make(chan Event)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/sessions/s1/chat", nil)
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		Stream(rec, req, events)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stream did not return after context cancellation")
	}
}

func TestWriteEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteEvent(rec, "error", ErrorData{Message: "boom"})
	assert.Equal(t, "event: error\ndata: {\"message\":\"boom\"}\n\n", rec.Body.String())
}
