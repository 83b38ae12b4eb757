// Package sse streams Server-Sent Events for chat responses.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Event represents a Server-Sent Event.
type Event struct {
	Type string `json:"type"` // title, text, tool_use, tool_result, done, error
	Data any    `json:"data"` // JSON-serializable payload
}

// TitleData is the payload for title events, emitted when a session gets its
// generated title.
type TitleData struct {
	Title string `json:"title"`
}

// TextData is the payload for text events.
type TextData struct {
	Content string `json:"content"`
}

// ToolUseData is the payload for tool_use events.
type ToolUseData struct {
	ID    string         `json:"id"`
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
}

// ToolResultData is the payload for tool_result events.
type ToolResultData struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error"`
}

// DoneData is the payload for done events.
type DoneData struct {
	State string `json:"state"`
}

// ErrorData is the payload for error events.
type ErrorData struct {
	Message string `json:"message"`
}

// Stream writes SSE events from a channel to an http.ResponseWriter.
// It blocks until the channel is closed or the client disconnects.
func Stream(w http.ResponseWriter, r *http.Request, events <-chan Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	// Keep SSE connection exempt from server WriteTimeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": heartbeat\n\n"); err != nil {
				return // client gone
			}
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}

			data, err := json.Marshal(event.Data)
			if err != nil {
				errData, _ := json.Marshal(map[string]string{"error": "marshal failed: " + err.Error()})
				data = errData
			}

			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, string(data)); err != nil {
				return // client gone
			}
			flusher.Flush()
		}
	}
}

// WriteEvent writes a single SSE event directly.
func WriteEvent(w http.ResponseWriter, eventType string, data any) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, string(jsonData))
	flusher.Flush()
}
