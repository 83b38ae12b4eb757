// Package anthropic implements agent.Gateway against the Anthropic Messages
// API, in both blocking and SSE-streaming form.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/skyplanner/skyplanner/internal/agent"
	"github.com/skyplanner/skyplanner/internal/resilience"
)

const defaultBaseURL = "https://api.anthropic.com"

// Option configures a Client.
type Option func(*Client)

func WithMaxTokens(n int) Option    { return func(c *Client) { c.maxTokens = n } }
func WithMaxRetries(n int) Option   { return func(c *Client) { c.maxRetries = n } }
func WithBaseURL(url string) Option { return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") } }
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.cb = cb }
}

// Client talks to the Anthropic Messages API. It is safe for concurrent use.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	cb         *resilience.CircuitBreaker
}

// New creates a client for the given API key and model.
func New(apiKey, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		maxTokens:  4096,
		maxRetries: 3,
		retryDelay: time.Second,
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Complete performs one blocking model turn.
func (c *Client) Complete(ctx context.Context, req *agent.ModelRequest) (*agent.ModelResponse, error) {
	body := c.requestBody(req, false)

	var resp *agent.ModelResponse
	err := c.withResilience(ctx, func() error {
		raw, err := c.doRequest(ctx, body)
		if err != nil {
			return err
		}
		defer raw.Body.Close()

		data, err := io.ReadAll(io.LimitReader(raw.Body, 10<<20))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		parsed, err := parseMessage(data)
		if err != nil {
			return err
		}
		resp = parsed
		return nil
	})
	return resp, err
}

// Stream performs one streamed model turn. Retries apply only to request
// initiation; once the event stream is open, a mid-stream fault surfaces as
// an error event so no tool work is replayed.
func (c *Client) Stream(ctx context.Context, req *agent.ModelRequest) (*agent.ModelStream, error) {
	body := c.requestBody(req, true)

	var stream *agent.ModelStream
	err := c.withResilience(ctx, func() error {
		raw, err := c.doRequest(ctx, body)
		if err != nil {
			return err
		}
		stream = c.consumeSSE(ctx, raw)
		return nil
	})
	return stream, err
}

func (c *Client) withResilience(ctx context.Context, fn func() error) error {
	attempt := func() error {
		return resilience.RetryWithBackoff(ctx, resilience.RetryConfig{
			MaxRetries:  c.maxRetries,
			BaseDelay:   c.retryDelay,
			MaxDelay:    30 * time.Second,
			IsRetryable: retryable,
		}, fn)
	}
	if c.cb != nil {
		return c.cb.Execute(attempt)
	}
	return attempt()
}

func (c *Client) requestBody(req *agent.ModelRequest, stream bool) map[string]any {
	body := map[string]any{
		"model":      c.model,
		"max_tokens": c.maxTokens,
		"messages":   buildMessages(req.Messages),
	}
	if stream {
		body["stream"] = true
	}
	if req.System != "" {
		body["system"] = req.System
	}
	if len(req.Tools) > 0 {
		body["tools"] = req.Tools
	}
	return body
}

func (c *Client) doRequest(ctx context.Context, body map[string]any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("API error (%d): body read failed: %v", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, b)
	}
	return resp, nil
}

// consumeSSE reads the Messages SSE stream and translates raw provider
// events into agent.ModelEvents. Tool input fragments are forwarded as-is;
// the agent loop owns the accumulation.
func (c *Client) consumeSSE(ctx context.Context, resp *http.Response) *agent.ModelStream {
	events := make(chan agent.ModelEvent, 10)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		send := func(ev agent.ModelEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var (
			usage      agent.Usage
			stopReason string
			finished   bool
		)

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024) // 1MB max line

		for scanner.Scan() {
			data := extractSSEData(scanner.Text())
			if data == "" {
				continue
			}
			var raw rawEvent
			if json.Unmarshal([]byte(data), &raw) != nil {
				continue
			}

			switch raw.Type {
			case "message_start":
				if raw.Message != nil {
					usage.InputTokens = raw.Message.Usage.InputTokens
					usage.OutputTokens = raw.Message.Usage.OutputTokens
				}
			case "content_block_start":
				if raw.ContentBlock == nil {
					continue
				}
				ev := agent.ModelEvent{Type: agent.ModelBlockStart, BlockType: raw.ContentBlock.Type}
				if raw.ContentBlock.Type == agent.BlockToolUse {
					ev.ID = raw.ContentBlock.ID
					ev.Name = raw.ContentBlock.Name
				}
				if !send(ev) {
					return
				}
			case "content_block_delta":
				if raw.Delta == nil {
					continue
				}
				switch raw.Delta.Type {
				case "text_delta":
					if !send(agent.ModelEvent{Type: agent.ModelTextDelta, Text: raw.Delta.Text}) {
						return
					}
				case "input_json_delta":
					if !send(agent.ModelEvent{Type: agent.ModelInputDelta, PartialJSON: raw.Delta.PartialJSON}) {
						return
					}
				}
			case "content_block_stop":
				if !send(agent.ModelEvent{Type: agent.ModelBlockStop}) {
					return
				}
			case "message_delta":
				if raw.Delta != nil && raw.Delta.StopReason != "" {
					stopReason = raw.Delta.StopReason
				}
				if raw.Usage != nil {
					usage.OutputTokens += raw.Usage.OutputTokens
				}
			case "message_stop":
				if stopReason == "" {
					stopReason = agent.StopEndTurn
				}
				send(agent.ModelEvent{Type: agent.ModelDone, StopReason: stopReason, Usage: usage})
				finished = true
				return
			case "error":
				msg := "provider error"
				if raw.Error != nil && raw.Error.Message != "" {
					msg = raw.Error.Message
				}
				send(agent.ModelEvent{Err: fmt.Errorf("stream: %s", msg)})
				return
			}
		}

		if err := scanner.Err(); err != nil {
			send(agent.ModelEvent{Err: fmt.Errorf("stream read: %w", err)})
			return
		}
		// Stream closed without message_stop.
		if !finished {
			if stopReason == "" {
				stopReason = agent.StopEndTurn
			}
			send(agent.ModelEvent{Type: agent.ModelDone, StopReason: stopReason, Usage: usage})
		}
	}()

	return &agent.ModelStream{Events: events}
}

// --- wire shapes ---

type rawEvent struct {
	Type         string      `json:"type"`
	Message      *rawMessage `json:"message,omitempty"`
	ContentBlock *rawBlock   `json:"content_block,omitempty"`
	Delta        *rawDelta   `json:"delta,omitempty"`
	Usage        *rawUsage   `json:"usage,omitempty"`
	Error        *rawError   `json:"error,omitempty"`
}

type rawMessage struct {
	Usage rawUsage `json:"usage"`
}

type rawBlock struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type rawDelta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type rawUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type rawError struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Content []struct {
		Type  string         `json:"type"`
		Text  string         `json:"text,omitempty"`
		ID    string         `json:"id,omitempty"`
		Name  string         `json:"name,omitempty"`
		Input map[string]any `json:"input,omitempty"`
	} `json:"content"`
	StopReason string   `json:"stop_reason"`
	Usage      rawUsage `json:"usage"`
}

func parseMessage(data []byte) (*agent.ModelResponse, error) {
	var msg messageResponse
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	resp := &agent.ModelResponse{
		StopReason: msg.StopReason,
		Usage: agent.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case agent.BlockText:
			resp.Content = append(resp.Content, agent.TextBlock(block.Text))
		case agent.BlockToolUse:
			resp.Content = append(resp.Content, agent.ToolUseBlock(block.ID, block.Name, block.Input))
		}
	}
	return resp, nil
}

// buildMessages converts conversation turns into Messages API content maps.
func buildMessages(messages []agent.Message) []map[string]any {
	out := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		content := make([]map[string]any, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case agent.BlockText:
				if b.Text != "" {
					content = append(content, map[string]any{"type": "text", "text": b.Text})
				}
			case agent.BlockToolUse:
				input := b.Input
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, map[string]any{
					"type":  "tool_use",
					"id":    b.ID,
					"name":  b.Name,
					"input": input,
				})
			case agent.BlockToolResult:
				content = append(content, map[string]any{
					"type":        "tool_result",
					"tool_use_id": b.ToolUseID,
					"content":     b.Content,
					"is_error":    b.IsError,
				})
			}
		}
		if len(content) == 0 {
			content = append(content, map[string]any{"type": "text", "text": " "})
		}
		out = append(out, map[string]any{"role": m.Role, "content": content})
	}
	return out
}

func extractSSEData(line string) string {
	if strings.HasPrefix(line, "data: ") {
		return strings.TrimPrefix(line, "data: ")
	}
	if strings.HasPrefix(line, "data:") {
		return strings.TrimPrefix(line, "data:")
	}
	return ""
}

// retryable reports whether an error is worth retrying: transient network
// faults, rate limiting and server-side errors.
func retryable(err error) bool {
	s := err.Error()
	for _, p := range []string{"timeout", "connection refused", "connection reset"} {
		if strings.Contains(s, p) {
			return true
		}
	}
	if code := extractHTTPStatus(s); code > 0 {
		return code == http.StatusTooManyRequests || code >= 500
	}
	return false
}

func extractHTTPStatus(s string) int {
	prefix := "API error ("
	i := strings.Index(s, prefix)
	if i < 0 {
		return 0
	}
	rest := s[i+len(prefix):]
	end := strings.IndexByte(rest, ')')
	if end < 0 {
		return 0
	}
	code, _ := strconv.Atoi(rest[:end])
	return code
}
