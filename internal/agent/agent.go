// Package agent implements the tool-using reasoning loop: it drives repeated
// model gateway calls, executes requested tools through the registry, folds
// results back into the conversation and terminates on a final answer or the
// iteration cap. The loop is offered in a blocking mode (Run) and a streaming
// mode (RunStream); both observe the same state machine.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultMaxIterations bounds the number of model round-trips per run.
const DefaultMaxIterations = 10

const maxIterationsMessage = "I apologize, but I reached the maximum number of steps. Please try simplifying your request."

// Option configures an Agent.
type Option func(*Agent)

// WithMaxIterations overrides the model round-trip cap.
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithClock overrides the time source used for the date-contextualized
// system prompt. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// Agent drives one conversation with the model. A fresh instance is cheap;
// use one per run so concurrent chats share no mutable state.
type Agent struct {
	gateway       Gateway
	registry      *Registry
	maxIterations int
	now           func() time.Time
}

// New creates an agent over the given gateway and tool registry.
func New(gateway Gateway, registry *Registry, opts ...Option) *Agent {
	a := &Agent{
		gateway:       gateway,
		registry:      registry,
		maxIterations: DefaultMaxIterations,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes the agent loop to completion and returns the collected result.
// Tool faults never abort the run; only gateway transport errors propagate.
func (a *Agent) Run(ctx context.Context, messages []Message) (*Result, error) {
	system := SystemPrompt(a.now())
	tools := a.registry.ModelSchemas()

	var (
		allCalls   []ToolCallRequest
		allResults []ToolResult
		total      int
	)
	current := append([]Message(nil), messages...)

	for i := 0; i < a.maxIterations; i++ {
		resp, err := a.gateway.Complete(ctx, &ModelRequest{System: system, Tools: tools, Messages: current})
		if err != nil {
			return nil, fmt.Errorf("gateway call: %w", err)
		}
		total += resp.Usage.Total()

		if resp.StopReason != StopToolUse {
			return &Result{
				Content:     firstText(resp.Content),
				ToolCalls:   allCalls,
				ToolResults: allResults,
				State:       StateCompleted,
				TokensUsed:  total,
			}, nil
		}

		assistant := Message{Role: RoleAssistant}
		var turnCalls []ToolCallRequest
		for _, block := range resp.Content {
			switch block.Type {
			case BlockText:
				assistant.Content = append(assistant.Content, TextBlock(block.Text))
			case BlockToolUse:
				call := ToolCallRequest{ID: block.ID, Name: block.Name, Input: block.Input}
				turnCalls = append(turnCalls, call)
				allCalls = append(allCalls, call)
				assistant.Content = append(assistant.Content, ToolUseBlock(call.ID, call.Name, call.Input))
			}
		}
		current = append(current, assistant)

		// Tools run one after another, in the order the model emitted them.
		results := make([]ToolResult, 0, len(turnCalls))
		for _, call := range turnCalls {
			result := a.executeCall(ctx, call)
			allResults = append(allResults, result)
			results = append(results, result)
		}
		current = append(current, toolResultTurn(results))
	}

	return &Result{
		Content:     maxIterationsMessage,
		ToolCalls:   allCalls,
		ToolResults: allResults,
		State:       StateError,
		TokensUsed:  total,
	}, nil
}

// executeCall converts a tool call into a ToolResult no matter how the tool
// fails. Errors and panics become error results the model can react to; this
// boundary itself never fails.
func (a *Agent) executeCall(ctx context.Context, call ToolCallRequest) (result ToolResult) {
	defer func() {
		if rv := recover(); rv != nil {
			result = errorResult(call.ID, fmt.Sprintf("panic: %v", rv))
		}
	}()

	out, err := a.registry.Execute(ctx, call.Name, call.Input)
	if err != nil {
		return errorResult(call.ID, err.Error())
	}

	content, err := json.Marshal(out)
	if err != nil {
		return errorResult(call.ID, fmt.Sprintf("serialize result: %v", err))
	}

	// Only an explicit success=false marks an error; an absent field does not.
	isError := false
	if success, ok := out["success"].(bool); ok && !success {
		isError = true
	}
	return ToolResult{ToolUseID: call.ID, Content: string(content), IsError: isError}
}

func errorResult(toolUseID, msg string) ToolResult {
	content, _ := json.Marshal(map[string]string{"error": msg})
	return ToolResult{ToolUseID: toolUseID, Content: string(content), IsError: true}
}

// toolResultTurn folds a turn's results into a single user message, so the
// next gateway call sees them after the assistant turn that requested them.
func toolResultTurn(results []ToolResult) Message {
	msg := Message{Role: RoleUser}
	for _, r := range results {
		msg.Content = append(msg.Content, ToolResultBlock(r))
	}
	return msg
}

func firstText(blocks []ContentBlock) string {
	for _, b := range blocks {
		if b.Type == BlockText {
			return b.Text
		}
	}
	return ""
}
