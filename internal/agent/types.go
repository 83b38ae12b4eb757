package agent

// State is the externally observable phase of an agent run.
type State string

const (
	StateIdle          State = "idle"
	StateThinking      State = "thinking"
	StateExecutingTool State = "executing_tool"
	StateResponding    State = "responding"
	StateCompleted     State = "completed"
	StateError         State = "error"
)

// ToolCallRequest is a model-issued request to invoke a tool. The agent loop
// never creates these itself, it only forwards what the gateway produced.
type ToolCallRequest struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResult is the outcome of executing a ToolCallRequest. Content is the
// serialized result payload, success or error alike, so the model can read it.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error"`
}

// Result is the terminal outcome of a synchronous run: the final answer text,
// every tool call and result collected across all iterations, the terminal
// state, and the accumulated token usage.
type Result struct {
	Content     string            `json:"content"`
	ToolCalls   []ToolCallRequest `json:"tool_calls"`
	ToolResults []ToolResult      `json:"tool_results"`
	State       State             `json:"state"`
	TokensUsed  int               `json:"tokens_used"`
}

// EventType tags a StreamEvent variant.
type EventType string

const (
	EventState      EventType = "state"
	EventTextDelta  EventType = "text_delta"
	EventToolUse    EventType = "tool_use"
	EventToolResult EventType = "tool_result"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

// StreamEvent is one incrementally observable unit of progress during a
// streaming run. Only the fields relevant to the event type are set.
type StreamEvent struct {
	Type       EventType        `json:"event_type"`
	State      State            `json:"state"`
	Content    string           `json:"content,omitempty"`
	ToolCall   *ToolCallRequest `json:"tool_call,omitempty"`
	ToolResult *ToolResult      `json:"tool_result,omitempty"`
}
