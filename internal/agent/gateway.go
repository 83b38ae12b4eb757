package agent

import "context"

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block kinds, following the Anthropic Messages content shape.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Stop reasons reported by the gateway.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
)

// Message is one conversation turn: a role paired with content blocks. Turns
// are passed through in whatever order the caller supplies them.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a tagged union over text, tool_use and tool_result blocks.
// Only the fields for the block's Type are meaningful.
type ContentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock builds a tool_use content block. A nil input is normalized to
// an empty map so it serializes as an object.
func ToolUseBlock(id, name string, input map[string]any) ContentBlock {
	if input == nil {
		input = map[string]any{}
	}
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock builds a tool_result content block from a ToolResult.
func ToolResultBlock(r ToolResult) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: r.ToolUseID, Content: r.Content, IsError: r.IsError}
}

// UserText builds a user turn containing a single text block.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// Usage is the token accounting for one gateway call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// ModelRequest is one gateway invocation: system prompt, advertised tools and
// the conversation so far.
type ModelRequest struct {
	System   string
	Tools    []ToolSchema
	Messages []Message
}

// ModelResponse is a complete model turn.
type ModelResponse struct {
	StopReason string
	Content    []ContentBlock
	Usage      Usage
}

// ModelEventType tags an event on a model stream.
type ModelEventType string

const (
	ModelBlockStart ModelEventType = "block_start"
	ModelTextDelta  ModelEventType = "text_delta"
	ModelInputDelta ModelEventType = "input_delta"
	ModelBlockStop  ModelEventType = "block_stop"
	ModelDone       ModelEventType = "done"
)

// ModelEvent is one incremental unit of a streamed model turn. Tool input
// arrives as partial JSON fragments that must be concatenated and parsed at
// block close; one event never guarantees one complete value.
type ModelEvent struct {
	Type        ModelEventType
	BlockType   string // at block_start: BlockText or BlockToolUse
	ID          string // tool_use block id, at block_start
	Name        string // tool_use block name, at block_start
	Text        string // text fragment, at text_delta
	PartialJSON string // input fragment, at input_delta
	StopReason  string // at done
	Usage       Usage  // at done
	Err         error
}

// ModelStream delivers the events of one streamed model turn in order. The
// channel is closed after the terminal done event or an error.
type ModelStream struct {
	Events <-chan ModelEvent
}

// Gateway is the model provider boundary: one blocking call and one streaming
// variant over the same request shape. Transport faults are returned to the
// caller; the agent loop does not retry them.
type Gateway interface {
	Complete(ctx context.Context, req *ModelRequest) (*ModelResponse, error)
	Stream(ctx context.Context, req *ModelRequest) (*ModelStream, error)
}
