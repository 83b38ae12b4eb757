package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// RunStream executes the same state machine as Run but yields progress
// incrementally. The returned channel delivers events in strict state-machine
// order and is closed after a terminal done or error event, or when ctx is
// canceled. The sequence is not restartable; call RunStream again for a
// fresh run.
func (a *Agent) RunStream(ctx context.Context, messages []Message) <-chan StreamEvent {
	events := make(chan StreamEvent, 16)
	go func() {
		defer close(events)
		a.runStream(ctx, messages, events)
	}()
	return events
}

func (a *Agent) runStream(ctx context.Context, messages []Message, events chan<- StreamEvent) {
	system := SystemPrompt(a.now())
	tools := a.registry.ModelSchemas()
	current := append([]Message(nil), messages...)

	emit := func(ev StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for i := 0; i < a.maxIterations; i++ {
		if !emit(StreamEvent{Type: EventState, State: StateThinking}) {
			return
		}

		stream, err := a.gateway.Stream(ctx, &ModelRequest{System: system, Tools: tools, Messages: current})
		if err != nil {
			emit(StreamEvent{Type: EventError, State: StateError, Content: err.Error()})
			return
		}

		turn, err := a.consumeTurn(ctx, stream, emit)
		if err != nil {
			emit(StreamEvent{Type: EventError, State: StateError, Content: err.Error()})
			return
		}

		if turn.stopReason != StopToolUse {
			emit(StreamEvent{Type: EventDone, State: StateCompleted})
			return
		}

		if len(turn.calls) > 0 {
			current = append(current, Message{Role: RoleAssistant, Content: turn.assistant})

			results := make([]ToolResult, 0, len(turn.calls))
			for _, call := range turn.calls {
				result := a.executeCall(ctx, call)
				results = append(results, result)
				r := result
				if !emit(StreamEvent{Type: EventToolResult, State: StateThinking, ToolResult: &r}) {
					return
				}
			}
			current = append(current, toolResultTurn(results))
		}
	}

	emit(StreamEvent{Type: EventError, State: StateError, Content: "Maximum iterations reached"})
}

// turn is the assembled outcome of one streamed model turn.
type turn struct {
	stopReason string
	assistant  []ContentBlock
	calls      []ToolCallRequest
}

// block accumulates one in-flight content block. Text and tool input arrive
// as fragments; tool input is parsed only once the block closes.
type block struct {
	kind  string
	id    string
	name  string
	text  strings.Builder
	input strings.Builder
}

// consumeTurn drains one model turn from the stream, emitting text_delta and
// tool_use events as content arrives.
func (a *Agent) consumeTurn(ctx context.Context, stream *ModelStream, emit func(StreamEvent) bool) (*turn, error) {
	t := &turn{}
	var current *block

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-stream.Events:
			if !ok {
				return nil, fmt.Errorf("model stream closed before completion")
			}
			if ev.Err != nil {
				return nil, ev.Err
			}

			switch ev.Type {
			case ModelBlockStart:
				current = &block{kind: ev.BlockType, id: ev.ID, name: ev.Name}

			case ModelTextDelta:
				if current != nil {
					current.text.WriteString(ev.Text)
				}
				if !emit(StreamEvent{Type: EventTextDelta, State: StateResponding, Content: ev.Text}) {
					return nil, ctx.Err()
				}

			case ModelInputDelta:
				if current != nil {
					current.input.WriteString(ev.PartialJSON)
				}

			case ModelBlockStop:
				if current == nil {
					continue
				}
				switch current.kind {
				case BlockText:
					if text := current.text.String(); text != "" {
						t.assistant = append(t.assistant, TextBlock(text))
					}
				case BlockToolUse:
					call := ToolCallRequest{
						ID:    current.id,
						Name:  current.name,
						Input: parseToolInput(current.input.String()),
					}
					t.calls = append(t.calls, call)
					t.assistant = append(t.assistant, ToolUseBlock(call.ID, call.Name, call.Input))
					c := call
					if !emit(StreamEvent{Type: EventToolUse, State: StateExecutingTool, ToolCall: &c}) {
						return nil, ctx.Err()
					}
				}
				current = nil

			case ModelDone:
				t.stopReason = ev.StopReason
				return t, nil
			}
		}
	}
}

// parseToolInput parses the concatenated partial-JSON fragments of a tool_use
// block. A fragment sequence that fails to parse yields an empty input rather
// than aborting the run; the tool then reports its own failure for missing
// parameters.
func parseToolInput(raw string) map[string]any {
	input := map[string]any{}
	if raw == "" {
		return input
	}
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return map[string]any{}
	}
	return input
}
