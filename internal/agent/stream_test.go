package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textTurn(fragments ...string) []ModelEvent {
	events := []ModelEvent{{Type: ModelBlockStart, BlockType: BlockText}}
	for _, f := range fragments {
		events = append(events, ModelEvent{Type: ModelTextDelta, Text: f})
	}
	events = append(events,
		ModelEvent{Type: ModelBlockStop},
		ModelEvent{Type: ModelDone, StopReason: StopEndTurn},
	)
	return events
}

func toolUseTurn(id, name string, inputFragments ...string) []ModelEvent {
	events := []ModelEvent{{Type: ModelBlockStart, BlockType: BlockToolUse, ID: id, Name: name}}
	for _, f := range inputFragments {
		events = append(events, ModelEvent{Type: ModelInputDelta, PartialJSON: f})
	}
	events = append(events,
		ModelEvent{Type: ModelBlockStop},
		ModelEvent{Type: ModelDone, StopReason: StopToolUse},
	)
	return events
}

func collect(ch <-chan StreamEvent) []StreamEvent {
	var events []StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestRunStreamTextOnly(t *testing.T) {
	gw := &scriptedGateway{turns: [][]ModelEvent{textTurn("It will ", "be sunny.")}}
	a := New(gw, NewRegistry())

	events := collect(a.RunStream(context.Background(), []Message{UserText("Weather?")}))

	require.NotEmpty(t, events)
	assert.Equal(t, EventState, events[0].Type)
	assert.Equal(t, StateThinking, events[0].State)

	var text strings.Builder
	for _, ev := range events {
		if ev.Type == EventTextDelta {
			assert.Equal(t, StateResponding, ev.State)
			text.WriteString(ev.Content)
		}
	}
	assert.Equal(t, "It will be sunny.", text.String())

	last := events[len(events)-1]
	assert.Equal(t, EventDone, last.Type)
	assert.Equal(t, StateCompleted, last.State)
}

func TestRunStreamToolFlow(t *testing.T) {
	gw := &scriptedGateway{turns: [][]ModelEvent{
		toolUseTurn("t1", "get_weather_forecast", `{"city":`, `"Seoul"}`),
		textTurn("Expect rain."),
	}}
	tool := &fakeTool{
		name: "get_weather_forecast",
		fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"success": true, "condition": "Rain"}, nil
		},
	}
	registry := NewRegistry()
	registry.Register(tool)

	events := collect(New(gw, registry).RunStream(context.Background(), []Message{UserText("Weather in Seoul?")}))

	var toolUseIdx, toolResultIdx = -1, -1
	for i, ev := range events {
		switch ev.Type {
		case EventToolUse:
			toolUseIdx = i
			require.NotNil(t, ev.ToolCall)
			assert.Equal(t, "t1", ev.ToolCall.ID)
			assert.Equal(t, StateExecutingTool, ev.State)
			// Partial JSON fragments must be reassembled before parsing.
			assert.Equal(t, map[string]any{"city": "Seoul"}, ev.ToolCall.Input)
		case EventToolResult:
			toolResultIdx = i
			require.NotNil(t, ev.ToolResult)
			assert.Equal(t, "t1", ev.ToolResult.ToolUseID)
			assert.False(t, ev.ToolResult.IsError)
		}
	}
	require.GreaterOrEqual(t, toolUseIdx, 0, "expected a tool_use event")
	require.GreaterOrEqual(t, toolResultIdx, 0, "expected a tool_result event")
	assert.Less(t, toolUseIdx, toolResultIdx, "tool_use must precede tool_result")

	require.Len(t, tool.calls, 1)
	assert.Equal(t, map[string]any{"city": "Seoul"}, tool.calls[0])

	last := events[len(events)-1]
	assert.Equal(t, EventDone, last.Type)
	assert.Equal(t, StateCompleted, last.State)
}

func TestRunStreamMalformedToolInput(t *testing.T) {
	gw := &scriptedGateway{turns: [][]ModelEvent{
		toolUseTurn("t1", "probe", `{"city": "Seo`),
		textTurn("done"),
	}}
	tool := &fakeTool{
		name: "probe",
		fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"success": true}, nil
		},
	}
	registry := NewRegistry()
	registry.Register(tool)

	events := collect(New(gw, registry).RunStream(context.Background(), []Message{UserText("hi")}))

	// The run still completes; the tool sees an empty input map.
	require.Len(t, tool.calls, 1)
	assert.Equal(t, map[string]any{}, tool.calls[0])
	assert.Equal(t, EventDone, events[len(events)-1].Type)
}

func TestRunStreamMaxIterations(t *testing.T) {
	const maxIter = 2
	var turns [][]ModelEvent
	for i := 0; i < maxIter; i++ {
		turns = append(turns, toolUseTurn("t1", "loop", `{}`))
	}
	gw := &scriptedGateway{turns: turns}
	tool := &fakeTool{
		name: "loop",
		fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"success": true}, nil
		},
	}
	registry := NewRegistry()
	registry.Register(tool)

	events := collect(New(gw, registry, WithMaxIterations(maxIter)).RunStream(context.Background(), []Message{UserText("hi")}))

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, StateError, last.State)
	assert.Equal(t, "Maximum iterations reached", last.Content)
}

func TestRunStreamGatewayError(t *testing.T) {
	gw := &scriptedGateway{err: errors.New("connection refused")}
	events := collect(New(gw, NewRegistry()).RunStream(context.Background(), []Message{UserText("hi")}))

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Contains(t, last.Content, "connection refused")
}

func TestRunStreamMatchesRunResult(t *testing.T) {
	makeTool := func() (*Registry, *fakeTool) {
		tool := &fakeTool{
			name: "get_weather_forecast",
			fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				return map[string]any{"success": true, "condition": "Rain"}, nil
			},
		}
		registry := NewRegistry()
		registry.Register(tool)
		return registry, tool
	}

	blockingGW := &scriptedGateway{responses: []*ModelResponse{
		toolUseResponse("t1", "get_weather_forecast", map[string]any{"city": "Seoul"}),
		textResponse("Expect rain."),
	}}
	blockingReg, _ := makeTool()
	result, err := New(blockingGW, blockingReg).Run(context.Background(), []Message{UserText("Weather?")})
	require.NoError(t, err)

	streamGW := &scriptedGateway{turns: [][]ModelEvent{
		toolUseTurn("t1", "get_weather_forecast", `{"city":"Seoul"}`),
		textTurn("Expect rain."),
	}}
	streamReg, _ := makeTool()
	events := collect(New(streamGW, streamReg).RunStream(context.Background(), []Message{UserText("Weather?")}))

	var text strings.Builder
	for _, ev := range events {
		if ev.Type == EventTextDelta {
			text.WriteString(ev.Content)
		}
	}
	assert.Equal(t, result.Content, text.String())
	assert.Equal(t, EventDone, events[len(events)-1].Type)
}
