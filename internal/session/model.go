// Package session defines the conversation session model and its storage
// backends.
package session

import (
	"fmt"
	"time"

	"github.com/skyplanner/skyplanner/internal/agent"
)

// Session is a persisted conversation with its full message history.
type Session struct {
	ID          string    `json:"session_id" dynamodbav:"session_id"`
	Title       string    `json:"title,omitempty" dynamodbav:"title,omitempty"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" dynamodbav:"updated_at"`
	Messages    []Message `json:"messages" dynamodbav:"messages"`
	TotalTokens int       `json:"total_tokens" dynamodbav:"total_tokens"`
}

// Message is a single turn of the conversation. Assistant messages may carry
// the tool calls made while producing them.
type Message struct {
	Role      string     `json:"role" dynamodbav:"role"`
	Content   string     `json:"content" dynamodbav:"content"`
	Timestamp time.Time  `json:"timestamp" dynamodbav:"timestamp"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty" dynamodbav:"tool_calls,omitempty"`
}

// ToolCall records one tool invocation and its serialized result.
type ToolCall struct {
	ID     string         `json:"id" dynamodbav:"id"`
	Name   string         `json:"name" dynamodbav:"name"`
	Input  map[string]any `json:"input" dynamodbav:"input"`
	Result string         `json:"result,omitempty" dynamodbav:"result,omitempty"`
}

// ErrSessionNotFound is returned when a session does not exist.
type ErrSessionNotFound struct{ ID string }

func (e *ErrSessionNotFound) Error() string {
	return fmt.Sprintf("session %q not found", e.ID)
}

// MessagesForModel converts the stored history into model messages. Assistant
// turns that made tool calls are expanded back into the tool_use /
// tool_result block structure the model expects.
func (s *Session) MessagesForModel() []agent.Message {
	msgs := make([]agent.Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		switch m.Role {
		case agent.RoleUser:
			msgs = append(msgs, agent.UserText(m.Content))
		case agent.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				msgs = append(msgs, agent.Message{
					Role:    agent.RoleAssistant,
					Content: []agent.ContentBlock{agent.TextBlock(m.Content)},
				})
				continue
			}
			// Replay the tool round-trip so the model sees a valid
			// tool_use/tool_result pairing.
			var useBlocks []agent.ContentBlock
			var resultBlocks []agent.ContentBlock
			for _, tc := range m.ToolCalls {
				useBlocks = append(useBlocks, agent.ToolUseBlock(tc.ID, tc.Name, tc.Input))
				resultBlocks = append(resultBlocks, agent.ToolResultBlock(agent.ToolResult{
					ToolUseID: tc.ID,
					Content:   tc.Result,
				}))
			}
			msgs = append(msgs, agent.Message{Role: agent.RoleAssistant, Content: useBlocks})
			msgs = append(msgs, agent.Message{Role: agent.RoleUser, Content: resultBlocks})
			if m.Content != "" {
				msgs = append(msgs, agent.Message{
					Role:    agent.RoleAssistant,
					Content: []agent.ContentBlock{agent.TextBlock(m.Content)},
				})
			}
		}
	}
	return msgs
}

// Summary is the list-view projection of a session, without messages.
type Summary struct {
	ID           string    `json:"session_id"`
	Title        string    `json:"title,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	TotalTokens  int       `json:"total_tokens"`
}

// Summarize returns the session's list-view projection.
func (s *Session) Summarize() Summary {
	return Summary{
		ID:           s.ID,
		Title:        s.Title,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		MessageCount: len(s.Messages),
		TotalTokens:  s.TotalTokens,
	}
}
