package session

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/skyplanner/skyplanner/internal/agent"
)

const titlePrompt = `Generate a short, descriptive title (maximum 50 characters) for a conversation that starts with the following user message. Respond with the title only, no quotes, no explanation. Use the same language as the message.`

const maxTitleLen = 50

// TitleGenerator produces short session titles from the first user message.
// A cheap, fast model is used; failures fall back to truncating the message.
type TitleGenerator struct {
	gateway agent.Gateway
}

// NewTitleGenerator creates a title generator backed by the given gateway.
func NewTitleGenerator(gateway agent.Gateway) *TitleGenerator {
	return &TitleGenerator{gateway: gateway}
}

// Generate returns a title for the given first message. It never fails: on
// any error the message itself is truncated into a title.
func (g *TitleGenerator) Generate(ctx context.Context, firstMessage string) string {
	resp, err := g.gateway.Complete(ctx, &agent.ModelRequest{
		System:   titlePrompt,
		Messages: []agent.Message{agent.UserText(firstMessage)},
	})
	if err != nil {
		log.Warn().Err(err).Msg("title generation failed, using fallback")
		return fallbackTitle(firstMessage)
	}

	title := ""
	for _, block := range resp.Content {
		if block.Type == agent.BlockText {
			title = strings.TrimSpace(block.Text)
			break
		}
	}
	if title == "" {
		return fallbackTitle(firstMessage)
	}
	title = strings.Trim(title, `"`)
	if len([]rune(title)) > maxTitleLen {
		title = string([]rune(title)[:maxTitleLen])
	}
	return title
}

func fallbackTitle(msg string) string {
	msg = strings.TrimSpace(msg)
	runes := []rune(msg)
	if len(runes) <= maxTitleLen {
		return msg
	}
	return string(runes[:maxTitleLen-3]) + "..."
}
