package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skyplanner/skyplanner/internal/agent"
)

const defaultSearchBaseURL = "https://api.tavily.com"

const maxSearchResults = 10

// SearchTool queries the Tavily web search API for events, venues and
// general recommendations.
type SearchTool struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewSearchTool creates the web search tool with the given Tavily key.
func NewSearchTool(apiKey string) *SearchTool {
	return &SearchTool{
		apiKey:     apiKey,
		baseURL:    defaultSearchBaseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

func (t *SearchTool) Name() string { return "web_search" }

func (t *SearchTool) Description() string {
	return "Search the web for local events, activities, restaurants and recommendations. Returns ranked results with snippets and, when available, a short synthesized answer."
}

func (t *SearchTool) Parameters() map[string]agent.Param {
	return map[string]agent.Param{
		"query": {
			Type:        "string",
			Description: "Search query",
		},
		"search_depth": {
			Type:        "string",
			Description: "Search thoroughness",
			Enum:        []string{"basic", "advanced"},
			Default:     "basic",
		},
		"max_results": {
			Type:        "integer",
			Description: "Maximum number of results (1-10)",
			Default:     5,
		},
	}
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	if t.apiKey == "" {
		return map[string]any{
			"success": false,
			"error":   "web search is not configured",
		}, nil
	}

	query, ok := agent.GetString(args, "query")
	if !ok || query == "" {
		return map[string]any{
			"success": false,
			"error":   "query is required",
		}, nil
	}
	depth := agent.GetStringDefault(args, "search_depth", "basic")
	if depth != "basic" && depth != "advanced" {
		depth = "basic"
	}
	maxResults := agent.GetIntDefault(args, "max_results", 5)
	if maxResults < 1 {
		maxResults = 1
	}
	if maxResults > maxSearchResults {
		maxResults = maxSearchResults
	}

	body, err := json.Marshal(map[string]any{
		"api_key":        t.apiKey,
		"query":          query,
		"search_depth":   depth,
		"max_results":    maxResults,
		"include_answer": true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("search API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]map[string]any, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, map[string]any{
			"title":   r.Title,
			"url":     r.URL,
			"content": r.Content,
			"score":   r.Score,
		})
	}

	out := map[string]any{
		"success": true,
		"query":   query,
		"results": results,
	}
	if parsed.Answer != "" {
		out["answer"] = parsed.Answer
	}
	return out, nil
}
