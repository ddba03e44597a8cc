// Package tools holds the tool implementations exposed to the upstream
// model: knowledge-base search, source citation, and order-cart mutation.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"voicecart/internal/domain"
	"voicecart/internal/tooling"
)

// Searcher is the slice of the search client the search tool needs.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// SearchInput is the argument payload for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema_description:"Search query"`
}

// SearchTool queries the knowledge base and returns the delimited result
// text; the result re-enters the model's reasoning stream (TO_SERVER).
type SearchTool struct {
	searcher Searcher
}

// NewSearchTool returns the knowledge-base search tool.
func NewSearchTool(searcher Searcher) *SearchTool {
	return &SearchTool{searcher: searcher}
}

func (t *SearchTool) Name() string { return "search" }

func (t *SearchTool) Description() string {
	return "Search the knowledge base. The knowledge base is in English, translate to and from English if " +
		"needed. Results are formatted as a source name first in square brackets, followed by the text " +
		"content, and a line with '-----' at the end of each result."
}

func (t *SearchTool) Parameters() json.RawMessage {
	return tooling.GenerateSchema(SearchInput{})
}

// Call runs the hybrid search. Backend failures propagate as errors wrapping
// domain.ErrSearchUnavailable; the dispatcher turns them into an in-band
// error result so the model narrates unavailability instead of the session
// failing.
func (t *SearchTool) Call(ctx context.Context, args json.RawMessage) (*domain.ToolResult, error) {
	var in SearchInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("search arguments: %w", err)
	}
	text, err := t.searcher.Search(ctx, in.Query)
	if err != nil {
		return nil, err
	}
	return &domain.ToolResult{Output: text, Direction: domain.ToServer}, nil
}

var _ tooling.Tool = (*SearchTool)(nil)
