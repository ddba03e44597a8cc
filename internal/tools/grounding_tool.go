package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"voicecart/internal/domain"
	"voicecart/internal/tooling"
)

// keyPattern restricts source identifiers to index key characters, so IDs
// can be interpolated into the lookup filter safely.
var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_=\-]+$`)

// SourceLookup is the slice of the search client the grounding tool needs.
type SourceLookup interface {
	LookupSources(ctx context.Context, ids []string) ([]domain.Source, error)
}

// GroundingInput is the argument payload for the report_grounding tool.
type GroundingInput struct {
	Sources []string `json:"sources" jsonschema_description:"List of source names from last statement actually used, do not include the ones not used to formulate a response"`
}

// groundingOutput is the payload delivered to the client for citation display.
type groundingOutput struct {
	Sources []domain.Source `json:"sources"`
}

// GroundingTool resolves cited source identifiers to their full content. The
// result bypasses the model and goes straight to the client (TO_CLIENT).
type GroundingTool struct {
	lookup SourceLookup
}

// NewGroundingTool returns the citation tool.
func NewGroundingTool(lookup SourceLookup) *GroundingTool {
	return &GroundingTool{lookup: lookup}
}

func (t *GroundingTool) Name() string { return "report_grounding" }

func (t *GroundingTool) Description() string {
	return "Report use of a source from the knowledge base as part of an answer (effectively, cite the source). Sources " +
		"appear in square brackets before each knowledge base passage. Always use this tool to cite sources when responding " +
		"with information from the knowledge base."
}

func (t *GroundingTool) Parameters() json.RawMessage {
	return tooling.GenerateSchema(GroundingInput{})
}

func (t *GroundingTool) Call(ctx context.Context, args json.RawMessage) (*domain.ToolResult, error) {
	var in GroundingInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("report_grounding arguments: %w", err)
	}
	for _, id := range in.Sources {
		if !keyPattern.MatchString(id) {
			return nil, fmt.Errorf("invalid source identifier %q", id)
		}
	}
	sources, err := t.lookup.LookupSources(ctx, in.Sources)
	if err != nil {
		return nil, err
	}
	if sources == nil {
		sources = []domain.Source{}
	}
	payload, err := json.Marshal(groundingOutput{Sources: sources})
	if err != nil {
		return nil, fmt.Errorf("report_grounding marshal: %w", err)
	}
	return &domain.ToolResult{Output: string(payload), Direction: domain.ToClient}, nil
}

var _ tooling.Tool = (*GroundingTool)(nil)
