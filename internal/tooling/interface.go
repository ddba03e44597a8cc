package tooling

import (
	"context"
	"encoding/json"

	"voicecart/internal/domain"
)

// Tool is a function the upstream model can call. Name/Description/Parameters
// form the declaration sent in the session configuration; Call executes the
// tool with the model's JSON arguments. The dispatcher validates arguments
// against Parameters before Call runs, so implementations may assume
// schema-valid input (but still get defensive unmarshalling for free).
type Tool interface {
	// Name returns the unique tool name used in function-calling (e.g. "search").
	Name() string
	// Description returns a human-readable description for the model.
	Description() string
	// Parameters returns the JSON Schema for the tool's argument object.
	Parameters() json.RawMessage
	// Call executes the tool. Side effects (network calls, ledger mutation)
	// are permitted. The returned result's CallID is filled in by the
	// dispatcher.
	Call(ctx context.Context, args json.RawMessage) (*domain.ToolResult, error)
}
