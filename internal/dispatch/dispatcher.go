// Package dispatch connects the session relay to the tool registry. Every
// tool-call event the relay intercepts goes through Handle, which resolves
// the tool, validates the model's arguments against the declared schema, and
// invokes the handler. Failures never escape as errors: a live voice session
// must keep going, so anything that goes wrong becomes an in-band error
// result fed back to the model.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"voicecart/internal/domain"
	"voicecart/internal/tooling"
)

// Dispatcher invokes tools on behalf of relay sessions. Safe for concurrent
// use; a single turn may carry several calls in flight at once and each is
// handled independently.
type Dispatcher struct {
	registry *tooling.Registry
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher backed by the given registry. Panics if
// registry is nil. A nil logger falls back to slog.Default().
func NewDispatcher(registry *tooling.Registry, logger *slog.Logger) *Dispatcher {
	if registry == nil {
		panic("dispatch: registry must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Handle executes one tool call and always returns a result carrying the
// originating call ID. Unknown tools, invalid arguments, and handler
// failures are converted into a TO_SERVER result with a structured error
// payload so the model can recover conversationally.
func (d *Dispatcher) Handle(ctx context.Context, call domain.ToolCall) domain.ToolResult {
	tool, err := d.registry.Resolve(call.Name)
	if err != nil {
		d.logger.Warn("tool call for unregistered tool", "tool", call.Name, "call_id", call.CallID)
		return d.errorResult(call, err)
	}

	if err := tooling.ValidateAgainstSchema(call.Arguments, tool.Parameters()); err != nil {
		d.logger.Warn("tool arguments failed schema validation",
			"tool", call.Name, "call_id", call.CallID, "error", err)
		return d.errorResult(call, err)
	}

	result, err := tool.Call(ctx, call.Arguments)
	if err != nil {
		d.logger.Warn("tool call failed", "tool", call.Name, "call_id", call.CallID, "error", err)
		return d.errorResult(call, err)
	}

	result.CallID = call.CallID
	return *result
}

// errorOutput is the payload of a synthesized error result. The model's
// instructions tell it to narrate unavailability rather than read errors
// out loud.
type errorOutput struct {
	Error string `json:"error"`
	Tool  string `json:"tool"`
}

func (d *Dispatcher) errorResult(call domain.ToolCall, err error) domain.ToolResult {
	payload, merr := json.Marshal(errorOutput{Error: err.Error(), Tool: call.Name})
	if merr != nil {
		payload = []byte(`{"error":"tool invocation failed"}`)
	}
	return domain.ToolResult{
		CallID:    call.CallID,
		Output:    string(payload),
		Direction: domain.ToServer,
	}
}
