package tooling

import (
	"encoding/json"
	"fmt"

	invopopSchema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// GenerateSchema generates a JSON Schema from a Go struct using
// invopop/jsonschema reflection. Fields tagged `json:"...,omitempty"` are
// optional; everything else is required and additional properties are
// rejected.
func GenerateSchema(input any) json.RawMessage {
	reflector := invopopSchema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(input)

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	return raw
}

// ValidateAgainstSchema validates JSON input against a JSON Schema document.
func ValidateAgainstSchema(input json.RawMessage, schema json.RawMessage) error {
	compiled, err := jsonschema.CompileString("", string(schema))
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	var inputData any
	if err := json.Unmarshal(input, &inputData); err != nil {
		return fmt.Errorf("invalid JSON input: %w", err)
	}

	if err := compiled.Validate(inputData); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}
