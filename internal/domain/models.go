package domain

import (
	"encoding/json"
)

// =============================================================================
// Tool calling
// =============================================================================

// Direction says where a tool's result goes after the dispatcher returns it.
type Direction int

const (
	// ToServer feeds the result back to the upstream model as a new input
	// item so the model keeps generating.
	ToServer Direction = iota
	// ToClient delivers the result straight to the client connection without
	// an upstream round-trip.
	ToClient
)

func (d Direction) String() string {
	switch d {
	case ToServer:
		return "to_server"
	case ToClient:
		return "to_client"
	default:
		return "unknown"
	}
}

// ToolSchema is the function declaration sent to the upstream model in the
// session configuration. The shape matches the realtime API's tools array.
type ToolSchema struct {
	Type        string          `json:"type"` // always "function"
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is a completed tool-call request extracted from the upstream
// stream. Arguments is the raw JSON argument payload as emitted by the model.
type ToolCall struct {
	Name      string
	CallID    string
	Arguments json.RawMessage
}

// ToolResult is the outcome of one tool invocation. Output is the serialized
// payload that goes on the wire (plain text for search results, JSON for
// structured payloads). CallID correlates the result with its originating
// call; a single turn may carry several calls in flight.
type ToolResult struct {
	CallID    string
	Output    string
	Direction Direction
}

// Source is one knowledge-base entry returned for citation.
type Source struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// =============================================================================
// Order state
// =============================================================================

// OrderItem is one cart line. Items merge on (Item, Size).
type OrderItem struct {
	Item     string  `json:"item"`
	Size     string  `json:"size"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Display  string  `json:"display"`
}

// OrderSummary is derived from the current items on every mutation; it is
// never stored independently of them.
type OrderSummary struct {
	Items      []OrderItem `json:"items"`
	Total      float64     `json:"total"`
	Tax        float64     `json:"tax"`
	FinalTotal float64     `json:"finalTotal"`
}

// TranscriptEntry is one stored transcript line for a session.
type TranscriptEntry struct {
	SessionID string `json:"sessionId"`
	Role      string `json:"role"` // "user" | "assistant"
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// =============================================================================
// Configuration
// =============================================================================

type Config struct {
	Port        int
	StaticDir   string
	AuthToken   string // when set, the gateway requires Authorization: Bearer <AuthToken>
	DBURL       string // transcript store; empty disables it
	PromptPath  string // instructions override file; empty uses the built-in prompt
	LabelsPath  string // size→label table extension file; empty uses the built-in table
	Temperature float64

	Model  ModelConfig
	Search SearchConfig
	Speech SpeechConfig
}

// ModelConfig points at the upstream realtime model deployment.
type ModelConfig struct {
	Endpoint   string // e.g. https://myres.openai.azure.com
	Deployment string
	APIKey     string
	APIVersion string
}

// SearchConfig points at the search backend plus the index field mappings the
// tools need to build queries and read documents.
type SearchConfig struct {
	Endpoint              string
	Index                 string
	APIKey                string
	APIVersion            string
	SemanticConfiguration string
	IdentifierField       string
	TitleField            string
	ContentField          string
	EmbeddingField        string
	UseVectorQuery        bool
}

// SpeechConfig backs the single-call STT/TTS endpoints. All-empty means the
// endpoints are not mounted.
type SpeechConfig struct {
	Key            string
	Region         string
	Voice          string
	MiniEndpoint   string // Azure OpenAI resource hosting the rewrite model
	MiniDeployment string
	MiniAPIKey     string
}

// Enabled reports whether the speech endpoints should be served.
func (c SpeechConfig) Enabled() bool {
	return c.Key != "" && c.Region != ""
}
