package relay

import "encoding/json"

// Event type discriminators of the upstream realtime protocol. The envelope
// shape ({"type": ...} plus type-specific fields) is owned by the upstream
// service; these strings must match its documented schema exactly.
const (
	eventSessionUpdate  = "session.update"
	eventSessionCreated = "session.created"
	eventSessionUpdated = "session.updated"

	eventConversationItemCreate  = "conversation.item.create"
	eventConversationItemCreated = "conversation.item.created"

	eventResponseCreate          = "response.create"
	eventResponseDone            = "response.done"
	eventResponseOutputItemAdded = "response.output_item.added"
	eventResponseOutputItemDone  = "response.output_item.done"

	eventFunctionCallArgsDelta = "response.function_call_arguments.delta"
	eventFunctionCallArgsDone  = "response.function_call_arguments.done"

	eventInputTranscriptionDone = "conversation.item.input_audio_transcription.completed"
	eventAudioTranscriptDone    = "response.audio_transcript.done"

	// eventToolResponse is the one event this middle tier adds on top of the
	// upstream schema: a tool result delivered straight to the client.
	eventToolResponse = "extension.middle_tier_tool_response"
)

const itemTypeFunctionCall = "function_call"

// envelope extracts only the discriminator; untouched events are forwarded
// as their original raw bytes so unknown fields survive the relay.
type envelope struct {
	Type string `json:"type"`
}

// item is the subset of a conversation/output item the relay inspects.
type item struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	CallID    string `json:"call_id"`
	Arguments string `json:"arguments"`
}

// itemEvent covers conversation.item.created, response.output_item.added and
// response.output_item.done.
type itemEvent struct {
	Type           string `json:"type"`
	PreviousItemID string `json:"previous_item_id"`
	Item           item   `json:"item"`
}

// transcriptEvent covers the two completed-transcript events.
type transcriptEvent struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}

// sessionUpdateEvent is the server-owned session configuration sent upstream.
type sessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Instructions string          `json:"instructions"`
	Temperature  float64         `json:"temperature"`
	ToolChoice   string          `json:"tool_choice"`
	Tools        json.RawMessage `json:"tools"`
}

// itemCreateEvent injects a function call output back into the upstream
// input stream.
type itemCreateEvent struct {
	Type string     `json:"type"`
	Item outputItem `json:"item"`
}

type outputItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// toolResponseEvent carries a TO_CLIENT tool result to the client, bypassing
// the model.
type toolResponseEvent struct {
	Type           string `json:"type"`
	PreviousItemID string `json:"previous_item_id"`
	ToolName       string `json:"tool_name"`
	ToolResult     string `json:"tool_result"`
}
