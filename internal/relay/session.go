package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"voicecart/internal/dispatch"
	"voicecart/internal/domain"
	"voicecart/internal/tooling"
)

// State is the session lifecycle position. Interception is per-call, not a
// session-wide state: other forwarding continues while a call is in flight.
type State int32

const (
	StateConnecting State = iota
	StateConfigured
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConfigured:
		return "configured"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TranscriptRecorder receives completed transcript lines. Implementations
// must be safe for concurrent use across sessions.
type TranscriptRecorder interface {
	Append(sessionID, role, content string) error
}

// SessionConfig carries the server-owned session configuration. Instructions
// is a func so a hot-reloaded prompt takes effect on the next session.
type SessionConfig struct {
	Instructions func() string
	Temperature  float64
}

// Session owns one client connection and one upstream connection and relays
// between them: ordinary events pass through untouched, tool-call events are
// intercepted, dispatched, and their results routed by direction. Lifetime
// is bounded by either side disconnecting; there is no reconnect.
type Session struct {
	id         string
	client     *websocket.Conn
	upstream   *websocket.Conn
	registry   *tooling.Registry
	dispatcher *dispatch.Dispatcher
	cfg        SessionConfig
	recorder   TranscriptRecorder
	logger     *slog.Logger

	state  atomic.Int32
	closed atomic.Bool

	// Each connection has a dedicated write mutex so pumps and dispatch
	// goroutines can write concurrently without interleaving frames.
	clientMu   sync.Mutex
	upstreamMu sync.Mutex

	// pending maps call_id to the previous_item_id announced when the call
	// item was created, so TO_CLIENT results can anchor themselves in the
	// client's conversation view.
	pendingMu sync.Mutex
	pending   map[string]string

	dispatches sync.WaitGroup
}

// NewSession wires a session over an accepted client connection and a dialed
// upstream connection. Run must be called exactly once.
func NewSession(id string, client, upstream *websocket.Conn, registry *tooling.Registry,
	dispatcher *dispatch.Dispatcher, cfg SessionConfig, recorder TranscriptRecorder,
	logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:         id,
		client:     client,
		upstream:   upstream,
		registry:   registry,
		dispatcher: dispatcher,
		cfg:        cfg,
		recorder:   recorder,
		logger:     logger.With("session", id),
		pending:    make(map[string]string),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Run configures the upstream session and relays until either connection
// closes. It always tears down both connections before returning; in-flight
// tool dispatches are cancelled via ctx and their late writes discarded.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.configure(); err != nil {
		s.shutdown()
		s.setState(StateClosed)
		return fmt.Errorf("session configure: %w", err)
	}

	errc := make(chan error, 2)
	go func() { errc <- s.pumpClient() }()
	go func() { errc <- s.pumpUpstream(ctx) }()

	err := <-errc
	s.shutdown()
	cancel()
	<-errc
	s.dispatches.Wait()
	s.setState(StateClosed)

	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Info("session ended", "reason", err)
	}
	return nil
}

// configure sends the server-owned session configuration upstream. The
// client never controls instructions, temperature, or the tool surface.
func (s *Session) configure() error {
	tools, err := json.Marshal(s.registry.Schemas())
	if err != nil {
		return fmt.Errorf("marshal tool schemas: %w", err)
	}
	ev := sessionUpdateEvent{
		Type: eventSessionUpdate,
		Session: sessionConfig{
			Instructions: s.cfg.Instructions(),
			Temperature:  s.cfg.Temperature,
			ToolChoice:   s.toolChoice(),
			Tools:        tools,
		},
	}
	if err := s.writeUpstream(ev); err != nil {
		return err
	}
	s.setState(StateConfigured)
	return nil
}

func (s *Session) toolChoice() string {
	if s.registry.Len() > 0 {
		return "auto"
	}
	return "none"
}

// shutdown closes both connections once. Subsequent writes are discarded.
func (s *Session) shutdown() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.client.Close()
	s.upstream.Close()
}

// =============================================================================
// Forwarding pumps
// =============================================================================

// pumpClient forwards client frames upstream in arrival order. The only
// event touched is session.update: configuration is server-owned, so the
// protected fields are overwritten before the event travels on.
func (s *Session) pumpClient() error {
	for {
		_, raw, err := s.client.ReadMessage()
		if err != nil {
			return fmt.Errorf("client read: %w", err)
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.logger.Warn("dropping malformed client frame", "error", err)
			continue
		}
		if env.Type == eventSessionUpdate {
			rewritten, err := s.rewriteSessionUpdate(raw)
			if err != nil {
				s.logger.Warn("dropping unrewritable session.update", "error", err)
				continue
			}
			raw = rewritten
		}
		if err := s.writeRaw(s.upstream, &s.upstreamMu, raw); err != nil {
			return fmt.Errorf("upstream write: %w", err)
		}
	}
}

// pumpUpstream forwards upstream frames to the client in arrival order,
// intercepting tool-call events and scrubbing configuration echoes.
func (s *Session) pumpUpstream(ctx context.Context) error {
	for {
		_, raw, err := s.upstream.ReadMessage()
		if err != nil {
			return fmt.Errorf("upstream read: %w", err)
		}
		out := s.routeUpstream(ctx, raw)
		if out == nil {
			continue
		}
		if err := s.writeRaw(s.client, &s.clientMu, out); err != nil {
			return fmt.Errorf("client write: %w", err)
		}
	}
}

// routeUpstream decides what one upstream frame becomes: nil suppresses it,
// otherwise the returned bytes are forwarded to the client. Unknown event
// kinds pass through as their original bytes.
func (s *Session) routeUpstream(ctx context.Context, raw []byte) []byte {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// Not ours to understand; the client may know better.
		return raw
	}

	switch env.Type {
	case eventSessionCreated, eventSessionUpdated:
		if s.State() == StateConfigured {
			s.setState(StateStreaming)
		}
		return s.scrubSessionEvent(raw)

	case eventConversationItemCreated:
		var ev itemEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return raw
		}
		switch ev.Item.Type {
		case itemTypeFunctionCall:
			s.rememberPending(ev.Item.CallID, ev.PreviousItemID)
			return nil
		case "function_call_output":
			return nil
		}
		return raw

	case eventResponseOutputItemAdded:
		var ev itemEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return raw
		}
		if ev.Item.Type == itemTypeFunctionCall {
			return nil
		}
		return raw

	case eventFunctionCallArgsDelta, eventFunctionCallArgsDone:
		return nil

	case eventResponseOutputItemDone:
		var ev itemEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return raw
		}
		if ev.Item.Type == itemTypeFunctionCall {
			s.intercept(ctx, ev)
			return nil
		}
		return raw

	case eventResponseDone:
		return s.stripFunctionCalls(raw)

	case eventInputTranscriptionDone:
		s.record("user", raw)
		return raw

	case eventAudioTranscriptDone:
		s.record("assistant", raw)
		return raw
	}

	return raw
}

// =============================================================================
// Tool-call interception
// =============================================================================

// intercept dispatches one completed tool call without blocking the pump.
// The session stays in STREAMING for all other traffic.
func (s *Session) intercept(ctx context.Context, ev itemEvent) {
	call := domain.ToolCall{
		Name:      ev.Item.Name,
		CallID:    ev.Item.CallID,
		Arguments: json.RawMessage(ev.Item.Arguments),
	}
	s.dispatches.Add(1)
	go func() {
		defer s.dispatches.Done()
		result := s.dispatcher.Handle(ctx, call)
		s.deliver(result, ev.Item.Name)
	}()
}

// deliver routes a tool result by its direction. Write failures after close
// are discarded; a dispatch outliving its session must never crash the
// process.
func (s *Session) deliver(result domain.ToolResult, toolName string) {
	switch result.Direction {
	case domain.ToServer:
		// The anchor is only needed for client-bound results; drop it so the
		// map does not grow for the session's lifetime.
		s.takePending(result.CallID)
		out := itemCreateEvent{
			Type: eventConversationItemCreate,
			Item: outputItem{Type: "function_call_output", CallID: result.CallID, Output: result.Output},
		}
		if err := s.writeUpstream(out); err != nil {
			s.logger.Warn("tool result dropped", "tool", toolName, "error", err)
			return
		}
		if err := s.writeUpstream(envelope{Type: eventResponseCreate}); err != nil {
			s.logger.Warn("response.create dropped", "tool", toolName, "error", err)
		}

	case domain.ToClient:
		// Resolve the model's pending call with an empty output, then hand
		// the real payload straight to the client.
		out := itemCreateEvent{
			Type: eventConversationItemCreate,
			Item: outputItem{Type: "function_call_output", CallID: result.CallID},
		}
		if err := s.writeUpstream(out); err != nil {
			s.logger.Warn("tool call resolution dropped", "tool", toolName, "error", err)
		}
		if err := s.writeUpstream(envelope{Type: eventResponseCreate}); err != nil {
			s.logger.Warn("response.create dropped", "tool", toolName, "error", err)
		}
		ev := toolResponseEvent{
			Type:           eventToolResponse,
			PreviousItemID: s.takePending(result.CallID),
			ToolName:       toolName,
			ToolResult:     result.Output,
		}
		if err := s.writeClient(ev); err != nil {
			s.logger.Warn("tool response dropped", "tool", toolName, "error", err)
		}

	default:
		s.logger.Error("tool result with unroutable direction",
			"tool", toolName, "direction", result.Direction)
	}
}

func (s *Session) rememberPending(callID, previousItemID string) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending[callID] = previousItemID
}

func (s *Session) takePending(callID string) string {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	prev := s.pending[callID]
	delete(s.pending, callID)
	return prev
}

// =============================================================================
// Event rewriting
// =============================================================================

// rewriteSessionUpdate overwrites the server-owned fields of a client
// session.update. Client-owned knobs (voice, turn detection, audio formats)
// pass through untouched; the configuration channel is not a way in for
// prompt injection.
func (s *Session) rewriteSessionUpdate(raw []byte) ([]byte, error) {
	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	session, ok := msg["session"].(map[string]any)
	if !ok {
		session = make(map[string]any)
	}
	tools, err := json.Marshal(s.registry.Schemas())
	if err != nil {
		return nil, err
	}
	session["instructions"] = s.cfg.Instructions()
	session["temperature"] = s.cfg.Temperature
	session["tool_choice"] = s.toolChoice()
	session["tools"] = json.RawMessage(tools)
	delete(session, "max_response_output_tokens")
	msg["session"] = session
	return json.Marshal(msg)
}

// scrubSessionEvent blanks the configuration echoed in session.created /
// session.updated so instructions and the tool surface never reach the
// client. On parse trouble the event is suppressed entirely rather than
// leaked.
func (s *Session) scrubSessionEvent(raw []byte) []byte {
	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}
	session, ok := msg["session"].(map[string]any)
	if !ok {
		return raw
	}
	session["instructions"] = ""
	session["tools"] = []any{}
	session["tool_choice"] = "none"
	out, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return out
}

// stripFunctionCalls removes function_call items from a response.done
// payload before it reaches the client.
func (s *Session) stripFunctionCalls(raw []byte) []byte {
	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		return raw
	}
	response, ok := msg["response"].(map[string]any)
	if !ok {
		return raw
	}
	output, ok := response["output"].([]any)
	if !ok {
		return raw
	}
	kept := make([]any, 0, len(output))
	for _, entry := range output {
		if m, ok := entry.(map[string]any); ok && m["type"] == itemTypeFunctionCall {
			continue
		}
		kept = append(kept, entry)
	}
	if len(kept) == len(output) {
		return raw
	}
	response["output"] = kept
	out, err := json.Marshal(msg)
	if err != nil {
		return raw
	}
	return out
}

// record appends a completed transcript line; a nil recorder is a no-op.
func (s *Session) record(role string, raw []byte) {
	if s.recorder == nil {
		return
	}
	var ev transcriptEvent
	if err := json.Unmarshal(raw, &ev); err != nil || ev.Transcript == "" {
		return
	}
	if err := s.recorder.Append(s.id, role, ev.Transcript); err != nil {
		s.logger.Warn("transcript append failed", "error", err)
	}
}

// =============================================================================
// Writes
// =============================================================================

func (s *Session) writeClient(v any) error {
	return s.write(s.client, &s.clientMu, v)
}

func (s *Session) writeUpstream(v any) error {
	return s.write(s.upstream, &s.upstreamMu, v)
}

func (s *Session) write(conn *websocket.Conn, mu *sync.Mutex, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return s.writeRaw(conn, mu, data)
}

// writeRaw serializes frame writes per connection. After shutdown the write
// is silently discarded: late tool results must not crash anything.
func (s *Session) writeRaw(conn *websocket.Conn, mu *sync.Mutex, data []byte) error {
	if s.closed.Load() {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}
