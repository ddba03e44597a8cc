package relay

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voicecart/internal/dispatch"
	"voicecart/internal/domain"
	"voicecart/internal/tooling"
)

// upstreamPath is the realtime websocket endpoint on the model service.
const upstreamPath = "/openai/realtime"

// HandlerOptions collects the collaborators a Handler needs. Recorder may be
// nil when transcript history is disabled.
type HandlerOptions struct {
	Model        domain.ModelConfig
	Registry     *tooling.Registry
	Dispatcher   *dispatch.Dispatcher
	Instructions func() string
	Temperature  float64
	Recorder     TranscriptRecorder
	Logger       *slog.Logger
}

// Handler accepts client websocket connections and runs one Session per
// connection against a freshly dialed upstream connection.
type Handler struct {
	opts     HandlerOptions
	upgrader websocket.Upgrader

	// dial is swappable so tests can point sessions at a local fake.
	dial func(urlStr string, header http.Header) (*websocket.Conn, *http.Response, error)
}

// NewHandler validates the options and returns a ready handler.
func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("relay: registry is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("relay: dispatcher is required")
	}
	if opts.Instructions == nil {
		return nil, fmt.Errorf("relay: instructions source is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		dial: websocket.DefaultDialer.Dial,
	}, nil
}

// ServeHTTP upgrades the request and relays until either side disconnects.
// The upstream is dialed first so a broken model endpoint surfaces as a
// plain HTTP error instead of an immediately closed websocket.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	target, err := UpstreamURL(h.opts.Model)
	if err != nil {
		h.opts.Logger.Error("bad upstream endpoint", "error", err)
		http.Error(w, "upstream misconfigured", http.StatusInternalServerError)
		return
	}

	header := http.Header{}
	header.Set("api-key", h.opts.Model.APIKey)
	upstream, resp, err := h.dial(target, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		h.opts.Logger.Error("upstream dial failed", "status", status, "error", err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}

	client, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		upstream.Close()
		h.opts.Logger.Error("client upgrade failed", "error", err)
		return
	}

	id := uuid.NewString()
	session := NewSession(id, client, upstream, h.opts.Registry, h.opts.Dispatcher,
		SessionConfig{Instructions: h.opts.Instructions, Temperature: h.opts.Temperature},
		h.opts.Recorder, h.opts.Logger)

	h.opts.Logger.Info("session started", "session", id, "remote", r.RemoteAddr)
	if err := session.Run(r.Context()); err != nil {
		h.opts.Logger.Error("session failed", "session", id, "error", err)
		return
	}
	h.opts.Logger.Info("session closed", "session", id)
}

// UpstreamURL derives the realtime websocket URL from the model endpoint:
// the scheme flips to its websocket counterpart and the api-version and
// deployment travel as query parameters.
func UpstreamURL(cfg domain.ModelConfig) (string, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "wss", "ws":
		// Already a websocket endpoint.
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	u.Path = upstreamPath
	q := u.Query()
	q.Set("api-version", cfg.APIVersion)
	q.Set("deployment", cfg.Deployment)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
