package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// ErrInvalidPort is returned when the gateway port is not in 0..65535.
var ErrInvalidPort = errors.New("gateway port must be 0-65535")

// Options carries the routes the server mounts. Realtime is required; the
// rest are optional and left unmounted when nil or empty.
type Options struct {
	Port      int
	AuthToken string // when set, all routes require Authorization: Bearer <AuthToken>
	StaticDir string // when set, served at / for the browser client

	Realtime     http.Handler // websocket relay at /realtime
	SpeechToText http.Handler // POST /speech/speech-to-text
	TextToSpeech http.Handler // POST /speech/text-to-speech
	History      http.Handler // GET /history/ and /history/{session}
}

// Server is the HTTP front of the voice assistant: the realtime websocket,
// the speech endpoints, transcript history, and the static browser client.
type Server struct {
	server      *http.Server
	port        int
	addr        string
	addrMu      sync.RWMutex
	listenErr   error
	listenErrMu sync.Mutex
	listener    net.Listener
}

// NewServer builds a server from options. Port 0 means pick a random port.
// Returns ErrInvalidPort if the port is not in 0..65535.
func NewServer(opts Options) (*Server, error) {
	if opts.Port < 0 || opts.Port > 65535 {
		return nil, ErrInvalidPort
	}
	if opts.Realtime == nil {
		return nil, errors.New("gateway: realtime handler is required")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/realtime", opts.Realtime)
	if opts.SpeechToText != nil {
		mux.Handle("/speech/speech-to-text", opts.SpeechToText)
	}
	if opts.TextToSpeech != nil {
		mux.Handle("/speech/text-to-speech", opts.TextToSpeech)
	}
	if opts.History != nil {
		mux.Handle("/history/", opts.History)
	}
	if opts.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(opts.StaticDir)))
	}

	handler := BearerAuth(opts.AuthToken)(mux)
	return &Server{
		port: opts.Port,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Addr returns the bound address (e.g. "127.0.0.1:8765") after Run has
// started. Empty before Run.
func (s *Server) Addr() string {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.addr
}

// ListenErr returns the error from the initial Listen in Run(), if any. Used
// when Addr() is still empty after Run() has been started.
func (s *Server) ListenErr() error {
	s.listenErrMu.Lock()
	defer s.listenErrMu.Unlock()
	return s.listenErr
}

// Handler returns the HTTP handler used by the server (BearerAuth + mux).
// For testing without binding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// netListen is the function used to listen; tests may replace it to force
// Listen errors.
var netListen = func(network, address string) (net.Listener, error) {
	return net.Listen(network, address)
}

// Run listens on the configured port and serves until shutdown is closed.
// Returns nil when shut down cleanly.
func (s *Server) Run(shutdown <-chan struct{}) error {
	addr := ":" + strconv.Itoa(s.port)
	ln, err := netListen("tcp", addr)
	if err != nil {
		s.listenErrMu.Lock()
		s.listenErr = err
		s.listenErrMu.Unlock()
		return err
	}
	s.addrMu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.addrMu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.server.Serve(ln)
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = serverShutdown(s.server, ctx)
	if err != nil {
		return err
	}
	<-done
	return nil
}

// serverShutdown is the function used to shut down the server; tests may
// replace it.
var serverShutdown = func(srv *http.Server, ctx context.Context) error {
	return srv.Shutdown(ctx)
}
