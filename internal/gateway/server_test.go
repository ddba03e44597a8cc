package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isListenPermissionErr reports whether err is a listen/bind permission error (e.g. sandbox).
func isListenPermissionErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "operation not permitted") || strings.Contains(s, "permission denied")
}

// fakeListener is a net.Listener that never accepts; Accept blocks until
// Close. For testing Run() without binding.
type fakeListener struct {
	addr   net.Addr
	closed chan struct{}
}

func (f *fakeListener) Accept() (net.Conn, error) {
	<-f.closed
	return nil, net.ErrClosed
}
func (f *fakeListener) Close() error {
	close(f.closed)
	return nil
}
func (f *fakeListener) Addr() net.Addr {
	return f.addr
}

func namedHandler(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, name)
	})
}

func testOptions() Options {
	return Options{Port: 0, Realtime: namedHandler("realtime")}
}

func TestNewServer_WhenRealtimeMissing_ShouldReturnError(t *testing.T) {
	if _, err := NewServer(Options{Port: 0}); err == nil {
		t.Fatal("expected an error without a realtime handler")
	}
}

func TestNewServer_WhenPortInvalid_ShouldReturnError(t *testing.T) {
	opts := testOptions()
	opts.Port = -1
	if _, err := NewServer(opts); err != ErrInvalidPort {
		t.Errorf("port -1: want ErrInvalidPort, got %v", err)
	}
	opts.Port = 70000
	if _, err := NewServer(opts); err != ErrInvalidPort {
		t.Errorf("port 70000: want ErrInvalidPort, got %v", err)
	}
}

func TestServer_ShouldMountConfiguredRoutes(t *testing.T) {
	staticDir := t.TempDir()
	os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<html>client</html>"), 0644)

	srv, err := NewServer(Options{
		Port:         0,
		StaticDir:    staticDir,
		Realtime:     namedHandler("realtime"),
		SpeechToText: namedHandler("speech-to-text"),
		TextToSpeech: namedHandler("text-to-speech"),
		History:      namedHandler("history"),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	handler := srv.Handler()

	routes := []struct{ path, want string }{
		{"/realtime", "realtime"},
		{"/speech/speech-to-text", "speech-to-text"},
		{"/speech/text-to-speech", "text-to-speech"},
		{"/history/", "history"},
		{"/history/sess_1", "history"},
		{"/healthz", "OK"},
		{"/index.html", "<html>client</html>"},
	}
	for _, tc := range routes {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", tc.path, rec.Code)
		}
		if rec.Body.String() != tc.want {
			t.Errorf("%s: body = %q, want %q", tc.path, rec.Body.String(), tc.want)
		}
	}
}

func TestServer_WhenSpeechUnconfigured_ShouldNotMountSpeechRoutes(t *testing.T) {
	srv, err := NewServer(testOptions())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/speech/speech-to-text", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unmounted speech route: status = %d, want 404", rec.Code)
	}
}

func TestServer_WhenAuthTokenSet_ShouldRequireBearer(t *testing.T) {
	opts := testOptions()
	opts.AuthToken = "my-secret"
	srv, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	handler := srv.Handler()

	// without token -> 401
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without token: want 401, got %d", rec.Code)
	}

	// with wrong token -> 401
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: want 401, got %d", rec.Code)
	}

	// with correct token -> 200
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Authorization", "Bearer my-secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("correct token: want 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "OK" {
		t.Errorf("correct token body: want OK, got %q", body)
	}
}

func TestServer_WhenAuthTokenEmpty_ShouldAcceptRequestsWithoutHeader(t *testing.T) {
	srv, err := NewServer(testOptions())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("no auth: want 200, got %d", rec.Code)
	}
}

func TestServer_WhenShutdownClosed_ShouldReturnNil(t *testing.T) {
	srv, err := NewServer(testOptions())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	shutdown := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- srv.Run(shutdown) }()
	time.Sleep(30 * time.Millisecond)
	close(shutdown)
	err = <-done
	if err != nil {
		if isListenPermissionErr(err) {
			t.Skip("skipping: cannot bind in this environment (e.g. sandbox)")
		}
		t.Errorf("Run after shutdown: want nil, got %v", err)
	}
}

func TestNewServer_WhenPortZero_ShouldBindRandomPort(t *testing.T) {
	srv, err := NewServer(testOptions())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx.Done()) }()
	time.Sleep(50 * time.Millisecond)
	addr := srv.Addr()
	if addr == "" || addr == ":0" {
		cancel()
		runErr := <-done
		if runErr != nil && isListenPermissionErr(runErr) {
			t.Skip("skipping: cannot bind in this environment (e.g. sandbox)")
		}
		t.Errorf("expected bound addr, got %q (run err: %v)", addr, runErr)
	} else {
		cancel()
		<-done
	}
}

func TestRun_WhenListenFails_ShouldReturnError(t *testing.T) {
	srv, err := NewServer(testOptions())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	listenErr := errors.New("listen failed")
	oldListen := netListen
	netListen = func(network, address string) (net.Listener, error) {
		return nil, listenErr
	}
	defer func() { netListen = oldListen }()
	shutdown := make(chan struct{})
	close(shutdown)
	err = srv.Run(shutdown)
	if err != listenErr {
		t.Errorf("Run when Listen fails: want %v, got %v", listenErr, err)
	}
	if got := srv.ListenErr(); got != listenErr {
		t.Errorf("ListenErr after Listen fails: want %v, got %v", listenErr, got)
	}
}

// TestRun_WhenListenSucceeds_ShouldServeUntilShutdown covers Run() success
// path using a fake listener (no real bind).
func TestRun_WhenListenSucceeds_ShouldServeUntilShutdown(t *testing.T) {
	opts := testOptions()
	opts.Port = 9999
	srv, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	fakeAddr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9999}
	fl := &fakeListener{addr: fakeAddr, closed: make(chan struct{})}
	oldListen := netListen
	netListen = func(network, address string) (net.Listener, error) {
		return fl, nil
	}
	defer func() { netListen = oldListen }()

	shutdown := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(shutdown) }()
	time.Sleep(20 * time.Millisecond)
	if got := srv.Addr(); got != fakeAddr.String() {
		t.Errorf("Addr(): want %s, got %s", fakeAddr.String(), got)
	}
	close(shutdown)
	err = <-errCh
	if err != nil {
		t.Errorf("Run after shutdown: want nil, got %v", err)
	}
}

// TestRun_WhenShutdownReturnsError_ShouldReturnError covers Run() returning
// the serverShutdown error.
func TestRun_WhenShutdownReturnsError_ShouldReturnError(t *testing.T) {
	opts := testOptions()
	opts.Port = 9999
	srv, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	fl := &fakeListener{addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9999}, closed: make(chan struct{})}
	oldListen := netListen
	netListen = func(network, address string) (net.Listener, error) { return fl, nil }
	defer func() { netListen = oldListen }()
	shutdownErr := errors.New("shutdown failed")
	oldShutdown := serverShutdown
	serverShutdown = func(_ *http.Server, _ context.Context) error { return shutdownErr }
	defer func() { serverShutdown = oldShutdown }()

	shutdown := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(shutdown) }()
	time.Sleep(20 * time.Millisecond)
	close(shutdown)
	got := <-errCh
	if got != shutdownErr {
		t.Errorf("Run when Shutdown returns error: want %v, got %v", shutdownErr, got)
	}
}
