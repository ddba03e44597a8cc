package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voicecart/internal/config"
	"voicecart/internal/dispatch"
	"voicecart/internal/gateway"
	"voicecart/internal/history"
	"voicecart/internal/order"
	"voicecart/internal/prompt"
	"voicecart/internal/relay"
	"voicecart/internal/search"
	"voicecart/internal/speech"
	"voicecart/internal/tooling"
	"voicecart/internal/tools"
)

// buildMeta holds version and build metadata (injectable via ldflags).
type buildMeta struct {
	Version string
	GoOS    string
	GoArch  string
}

func newBuildMeta(version, goos, goarch string) buildMeta {
	if goos == "" {
		goos = runtime.GOOS
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	return buildMeta{Version: version, GoOS: goos, GoArch: goarch}
}

func (m buildMeta) String() string {
	return fmt.Sprintf("voicecart %s %s/%s", m.Version, m.GoOS, m.GoArch)
}

func newRootCommand(bm buildMeta) *cobra.Command {
	root := &cobra.Command{
		Use:   "voicecart",
		Short: "Voice ordering assistant",
		Long:  "Voicecart relays a browser's realtime voice session to the model, grounds answers in a product index, and keeps the running order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), bm.String())
				return nil
			}
			return runDaemon(cmd, daemonShutdownCh)
		},
	}
	root.Flags().BoolP("version", "V", false, "print version and build metadata")
	return root
}

// runDaemon wires the components and serves until shutdownCh closes (tests)
// or an OS shutdown signal arrives (production, shutdownCh nil).
func runDaemon(cmd *cobra.Command, shutdownCh <-chan struct{}) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := config.FromEnv()
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	promptSource, err := prompt.NewSource(cfg.PromptPath)
	if err != nil {
		return err
	}
	var promptWatcher *prompt.Watcher
	if cfg.PromptPath != "" {
		promptWatcher = prompt.NewWatcher(promptSource, logger)
		if err := promptWatcher.Start(); err != nil {
			logger.Warn("prompt hot reload unavailable", "error", err)
			promptWatcher = nil
		}
		defer func() {
			if promptWatcher != nil {
				promptWatcher.Stop()
			}
		}()
	}

	labels := order.DefaultLabels()
	if cfg.LabelsPath != "" {
		labels, err = order.LoadLabels(cfg.LabelsPath)
		if err != nil {
			return err
		}
	}
	ledger := order.NewLedger(labels)

	searcher := search.NewClient(cfg.Search)

	registry := tooling.NewRegistry()
	for _, tool := range []tooling.Tool{
		tools.NewSearchTool(searcher),
		tools.NewGroundingTool(searcher),
		tools.NewOrderTool(ledger),
	} {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("register %s: %w", tool.Name(), err)
		}
	}

	var recorder relay.TranscriptRecorder
	var store *history.Store
	if cfg.DBURL != "" {
		store, err = history.Open(cfg.DBURL)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder = store
		fmt.Println("  transcript store ready")
	}

	realtime, err := relay.NewHandler(relay.HandlerOptions{
		Model:        cfg.Model,
		Registry:     registry,
		Dispatcher:   dispatch.NewDispatcher(registry, logger),
		Instructions: promptSource.Instructions,
		Temperature:  cfg.Temperature,
		Recorder:     recorder,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	opts := gateway.Options{
		Port:      cfg.Port,
		AuthToken: cfg.AuthToken,
		StaticDir: cfg.StaticDir,
		Realtime:  realtime,
	}
	if cfg.Speech.Enabled() {
		svc := speech.NewService(cfg.Speech, promptSource.Instructions, logger)
		opts.SpeechToText = http.HandlerFunc(svc.HandleSpeechToText)
		opts.TextToSpeech = http.HandlerFunc(svc.HandleTextToSpeech)
		fmt.Println("  speech endpoints ready")
	}
	if store != nil {
		opts.History = history.Handler(store, "/history/")
	}

	srv, err := gateway.NewServer(opts)
	if err != nil {
		return err
	}
	gatewayServerForTest = srv

	gatewayShutdown := make(chan struct{})
	go func() {
		_ = srv.Run(gatewayShutdown)
	}()

	// Wait until the server has bound so "ready." means clients can connect.
	var bound string
	for i := 0; i < daemonBindWaitIterations; i++ {
		if a := srv.Addr(); a != "" {
			bound = a
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if bound != "" {
		fmt.Printf("  listen %s\n  ready.\n", bound)
	} else {
		close(gatewayShutdown)
		if err := srv.ListenErr(); err != nil {
			return fmt.Errorf("gateway failed to bind: %w", err)
		}
		return fmt.Errorf("gateway failed to bind (check port or permissions)")
	}

	if shutdownCh != nil {
		<-shutdownCh
		close(gatewayShutdown)
		return nil
	}
	daemonWaitForShutdown()
	close(gatewayShutdown)
	return nil
}

func getVersion() string {
	if version != "" {
		return version
	}
	b, err := os.ReadFile("VERSION")
	if err != nil {
		return "dev"
	}
	return strings.TrimSpace(string(b))
}

// version is set at build time via ldflags for build metadata, e.g.:
//
//	go build -ldflags "-X main.version=1.0.0" -o voicecart ./cmd/voicecart
var version string

// daemonShutdownCh is set by tests to unblock runDaemon without signals. Production leaves it nil.
var daemonShutdownCh <-chan struct{}

// daemonWaitForShutdown is set by init in main_signal*.go so tests can inject a no-op.
var daemonWaitForShutdown func()

// gatewayServerForTest is set when the gateway server starts so tests can read Addr().
var gatewayServerForTest *gateway.Server

// daemonBindWaitIterations is the max loop count waiting for the gateway to bind.
var daemonBindWaitIterations = 50

// runApp runs the root command with the given args and returns the exit code.
func runApp(args []string) int {
	bm := newBuildMeta(version, "", "")
	if bm.Version == "" {
		bm.Version = getVersion()
	}
	root := newRootCommand(bm)
	root.SetArgs(args[1:])
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
