package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ulikoehler/Multiverse/internal/acceptor"
	"github.com/ulikoehler/Multiverse/internal/mailbox"
	"github.com/ulikoehler/Multiverse/internal/registry"
	"github.com/ulikoehler/Multiverse/internal/shutdown"
	"github.com/ulikoehler/Multiverse/internal/telemetry"
	"github.com/ulikoehler/Multiverse/logging"
	loggingSinks "github.com/ulikoehler/Multiverse/logging/sinks"
)

// Config bundles Run's inputs. RendezvousEndpoint follows spec.md §6's
// "tcp://*:PORT" shorthand; the scheme is dropped and a "*" host means all
// interfaces (the transport itself is always gorilla/websocket over HTTP).
type Config struct {
	RendezvousEndpoint string
	Logger             telemetry.Logger

	// JSONLogPath, when non-empty, adds a newline-JSON sink alongside the
	// console sink, writing structured events to the named file.
	JSONLogPath string
}

// Run wires every component — registry, mailbox, shutdown coordinator,
// acceptor, logging router — and serves until ctx is canceled.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	logConfig := logging.DefaultConfig()
	namedSinks := []logging.NamedSink{
		{Name: "console", Sink: loggingSinks.NewConsoleSink(os.Stdout, logConfig.Console)},
	}

	var jsonLogFile *os.File
	if cfg.JSONLogPath != "" {
		logConfig.EnabledSinks = append(logConfig.EnabledSinks, "json")
		logConfig.JSON.FilePath = cfg.JSONLogPath
		f, err := os.OpenFile(cfg.JSONLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open json log path %q: %w", cfg.JSONLogPath, err)
		}
		jsonLogFile = f
		namedSinks = append(namedSinks, logging.NamedSink{
			Name: "json",
			Sink: loggingSinks.NewJSON(f, logConfig.JSON.FlushInterval),
		})
	}

	router, err := logging.NewRouter(logging.ClockFunc(time.Now), logConfig, namedSinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
		if jsonLogFile != nil {
			if cerr := jsonLogFile.Close(); cerr != nil {
				telemetryLogger.Printf("failed to close json log file: %v", cerr)
			}
		}
	}()

	reg := registry.New()
	mb := mailbox.New()
	coordinator := shutdown.New()
	metricsCollector := &logging.Metrics{}

	acc := acceptor.New(reg, mb, coordinator, router, telemetryLogger, metricsCollector)

	addr := parseRendezvousAddr(cfg.RendezvousEndpoint)
	srv := &http.Server{Addr: addr, Handler: acc.Handler()}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		telemetryLogger.Printf("hub shutting down: %v", ctx.Err())
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("hub server failed: %w", err)
		}
		return nil
	}

	coordinator.Trigger()
	acc.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetryLogger.Printf("hub server shutdown: %v", err)
	}
	coordinator.WaitForClean(50*time.Millisecond, shutdownCtx.Done())
	return nil
}

// parseRendezvousAddr implements spec.md §6's "default tcp://*:7000,
// overridable by argv[1]" rule: a bare ":port" or "host:port" form passes
// through untouched; a "tcp://host:port" form has its scheme stripped and
// its "*" host wildcard mapped to "" (net/http listens on all interfaces
// when the host half of Addr is empty).
func parseRendezvousAddr(endpoint string) string {
	if endpoint == "" {
		return ":7000"
	}
	addr := strings.TrimPrefix(endpoint, "tcp://")
	addr = strings.Replace(addr, "*:", ":", 1)
	return addr
}
