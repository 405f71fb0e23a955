// Command focusd runs the Focus daemon: the /api action-feed endpoints
// and the /mcp protocol endpoint for agents, backed by a local SQLite
// database under $FOCUS_HOME.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/focusapp/focus/internal/auth"
	"github.com/focusapp/focus/internal/config"
	"github.com/focusapp/focus/internal/domain"
	"github.com/focusapp/focus/internal/gateway"
	"github.com/focusapp/focus/internal/ledger"
	"github.com/focusapp/focus/internal/mcp"
	otelPkg "github.com/focusapp/focus/internal/otel"
	"github.com/focusapp/focus/internal/persistence"
	"github.com/focusapp/focus/internal/retention"
	"github.com/focusapp/focus/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

DAEMON MODE (default):
  %s                          Start the daemon

SUBCOMMANDS:
  %s user add <email> [name]        Create a user
  %s token create <email> <name>    Mint an agent API token for a user
  %s token list <email>             List a user's API tokens
  %s token revoke <token-id>        Revoke an API token
  %s status                         Show daemon health (/healthz)

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  FOCUS_HOME                  Data directory (default: ~/.focus)
  FOCUS_BIND_ADDR             Listen address override
  FOCUS_LOG_LEVEL             Log level override (debug|info|warn|error)
  FOCUS_DB_PATH               SQLite database path override
`)
}

func main() {
	flag.Usage = printUsage
	showVersion := flag.Bool("version", false, "print version and exit")
	quiet := flag.Bool("quiet", false, "suppress stdout logging")
	flag.Parse()

	if *showVersion {
		fmt.Println("focusd", Version)
		return
	}

	if args := flag.Args(); len(args) > 0 {
		if err := runSubcommand(args); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := runDaemon(*quiet); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runDaemon(quiet bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, quiet)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logCloser.Close()

	logger.Info("focusd starting",
		"version", Version,
		"bind_addr", cfg.BindAddr,
		"config", cfg.Fingerprint())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := otelPkg.Init(ctx, otelPkg.Config{
		Enabled:     cfg.Otel.Enabled,
		Exporter:    cfg.Otel.Exporter,
		Endpoint:    cfg.Otel.Endpoint,
		ServiceName: cfg.Otel.ServiceName,
		SampleRate:  cfg.Otel.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	metrics, err := otelPkg.NewMetrics(provider.Meter)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	recorder := ledger.NewRecorder(store, cfg.Ledger.QueueSize, logger, metrics)
	defer recorder.Close()

	feed := ledger.NewFeed(store)
	services := domain.NewServices(store, recorder)
	resolver := auth.NewResolver(store, store, cfg.SessionCookie, logger)

	registry, err := mcp.NewRegistry(services, feed, logger, metrics)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}
	router := mcp.NewRouter(resolver, mcp.NewMemorySessionStore(), registry, logger, metrics)

	pruner, err := retention.New(retention.Config{
		Store:    store,
		Logger:   logger,
		Metrics:  metrics,
		Schedule: cfg.Retention.Schedule,
		MaxAge:   time.Duration(cfg.Retention.MaxAgeDays) * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("init retention: %w", err)
	}
	if pruner != nil {
		pruner.Start(ctx)
		defer pruner.Stop()
	}

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			for range watcher.Events() {
				if updated, err := config.Load(); err == nil {
					logger.Info("config reloaded", "config", updated.Fingerprint())
				} else {
					logger.Warn("config reload failed", "error", err)
				}
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           gateway.New(resolver, feed, store, router, logger, metrics).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.BindAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}
	return nil
}
