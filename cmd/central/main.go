// Package main is the CLI entrypoint for the Central identity server. It
// provides subcommands for running the server (serve), managing database
// migrations (migrate), and printing version information (version). The
// serve command loads configuration, connects to PostgreSQL, NATS, and the
// cache, runs pending migrations, starts the HTTP API (which mounts the
// WebSocket gateway on the same mux), and handles graceful shutdown on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/confide-gg/confide/internal/api/central"
	"github.com/confide-gg/confide/internal/bus"
	"github.com/confide-gg/confide/internal/cache"
	"github.com/confide-gg/confide/internal/cleanup"
	"github.com/confide-gg/confide/internal/config"
	"github.com/confide-gg/confide/internal/database"
	"github.com/confide-gg/confide/internal/federation"
	"github.com/confide-gg/confide/internal/gateway"
	"github.com/confide-gg/confide/internal/media"
	"github.com/confide-gg/confide/internal/notifications"
	"github.com/confide-gg/confide/internal/realtime"
	"github.com/confide-gg/confide/internal/relay"
	"github.com/confide-gg/confide/internal/search"
	"github.com/confide-gg/confide/internal/store"
)

// Build-time variables set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe()
	case "migrate":
		err = runMigrate()
	case "version":
		runVersion()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("confide-central — identity, federation, and discovery server")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  central <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the central server")
	fmt.Println("  migrate   Run database migrations (up|down|status)")
	fmt.Println("  version   Print version information")
	fmt.Println("  help      Show this help message")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  Config file:  central.toml (or set CONFIDE_CONFIG_PATH)")
	fmt.Println("  Env prefix:   CONFIDE_ (e.g. CONFIDE_DATABASE_URL)")
}

func runServe() error {
	logger := setupLogger("info", "json")
	logger.Info("starting confide-central", slog.String("version", version), slog.String("commit", commit))

	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger = setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", slog.String("path", cfgPath))

	ctx := context.Background()

	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConnections, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := database.MigrateUp(cfg.Database.URL, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	centralStore := store.NewCentral(db.Pool)

	c, err := cache.New(cfg.Cache.URL)
	if err != nil {
		return fmt.Errorf("connecting to cache: %w", err)
	}
	defer c.Close()

	natsBus, err := bus.New(cfg.NATS.URL, logger)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer natsBus.Close()

	subs := realtime.NewSubscriptionManager(logger)
	limiter := realtime.NewConnectionLimiter()
	dispatcher := gateway.NewDispatcher(subs, natsBus, logger)

	busRouterCtx, cancelBusRouter := context.WithCancel(ctx)
	defer cancelBusRouter()
	go func() {
		if err := gateway.RunBusRouter(busRouterCtx, natsBus, subs, logger); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("bus router stopped", slog.String("error", err.Error()))
		}
	}()

	verifier := federation.NewVerifier(centralStore)

	// Media, search, and push are optional: a construction failure logs a
	// warning and the dependent routes stay disabled, the way the teacher
	// degrades rather than refusing to start over an optional integration.
	var mediaStore *media.Store
	if cfg.Storage.Endpoint != "" {
		mediaStore, err = media.New(cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.Bucket, cfg.Storage.UseSSL)
		if err != nil {
			logger.Warn("media service unavailable, uploads disabled", slog.String("error", err.Error()))
			mediaStore = nil
		} else {
			logger.Info("media service ready", slog.String("endpoint", cfg.Storage.Endpoint))
		}
	}

	var searchIndex *search.Index
	if cfg.Search.Enabled && cfg.Search.URL != "" {
		searchIndex, err = search.New(cfg.Search.URL, cfg.Search.APIKey)
		if err != nil {
			logger.Warn("search service unavailable, discovery falls back to plain listing", slog.String("error", err.Error()))
			searchIndex = nil
		} else {
			logger.Info("search service ready", slog.String("url", cfg.Search.URL))
		}
	}

	var pusher *notifications.Pusher
	if cfg.Push.VAPIDPublicKey != "" && cfg.Push.VAPIDPrivateKey != "" {
		pusher = notifications.New(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.VAPIDContactEmail, logger)
		logger.Info("push notifications enabled")
	}

	sweeper := cleanup.New(db.Pool, logger)
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go sweeper.Run(sweepCtx)

	var relaySvc *relay.Service
	if cfg.LiveKit.URL != "" && cfg.LiveKit.APIKey != "" && cfg.LiveKit.APISecret != "" {
		relaySvc, err = relay.New(cfg.LiveKit.URL, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret)
		if err != nil {
			logger.Warn("relay service unavailable, calling disabled", slog.String("error", err.Error()))
			relaySvc = nil
		} else {
			logger.Info("relay service ready", slog.String("url", cfg.LiveKit.URL))
		}
	}

	router := central.NewRouter(&central.Deps{
		Store:      centralStore,
		Cache:      c,
		Bus:        natsBus,
		Subs:       subs,
		Limiter:    limiter,
		Dispatcher: dispatcher,
		Verifier:   verifier,
		Media:      mediaStore,
		Search:     searchIndex,
		Push:       pusher,
		Relay:      relaySvc,
		Config:     cfg,
		Logger:     logger,
	})

	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.HTTP.Listen))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-shutdownCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
	}
	cancelSweep()
	cancelBusRouter()

	logger.Info("confide-central stopped")
	return nil
}

func runMigrate() error {
	logger := setupLogger("info", "text")

	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	action := "up"
	if len(os.Args) >= 3 {
		action = os.Args[2]
	}

	switch action {
	case "up":
		return database.MigrateUp(cfg.Database.URL, logger)
	case "down":
		return database.MigrateDown(cfg.Database.URL, logger)
	case "status":
		v, dirty, err := database.MigrateStatus(cfg.Database.URL)
		if err != nil {
			return err
		}
		fmt.Printf("Migration version: %d\n", v)
		fmt.Printf("Dirty: %v\n", dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate action: %s (use: up, down, status)", action)
	}
}

func runVersion() {
	fmt.Printf("confide-central %s\n", version)
	fmt.Printf("  commit: %s\n", commit)
}

func configPath() string {
	if p := os.Getenv("CONFIDE_CONFIG_PATH"); p != "" {
		return p
	}
	return "central.toml"
}

func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
