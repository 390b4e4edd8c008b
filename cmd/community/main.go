// Package main is the CLI entrypoint for a community server. It provides
// subcommands for running the server (serve), managing database migrations
// (migrate), and printing version information (version). The serve command
// loads configuration, connects to PostgreSQL, NATS, and the cache, runs
// pending migrations, bootstraps this server's DSA identity on first run,
// starts the HTTP API (which mounts the WebSocket gateway on the same mux),
// and — once claimed and registered with Central — signs and sends a
// heartbeat on an interval. Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/api/community"
	"github.com/confide-gg/confide/internal/bus"
	"github.com/confide-gg/confide/internal/cache"
	"github.com/confide-gg/confide/internal/cleanup"
	"github.com/confide-gg/confide/internal/config"
	"github.com/confide-gg/confide/internal/database"
	"github.com/confide-gg/confide/internal/federation"
	"github.com/confide-gg/confide/internal/gateway"
	"github.com/confide-gg/confide/internal/media"
	"github.com/confide-gg/confide/internal/models"
	"github.com/confide-gg/confide/internal/notifications"
	"github.com/confide-gg/confide/internal/realtime"
	"github.com/confide-gg/confide/internal/relay"
	"github.com/confide-gg/confide/internal/signature"
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
	fmt.Println("confide-community — a single community server")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  community <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the community server")
	fmt.Println("  migrate   Run database migrations (up|down|status)")
	fmt.Println("  version   Print version information")
	fmt.Println("  help      Show this help message")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  Config file:  community.toml (or set CONFIDE_CONFIG_PATH)")
	fmt.Println("  Env prefix:   CONFIDE_ (e.g. CONFIDE_DATABASE_URL)")
}

func runServe() error {
	logger := setupLogger("info", "json")
	logger.Info("starting confide-community", slog.String("version", version), slog.String("commit", commit))

	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger = setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", slog.String("path", cfgPath))

	dsaEncryptionKey, err := cfg.Security.DSAEncryptionKey()
	if err != nil || len(dsaEncryptionKey) == 0 {
		return fmt.Errorf("security.dsa_encryption_key is required to bootstrap or heartbeat a community identity: %w", err)
	}

	ctx := context.Background()

	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConnections, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := database.MigrateUp(cfg.Database.URL, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	communityStore := store.NewCommunity(db.Pool)

	identity, err := ensureServerIdentity(ctx, communityStore, cfg, dsaEncryptionKey, logger)
	if err != nil {
		return fmt.Errorf("bootstrapping server identity: %w", err)
	}

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

	var fedClient *federation.Client
	if cfg.Federation.CentralURL != "" {
		fedClient, err = federation.NewClient(cfg.Federation.CentralURL)
		if err != nil {
			logger.Warn("federation client unavailable, central login/heartbeat disabled", slog.String("error", err.Error()))
			fedClient = nil
		}
	}

	var mediaStore *media.Store
	if cfg.Storage.Endpoint != "" {
		mediaStore, err = media.New(cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.Bucket, cfg.Storage.UseSSL)
		if err != nil {
			logger.Warn("media service unavailable, uploads disabled", slog.String("error", err.Error()))
			mediaStore = nil
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

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	if fedClient != nil {
		interval, err := cfg.Federation.HeartbeatIntervalParsed()
		if err != nil {
			return fmt.Errorf("parsing federation heartbeat interval: %w", err)
		}
		go runHeartbeatLoop(heartbeatCtx, fedClient, communityStore, identity.ID, dsaEncryptionKey, interval, logger)
	}

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

	router := community.NewRouter(&community.Deps{
		Store:      communityStore,
		Cache:      c,
		Bus:        natsBus,
		Subs:       subs,
		Limiter:    limiter,
		Dispatcher: dispatcher,
		FedClient:  fedClient,
		Media:      mediaStore,
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
	cancelHeartbeat()

	logger.Info("confide-community stopped")
	return nil
}

// ensureServerIdentity reads this server's single server_identity row,
// creating it with a fresh DSA keypair and a random setup token on first
// run. The raw setup token is only ever available here, at mint time — it
// is printed once for the operator to hand to whoever will claim ownership
// via POST /api/setup/claim, matching the teacher's ensureLocalInstance
// create-once-and-print bootstrap shape.
func ensureServerIdentity(ctx context.Context, s *store.Community, cfg *config.Config, dsaEncryptionKey []byte, logger *slog.Logger) (*models.ServerIdentity, error) {
	existing, appErr := s.Identity(ctx)
	if appErr == nil {
		return existing, nil
	}
	if appErr.Status != http.StatusNotFound {
		return nil, appErr
	}

	keyPair, err := signature.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating dsa keypair: %w", err)
	}
	encryptedPrivate, err := signature.EncryptPrivateKey(dsaEncryptionKey, keyPair.Private)
	if err != nil {
		return nil, fmt.Errorf("encrypting dsa private key: %w", err)
	}

	rawToken := make([]byte, 32)
	if _, err := rand.Read(rawToken); err != nil {
		return nil, fmt.Errorf("generating setup token: %w", err)
	}
	tokenHex := hex.EncodeToString(rawToken)
	tokenHash := sha256.Sum256(rawToken)

	id := &models.ServerIdentity{
		ID:                     uuid.New(),
		ServerName:             cfg.Instance.Name,
		DSAPublicKey:           keyPair.Public,
		DSAPrivateKeyEncrypted: encryptedPrivate,
		SetupTokenHash:         tokenHash[:],
		IsDiscoverable:         true,
		CreatedAt:              time.Now(),
	}
	if err := s.CreateIdentity(ctx, id); err != nil {
		return nil, fmt.Errorf("creating server identity: %w", err)
	}

	logger.Info("server identity created — claim this server with the setup token below")
	fmt.Printf("\nSetup token (save this, it is shown only once):\n\n    %s\n\n", tokenHex)

	return id, nil
}

// runHeartbeatLoop signs and sends a heartbeat to Central on every tick,
// once this server has been claimed and registered. An unclaimed or
// unregistered server has nothing to heartbeat yet, so each tick re-checks
// identity state rather than assuming it never changes after startup.
func runHeartbeatLoop(ctx context.Context, fedClient *federation.Client, s *store.Community, id uuid.UUID, dsaEncryptionKey []byte, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			identity, appErr := s.Identity(ctx)
			if appErr != nil || !identity.Registered() {
				continue
			}
			members, err := s.ListMembers(ctx)
			if err != nil {
				logger.Warn("listing members for heartbeat", slog.String("error", err.Error()))
				continue
			}
			err = fedClient.SendHeartbeat(ctx, *identity.CentralRegistrationID, int32(len(members)), dsaEncryptionKey, identity.DSAPrivateKeyEncrypted, time.Now())
			if err != nil {
				logger.Warn("sending heartbeat", slog.String("error", err.Error()))
			}
		}
	}
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
	fmt.Printf("confide-community %s\n", version)
	fmt.Printf("  commit: %s\n", commit)
}

func configPath() string {
	if p := os.Getenv("CONFIDE_CONFIG_PATH"); p != "" {
		return p
	}
	return "community.toml"
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
