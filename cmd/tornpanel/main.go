package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	pgadapter "github.com/sftdash/tornpanel/internal/adapter/driven/postgres"
	redisadapter "github.com/sftdash/tornpanel/internal/adapter/driven/redis"
	"github.com/sftdash/tornpanel/internal/adapter/driven/secret"
	sqliteadapter "github.com/sftdash/tornpanel/internal/adapter/driven/sqlite"
	"github.com/sftdash/tornpanel/internal/adapter/driven/torn"
	httphandler "github.com/sftdash/tornpanel/internal/adapter/driving/http"
	"github.com/sftdash/tornpanel/internal/application"
	"github.com/sftdash/tornpanel/internal/config"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
	"github.com/sftdash/tornpanel/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on unparsable env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"poll_interval", cfg.PollInterval,
		"key_placement", cfg.KeyPlacement,
		"http_cache", cfg.HTTPCache,
		"redis", cfg.RedisAddr != "",
		"postgres", cfg.PostgresDSN != "",
	)
	if cfg.Passphrase == "" {
		return driven.ErrConfigMissing
	}

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire stores. Redis and Postgres replace their SQLite counterparts
	// when configured.
	credentialStore := sqliteadapter.NewCredentialRepo(db)

	var (
		counters driven.CounterStore
		sweeper  application.Sweeper
	)
	if cfg.RedisAddr != "" {
		store, closeRedis, err := redisadapter.Dial(ctx, cfg.RedisAddr, "tornpanel:")
		if err != nil {
			return err
		}
		defer func() {
			if err := closeRedis(); err != nil {
				slog.Error("error closing redis", "error", err)
			}
		}()
		counters = store
		slog.Info("counter store: redis", "addr", cfg.RedisAddr)
	} else {
		repo := sqliteadapter.NewCounterRepo(db)
		counters, sweeper = repo, repo
		slog.Info("counter store: sqlite")
	}

	var cursors driven.CursorStore = sqliteadapter.NewCursorRepo(db)
	if cfg.PostgresDSN != "" {
		repo, pool, err := pgadapter.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		cursors = repo
		slog.Info("cursor store: postgres")
	}

	// 6. Metrics.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(registry)

	// 7. Upstream client and broker.
	catalog := torn.NewCatalog(cfg.BaseURL)
	client := torn.NewHTTPClient(torn.ClientOptions{Timeout: cfg.HTTPTimeout, Cache: cfg.HTTPCache})
	codec := secret.NewCodec(secret.MinIterations)

	broker, err := application.NewBroker(
		credentialStore,
		application.NewRateLimiter(counters, cfg.RateLimitPerMin, nil),
		codec,
		client,
		metrics,
		application.BrokerConfig{
			Passphrase:      cfg.Passphrase,
			Comment:         cfg.Comment,
			Placement:       application.KeyPlacement(cfg.KeyPlacement),
			CallTimeout:     cfg.HTTPTimeout,
			SessionKeyFirst: cfg.SessionKeyFirst(),
		},
	)
	if err != nil {
		return err
	}

	// 8. Services and scheduler.
	rosterStore := sqliteadapter.NewRosterRepo(db)
	roster := application.NewRosterService(broker, catalog, rosterStore, nil)
	snapshots := application.NewSnapshotService(
		broker,
		catalog,
		roster,
		rosterStore,
		sqliteadapter.NewSnapshotRepo(db),
		counters,
		application.SnapshotConfig{Workers: cfg.Workers, Retention: cfg.SnapshotRetention},
		nil,
	)
	engine := application.NewEngine(broker, cursors, metrics, nil)
	logStore := sqliteadapter.NewLogRepo(db)

	scheduler := application.NewScheduler(
		credentialStore,
		roster,
		engine,
		application.NewAttacksFeed(catalog, sqliteadapter.NewAttackRepo(db)),
		application.NewUserLogsFeed(catalog, logStore),
		snapshots,
		sweeper,
		cfg.PollInterval,
	)
	go scheduler.Start(ctx)

	credentials := application.NewCredentialService(credentialStore, codec, cfg.Passphrase)
	reads := application.NewFactionReads(broker, catalog, application.NewResponseCache(counters, metrics, nil))

	// 9. HTTP API.
	apiHandler := httphandler.NewHandler(
		credentials,
		scheduler,
		reads,
		snapshots,
		broker,
		telemetry.Handler(registry),
		httphandler.Options{Debug: cfg.Debug, AllowSessionKey: cfg.AcceptSessionKey()},
		slog.Default(),
	)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Minute, // snapshot refreshes fan out over the whole roster
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("tornpanel started",
		"listen_addr", cfg.ListenAddr,
		"poll_interval", cfg.PollInterval,
		"workers", cfg.Workers,
	)

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
