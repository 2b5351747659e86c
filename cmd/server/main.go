// Package main is the entry point for the admin authentication service.
//
// Subcommands:
//
//	serve            run the HTTP API (default)
//	migrate up|down  apply or roll back database migrations
//	version          print the build version
//
// Configuration is read from CONFIG_PATH (or the default search paths) and STH_*
// environment variables. TOTP_ENCRYPTION_KEY must hold the key that encrypts admin
// TOTP secrets at rest.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108 -- pprof is only served on the separate profiling port.
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/stagehand/adminauth/internal/api"
	"github.com/stagehand/adminauth/internal/audit"
	"github.com/stagehand/adminauth/internal/auth"
	"github.com/stagehand/adminauth/internal/config"
	"github.com/stagehand/adminauth/internal/crypto"
	"github.com/stagehand/adminauth/internal/db"
	"github.com/stagehand/adminauth/internal/db/repositories"
	"github.com/stagehand/adminauth/internal/storage"
	"github.com/stagehand/adminauth/internal/telemetry"

	// Import archive backends to register them
	_ "github.com/stagehand/adminauth/internal/storage/azure"
	_ "github.com/stagehand/adminauth/internal/storage/gcs"
	_ "github.com/stagehand/adminauth/internal/storage/local"
	_ "github.com/stagehand/adminauth/internal/storage/s3"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "version" {
		fmt.Printf("stagehand admin auth %s\n", api.Version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level, cfg.Logging.Output)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	cipher, err := crypto.CipherFromKeyMaterial(os.Getenv("TOTP_ENCRYPTION_KEY"))
	if err != nil {
		return fmt.Errorf("security configuration error: TOTP_ENCRYPTION_KEY: %w", err)
	}

	slog.Info("connecting to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port,
		"name", cfg.Database.Name, "user", cfg.Database.User, "ssl_mode", cfg.Database.SSLMode)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	telemetry.StartDBStatsCollector(database.DB)

	if err := db.RunMigrations(database.DB, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if version, dirty, err := db.GetMigrationVersion(database.DB); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", version, "dirty", dirty)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			slog.Warn("redis unreachable, rate limiting will fall back to local buckets", "addr", cfg.Redis.Addr, "error", err)
		} else {
			slog.Info("connected to redis", "addr", cfg.Redis.Addr)
		}
		cancel()
	}

	// Audit pipeline: database writer plus optional shippers and archive.
	var (
		recorder    auth.AuditRecorder
		auditLogger *audit.Logger
		archive     storage.Storage
	)
	if cfg.Audit.Enabled {
		var extra []audit.Shipper
		if cfg.Audit.Archive.Enabled {
			archive, err = storage.NewStorage(&cfg.Audit.Archive)
			if err != nil {
				return fmt.Errorf("failed to initialize audit archive: %w", err)
			}
			extra = append(extra, audit.NewArchiveShipper(archive, audit.ArchiveConfigFrom(&cfg.Audit.Archive)))
			slog.Info("audit archive enabled", "backend", cfg.Audit.Archive.Backend)
		}

		shipper, err := audit.NewMultiShipper(cfg.Audit.Shippers, extra...)
		if err != nil {
			return fmt.Errorf("failed to initialize audit shippers: %w", err)
		}

		auditLogger = audit.NewLogger(repositories.NewAuditRepository(database), shipper, audit.Config{
			QueueSize:    cfg.Audit.QueueSize,
			Workers:      cfg.Audit.Workers,
			WriteTimeout: cfg.Audit.WriteTimeout,
			ShipTimeout:  cfg.Audit.ShipTimeout,
		})
		recorder = auditLogger
	} else {
		slog.Warn("audit logging is disabled")
	}

	service := auth.NewService(
		repositories.NewAdminRepository(database),
		repositories.NewSessionRepository(database),
		recorder,
		auth.Options{
			LockoutThreshold: cfg.Auth.Lockout.MaxAttempts,
			LockoutDuration:  cfg.Auth.Lockout.Duration,
			SessionTTL:       cfg.Auth.Session.AbsoluteTTL,
			IdleTimeout:      cfg.Auth.Session.IdleTimeout,
			TouchTimeout:     cfg.Auth.Session.TouchTimeout,
			TOTPWindowSteps:  cfg.Auth.TOTP.WindowSteps,
			BcryptCost:       cfg.Auth.Password.BcryptCost,
			Secrets:          cipher,
		},
	)

	if cfg.Telemetry.Metrics.Enabled {
		startMetricsServer(cfg.Telemetry.Metrics.PrometheusPort)
	}
	if cfg.Telemetry.Profiling.Enabled {
		startProfilingServer(cfg.Telemetry.Profiling.Port)
	}

	router, bgServices := api.NewRouter(cfg, api.Dependencies{
		DB:      database,
		Auth:    service,
		Audit:   recorder,
		Redis:   rdb,
		Archive: archive,
	})

	server := &http.Server{
		Addr:              cfg.Server.GetAddress(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", server.Addr, "base_url", cfg.Server.BaseURL, "tls", cfg.Security.TLS.Enabled)
		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		bgServices.Shutdown()
		return fmt.Errorf("server failed: %w", err)
	}

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	bgServices.Shutdown()

	if auditLogger != nil {
		if err := auditLogger.Close(ctx); err != nil {
			slog.Error("audit logger did not drain before shutdown", "error", err)
		}
	}

	slog.Info("server stopped gracefully")
	return nil
}

func startMetricsServer(port int) {
	addr := fmt.Sprintf(":%d", port)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		slog.Info("starting Prometheus metrics server", "addr", addr)
		srv := &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

func startProfilingServer(port int) {
	addr := fmt.Sprintf(":%d", port)
	go func() {
		slog.Info("starting pprof server", "addr", addr)
		srv := &http.Server{ //nolint:gosec // #nosec G112 -- internal-only pprof port
			Addr:         addr,
			Handler:      http.DefaultServeMux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("pprof server error", "error", err)
		}
	}()
}

func runMigrations(cfg *config.Config, direction string) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level, cfg.Logging.Output)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)
	if err := db.RunMigrations(database.DB, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migration completed", "version", version, "dirty", dirty)
	return nil
}
