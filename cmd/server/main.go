// @title           OrgDesk API
// @version         1.0.0
// @description     Authentication and organization management service: accounts, sessions, organizations, memberships, and invitations.
// @contact.name    Support
// @contact.email   support@example.com
// @license.name    Apache-2.0
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                         Authorization
// @description                  "JWT session token: 'Bearer {token}'"
//
// @tag.name         System
// @tag.description  Health and version endpoints.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics are served on a dedicated side-channel port (default: 9090) that is separate from the main API server, keeping the scrape path off the public ingress and out of the rate-limiting middleware. Configure the port with ORGDESK_TELEMETRY_METRICS_PROMETHEUS_PORT; the endpoint path is always GET /metrics. pprof (if enabled via ORGDESK_TELEMETRY_PROFILING_ENABLED=true) is served on ORGDESK_TELEMETRY_PROFILING_PORT (default: 6060) at the standard /debug/pprof/ paths.

// Package main is the entry point for the OrgDesk server binary. It dispatches
// three subcommands, serve, migrate, and version, via a simple switch on
// os.Args so the binary's full CLI surface is readable in one place without a
// cobra dependency. The serve command runs auto-migration on startup so
// freshly deployed containers never need a separate migration step.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108 -- pprof is never served on the main API listener.

	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orgdesk/orgdesk/internal/api"
	"github.com/orgdesk/orgdesk/internal/auth"
	"github.com/orgdesk/orgdesk/internal/config"
	"github.com/orgdesk/orgdesk/internal/db"
	"github.com/orgdesk/orgdesk/internal/safego"
	"github.com/orgdesk/orgdesk/internal/telemetry"
)

const defaultCleanupInterval = time.Hour

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

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
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
	case "version":
		fmt.Printf("OrgDesk v%s\n", api.Version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	// Structured logger first so everything after it uses the configured
	// format and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Sessions cannot survive a missing secret; fail before touching the DB.
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	telemetry.StartDBStatsCollector(database)

	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	schemaVersion, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema", "version", schemaVersion, "dirty", dirty)
	}

	// Prometheus scrapes a dedicated port so the metrics path never goes
	// through the public ingress or the rate limiter.
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		safego.Go(func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		})
	}

	if cfg.Telemetry.Profiling.Enabled {
		pprofAddr := fmt.Sprintf(":%d", cfg.Telemetry.Profiling.Port)
		safego.Go(func() {
			slog.Info("starting pprof server", "addr", pprofAddr)
			// net/http/pprof registers on http.DefaultServeMux at init time.
			srv := &http.Server{ //nolint:gosec // internal-only pprof port
				Addr:         pprofAddr,
				Handler:      http.DefaultServeMux, // #nosec G108 -- pprof-only internal port
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("pprof server error", "error", err)
			}
		})
	}

	router, resources := api.NewRouter(cfg, sqlx.NewDb(database, "postgres"))

	// Expired sessions and reset tokens are swept in the background; the
	// resolver also rejects them on read, so a missed sweep is not a hole.
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	interval := cfg.Auth.Session.CleanupInterval
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	safego.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				if err := resources.AuthSvc.CleanupExpired(cleanupCtx); err != nil {
					slog.Error("auth cleanup failed", "error", err)
				}
			}
		}
	})

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	safego.Go(func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"public_url", cfg.Server.GetPublicURL(),
			"tls", cfg.Security.TLS.Enabled,
		)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	stopCleanup()
	resources.Close()

	slog.Info("server stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	schemaVersion, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	slog.Info("migration completed", "version", schemaVersion, "dirty", dirty)
	return nil
}
