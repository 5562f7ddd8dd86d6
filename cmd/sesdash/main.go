package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/znz-systems/sesdash/internal/blob"
	"github.com/znz-systems/sesdash/internal/config"
	"github.com/znz-systems/sesdash/internal/database"
	"github.com/znz-systems/sesdash/internal/ingest"
	"github.com/znz-systems/sesdash/internal/metrics"
	"github.com/znz-systems/sesdash/internal/pkg/clock"
	"github.com/znz-systems/sesdash/internal/ratelimit"
	"github.com/znz-systems/sesdash/internal/retention"
	"github.com/znz-systems/sesdash/internal/stats"
	"github.com/znz-systems/sesdash/internal/store/sqlstore"
	"github.com/znz-systems/sesdash/internal/web"
	"github.com/znz-systems/sesdash/internal/web/handlers"
	"github.com/znz-systems/sesdash/internal/web/render"
	"github.com/znz-systems/sesdash/migrations"
	"github.com/znz-systems/sesdash/static"
	"github.com/znz-systems/sesdash/templates"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(cfg.NewLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := database.NewDB(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Migrations
	if err := database.RunMigrations(migrations.FS, cfg.DatabaseDriver, cfg.DatabaseURL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	dialect, err := sqlstore.DialectFor(cfg.DatabaseDriver)
	if err != nil {
		slog.Error("failed to resolve SQL dialect", "error", err)
		os.Exit(1)
	}
	st := sqlstore.New(db, dialect)

	blobs, err := blob.NewFromConfig(ctx, blob.Config{
		Backend:           cfg.BlobBackend,
		FSRoot:            cfg.BlobFSRoot,
		S3Bucket:          cfg.BlobS3Bucket,
		S3Prefix:          cfg.BlobS3Prefix,
		S3Region:          cfg.BlobS3Region,
		S3Endpoint:        cfg.BlobS3Endpoint,
		S3AccessKeyID:     cfg.BlobS3AccessKeyID,
		S3SecretAccessKey: cfg.BlobS3SecretAccessKey,
		S3ForcePathStyle:  cfg.BlobS3ForcePathStyle,
	})
	if err != nil {
		slog.Error("failed to init blob storage", "backend", cfg.BlobBackend, "error", err)
		os.Exit(1)
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	// Services
	clk := clock.NewRealClock()
	statsService := stats.NewService(st, clk, stats.Options{
		Location:         cfg.Location,
		DefaultTimeframe: cfg.DefaultTimeframe,
	})
	ingestService := ingest.NewService(st, ingest.Options{
		Blobs:     blobs,
		Confirmer: ingest.NewHTTPConfirmer(cfg.SNSConfirmTimeout),
		Clock:     clk,
		Metrics:   m,
	})
	retentionService := retention.NewService(st, retention.Options{
		Days:    cfg.RetentionDays,
		Blobs:   blobs,
		Clock:   clk,
		Metrics: m,
	})

	// Rate limiter
	limiter := ratelimit.NewLimiter(cfg.WebhookRateLimitRPS, cfg.WebhookRateLimitBurst)
	go limiter.Run(ctx, 3*time.Minute)

	// Retention loop
	go retentionService.Start(ctx, cfg.CleanupInterval)

	// Renderer
	renderer := render.NewRenderer(templates.FS, cfg.Location)

	// Router
	deps := web.RouterDeps{
		DashboardHandler:      handlers.NewDashboardHandler(statsService, renderer, m, cfg.SecureCookies),
		ReportHandler:         handlers.NewReportHandler(statsService, renderer, m, cfg.ReportPageSize, cfg.SecureCookies),
		AnalyticsHandler:      handlers.NewAnalyticsHandler(statsService, renderer, m, cfg.SecureCookies),
		APIHandler:            handlers.NewAPIHandler(statsService, m, cfg.ReportPageSize),
		WebhookHandler:        handlers.NewWebhookHandler(ingestService, cfg.WebhookMaxBodyBytes),
		HealthHandler:         handlers.NewHealthHandler(db),
		Limiter:               limiter,
		StaticFS:              static.FS,
		DashboardUser:         cfg.DashboardUser,
		DashboardPasswordHash: cfg.DashboardPasswordHash,
	}
	if m != nil {
		deps.Metrics = m.Handler()
	}
	if cfg.DashboardUser == "" {
		slog.Warn("dashboard authentication disabled; set DASHBOARD_USER and DASHBOARD_PASSWORD_HASH")
	}
	router := web.NewRouter(deps)

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("sesdash starting",
			"addr", addr,
			"driver", cfg.DatabaseDriver,
			"timezone", cfg.Location.String(),
			"retention_days", cfg.RetentionDays,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
