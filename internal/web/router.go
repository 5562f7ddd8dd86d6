package web

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/znz-systems/sesdash/internal/ratelimit"
	"github.com/znz-systems/sesdash/internal/web/handlers"
	"github.com/znz-systems/sesdash/internal/web/middleware"
)

// RouterDeps holds all dependencies needed to build the router.
type RouterDeps struct {
	DashboardHandler *handlers.DashboardHandler
	ReportHandler    *handlers.ReportHandler
	AnalyticsHandler *handlers.AnalyticsHandler
	APIHandler       *handlers.APIHandler
	WebhookHandler   *handlers.WebhookHandler
	HealthHandler    *handlers.HealthHandler
	Limiter          *ratelimit.Limiter
	StaticFS         fs.FS

	// Metrics serves /metrics when non-nil.
	Metrics http.Handler

	DashboardUser         string
	DashboardPasswordHash string
}

// NewRouter wires all routes into a Chi router.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", deps.HealthHandler.Healthz)
	r.Get("/readyz", deps.HealthHandler.Readyz)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	if deps.StaticFS != nil {
		fileServer := http.FileServer(http.FS(deps.StaticFS))
		r.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	}

	// Provider webhooks (rate limited, no auth)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(deps.Limiter))

		r.Post("/webhooks/ses", deps.WebhookHandler.HandleSES)
	})

	// Dashboard, report and read API
	r.Group(func(r chi.Router) {
		r.Use(middleware.BasicAuth("sesdash", deps.DashboardUser, deps.DashboardPasswordHash))

		r.Get("/", deps.DashboardHandler.ShowDashboard)
		r.Get("/report", deps.ReportHandler.ShowReport)
		r.Get("/report/events/{id}", deps.ReportHandler.ShowEvent)
		r.Get("/report/export.csv", deps.ReportHandler.HandleExportCSV)
		r.Get("/analytics", deps.AnalyticsHandler.ShowAnalytics)
		r.Get("/analytics/data", deps.AnalyticsHandler.ShowDataQuality)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/summary", deps.APIHandler.HandleSummary)
			r.Get("/timeseries", deps.APIHandler.HandleTimeSeries)
			r.Get("/dashboard", deps.APIHandler.HandleDashboard)
			r.Get("/events", deps.APIHandler.HandleListEvents)
			r.Get("/events/{id}", deps.APIHandler.HandleGetEvent)
			r.Get("/analytics", deps.APIHandler.HandleAnalytics)
			r.Get("/data-quality", deps.APIHandler.HandleDataQuality)
		})
	})

	return r
}
