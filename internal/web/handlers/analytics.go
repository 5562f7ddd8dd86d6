package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/znz-systems/sesdash/internal/metrics"
	"github.com/znz-systems/sesdash/internal/stats"
	"github.com/znz-systems/sesdash/internal/web/render"
)

// AnalyticsHandler serves the analytics and data quality pages.
type AnalyticsHandler struct {
	stats         *stats.Service
	render        *render.Renderer
	metrics       *metrics.Metrics
	secureCookies bool
}

func NewAnalyticsHandler(svc *stats.Service, r *render.Renderer, m *metrics.Metrics, secureCookies bool) *AnalyticsHandler {
	return &AnalyticsHandler{stats: svc, render: r, metrics: m, secureCookies: secureCookies}
}

func peakTotal(rows []stats.Distribution) int64 {
	var peak int64
	for _, r := range rows {
		peak = max(peak, r.Total)
	}
	return peak
}

// ShowAnalytics renders the domain, time-of-day, bounce type and engagement
// breakdowns for the selected timeframe.
func (h *AnalyticsHandler) ShowAnalytics(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tf := stats.ParseTimeframe(r.URL.Query().Get("timeframe"), h.stats.DefaultTimeframe())
	domain := strings.TrimSpace(r.URL.Query().Get("domain"))

	a, err := h.stats.Analytics(r.Context(), tf, domain)
	h.metrics.ObserveQuery("analytics", start)
	h.metrics.ReportGenerated("analytics", err)
	if err != nil {
		slog.Error("failed to build analytics", "timeframe", tf, "domain", domain, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"Title":       "Analytics",
		"Analytics":   a,
		"HourPeak":    peakTotal(a.Hours),
		"WeekdayPeak": peakTotal(a.Weekdays),
		"Timeframes":  stats.AllowedTimeframes,
	}
	if f, ok := consumeFlash(w, r, h.secureCookies); ok {
		data["Flash"] = f
	}
	h.render.Render(w, r, "analytics.html", data)
}

// ShowDataQuality renders repeated message ids, recipients with several
// statuses and per-key averages.
func (h *AnalyticsHandler) ShowDataQuality(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tf := stats.ParseTimeframe(r.URL.Query().Get("timeframe"), h.stats.DefaultTimeframe())

	q, err := h.stats.DataQuality(r.Context(), tf)
	h.metrics.ObserveQuery("data_quality", start)
	h.metrics.ReportGenerated("data_quality", err)
	if err != nil {
		slog.Error("failed to build data quality report", "timeframe", tf, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.render.Render(w, r, "data_quality.html", map[string]interface{}{
		"Title":      "Data quality",
		"Quality":    q,
		"Timeframes": stats.AllowedTimeframes,
	})
}
