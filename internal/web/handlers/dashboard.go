package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/znz-systems/sesdash/internal/metrics"
	"github.com/znz-systems/sesdash/internal/stats"
	"github.com/znz-systems/sesdash/internal/web/render"
)

type DashboardHandler struct {
	stats         *stats.Service
	render        *render.Renderer
	metrics       *metrics.Metrics
	secureCookies bool
}

func NewDashboardHandler(svc *stats.Service, r *render.Renderer, m *metrics.Metrics, secureCookies bool) *DashboardHandler {
	return &DashboardHandler{stats: svc, render: r, metrics: m, secureCookies: secureCookies}
}

// dashboardRow is one bucket of the time-series table.
type dashboardRow struct {
	Label     string
	Sent      int64
	Delivered int64
	Bounced   int64
	Opened    int64
}

// ShowDashboard renders summary cards, rates and the per-bucket series for
// the selected timeframe.
func (h *DashboardHandler) ShowDashboard(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tf := stats.ParseTimeframe(r.URL.Query().Get("timeframe"), h.stats.DefaultTimeframe())

	d, err := h.stats.Dashboard(r.Context(), tf)
	h.metrics.ObserveQuery("dashboard", start)
	h.metrics.ReportGenerated("dashboard", err)
	if err != nil {
		slog.Error("failed to build dashboard", "timeframe", tf, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	rows := make([]dashboardRow, len(d.Series.Buckets))
	var peak int64
	for i, label := range d.Series.Buckets {
		rows[i] = dashboardRow{
			Label:     label,
			Sent:      d.Series.Sent[i],
			Delivered: d.Series.Delivered[i],
			Bounced:   d.Series.Bounced[i],
			Opened:    d.Series.Opened[i],
		}
		peak = max(peak, rows[i].Sent, rows[i].Delivered, rows[i].Bounced, rows[i].Opened)
	}

	data := map[string]interface{}{
		"Title":      "Dashboard",
		"Dashboard":  d,
		"Rows":       rows,
		"Peak":       peak,
		"Timeframes": stats.AllowedTimeframes,
	}
	if f, ok := consumeFlash(w, r, h.secureCookies); ok {
		data["Flash"] = f
	}
	h.render.Render(w, r, "dashboard.html", data)
}
