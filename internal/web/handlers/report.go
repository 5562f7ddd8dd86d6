package handlers

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/znz-systems/sesdash/internal/metrics"
	"github.com/znz-systems/sesdash/internal/models"
	"github.com/znz-systems/sesdash/internal/stats"
	"github.com/znz-systems/sesdash/internal/web/render"
)

var csvHeader = []string{"Date", "Recipient", "Subject", "Status", "Message ID", "Event Type"}

const csvTimeLayout = "2006-01-02 15:04:05"

type ReportHandler struct {
	stats         *stats.Service
	render        *render.Renderer
	metrics       *metrics.Metrics
	pageSize      int
	secureCookies bool
}

func NewReportHandler(svc *stats.Service, r *render.Renderer, m *metrics.Metrics, pageSize int, secureCookies bool) *ReportHandler {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &ReportHandler{
		stats:         svc,
		render:        r,
		metrics:       m,
		pageSize:      pageSize,
		secureCookies: secureCookies,
	}
}

// ShowReport renders one page of the filtered event listing.
func (h *ReportHandler) ShowReport(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"Title":    "Report",
		"Statuses": models.KnownStatuses,
	}
	if f, ok := consumeFlash(w, r, h.secureCookies); ok {
		data["Flash"] = f
	}

	q, err := parseReportQuery(r, h.stats)
	if err != nil {
		data["Flash"] = flash{Message: err.Error(), Type: flashTypeError}
		q = reportQuery{Page: 1}
	}

	total, err := h.stats.Count(r.Context(), q.Filter)
	if err == nil {
		pages := totalPages(total, h.pageSize)
		if q.Page > pages {
			q.Page = pages
		}
	}
	var events []models.EmailEvent
	if err == nil {
		events, err = h.stats.List(r.Context(), q.Filter, (q.Page-1)*h.pageSize, h.pageSize)
	}
	h.metrics.ReportGenerated("report", err)
	if err != nil {
		slog.Error("failed to load report", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pages := totalPages(total, h.pageSize)
	data["Query"] = q
	data["ExportURL"] = q.link("/report/export.csv", 0)
	data["Events"] = events
	data["Total"] = total
	data["Page"] = q.Page
	data["Pages"] = pages
	if q.Page > 1 {
		data["PrevURL"] = q.link("/report", q.Page-1)
	}
	if q.Page < pages {
		data["NextURL"] = q.link("/report", q.Page+1)
	}
	h.render.Render(w, r, "report.html", data)
}

// ShowEvent renders one event with its audit rows. Unknown ids redirect back
// to the report with a flash message.
func (h *ReportHandler) ShowEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	d, err := h.stats.EventDetails(r.Context(), id)
	if err != nil {
		if errors.Is(err, stats.ErrEventNotFound) {
			setFlash(w, flash{Message: fmt.Sprintf("Event %d no longer exists.", id)}, h.secureCookies)
			http.Redirect(w, r, "/report", http.StatusSeeOther)
			return
		}
		slog.Error("failed to load event", "id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	raw := make([]map[string]interface{}, 0, len(d.Raw))
	for _, re := range d.Raw {
		raw = append(raw, map[string]interface{}{
			"Event":   re,
			"Details": prettyDetails(re.Details),
		})
	}

	h.render.Render(w, r, "event.html", map[string]interface{}{
		"Title":   "Event " + strconv.FormatInt(id, 10),
		"Details": d,
		"Raw":     raw,
	})
}

// HandleExportCSV streams every row matching the report filters.
func (h *ReportHandler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	q, err := parseReportQuery(r, h.stats)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := h.stats.List(r.Context(), q.Filter, 0, 0)
	h.metrics.ReportGenerated("export", err)
	if err != nil {
		slog.Error("failed to export events", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	loc := h.stats.Location()
	filename := fmt.Sprintf("email-events-%s.csv", h.stats.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	cw := csv.NewWriter(w)
	cw.Write(csvHeader)
	for _, e := range events {
		cw.Write([]string{
			e.OccurredTime(loc).Format(csvTimeLayout),
			e.Recipient,
			e.Subject,
			e.Status,
			e.MessageID,
			e.EventType,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.Error("failed to write CSV export", "error", err)
	}
}

func prettyDetails(details []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, details, "", "  "); err != nil {
		return string(details)
	}
	return buf.String()
}

// link builds path with the query's filters and, when page > 0, the page.
func (q reportQuery) link(path string, page int) template.URL {
	v := q.values()
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	if len(v) == 0 {
		return template.URL(path)
	}
	return template.URL(path + "?" + v.Encode())
}
