package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/znz-systems/sesdash/internal/metrics"
	"github.com/znz-systems/sesdash/internal/models"
	"github.com/znz-systems/sesdash/internal/stats"
)

const maxAPIPageSize = 500

// APIHandler serves the JSON read API under /api/v1.
type APIHandler struct {
	stats    *stats.Service
	metrics  *metrics.Metrics
	pageSize int
}

func NewAPIHandler(svc *stats.Service, m *metrics.Metrics, pageSize int) *APIHandler {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &APIHandler{stats: svc, metrics: m, pageSize: pageSize}
}

type windowJSON struct {
	Timeframe int    `json:"timeframe"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Bucketing string `json:"bucketing"`
}

func newWindowJSON(w stats.Window) windowJSON {
	return windowJSON{
		Timeframe: w.Timeframe,
		Start:     w.Start.Format(time.RFC3339),
		End:       w.End.Format(time.RFC3339),
		Bucketing: w.Bucketing.String(),
	}
}

type eventJSON struct {
	ID         int64  `json:"id"`
	MessageID  string `json:"message_id"`
	Recipient  string `json:"recipient"`
	Subject    string `json:"subject"`
	Status     string `json:"status"`
	EventType  string `json:"event_type"`
	OccurredAt int64  `json:"occurred_at"`
	Occurred   string `json:"occurred"`
}

func newEventJSON(e models.EmailEvent, loc *time.Location) eventJSON {
	return eventJSON{
		ID:         e.ID,
		MessageID:  e.MessageID,
		Recipient:  e.Recipient,
		Subject:    e.Subject,
		Status:     e.Status,
		EventType:  e.EventType,
		OccurredAt: e.OccurredAt,
		Occurred:   e.OccurredTime(loc).Format(time.RFC3339),
	}
}

func (h *APIHandler) window(r *http.Request) stats.Window {
	return h.stats.Window(stats.ParseTimeframe(r.URL.Query().Get("timeframe"), h.stats.DefaultTimeframe()))
}

// HandleSummary returns per-status counts for the requested timeframe.
func (h *APIHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	win := h.window(r)
	summary, err := h.stats.Summary(r.Context(), win)
	h.metrics.ObserveQuery("summary", start)
	if err != nil {
		slog.Error("failed to build summary", "timeframe", win.Timeframe, "error", err)
		writeJSON(w, http.StatusInternalServerError, jsonResponse{Error: "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"window":  newWindowJSON(win),
		"summary": summary,
	})
}

// HandleTimeSeries returns the per-bucket category series.
func (h *APIHandler) HandleTimeSeries(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	win := h.window(r)
	series, err := h.stats.TimeSeries(r.Context(), win)
	h.metrics.ObserveQuery("timeseries", start)
	if err != nil {
		slog.Error("failed to build time series", "timeframe", win.Timeframe, "error", err)
		writeJSON(w, http.StatusInternalServerError, jsonResponse{Error: "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"window": newWindowJSON(win),
		"series": series,
	})
}

// HandleDashboard returns everything the dashboard page shows.
func (h *APIHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tf := stats.ParseTimeframe(r.URL.Query().Get("timeframe"), h.stats.DefaultTimeframe())
	d, err := h.stats.Dashboard(r.Context(), tf)
	h.metrics.ObserveQuery("dashboard", start)
	h.metrics.ReportGenerated("api_dashboard", err)
	if err != nil {
		slog.Error("failed to build dashboard", "timeframe", tf, "error", err)
		writeJSON(w, http.StatusInternalServerError, jsonResponse{Error: "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"window":  newWindowJSON(d.Window),
		"summary": d.Summary,
		"totals":  d.Totals,
		"series":  d.Series,
		"rates":   d.Rates,
	})
}

// HandleListEvents returns one page of the filtered listing with its total.
//
// Query parameters:
//
//	status, search, from, to, timeframe  (same as the report page)
//	page   (1-based, default 1)
//	limit  (default REPORT_PAGE_SIZE, max 500)
func (h *APIHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	q, err := parseReportQuery(r, h.stats)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, jsonResponse{Error: err.Error()})
		return
	}

	limit := h.pageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, jsonResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxAPIPageSize)
	}

	total, err := h.stats.Count(r.Context(), q.Filter)
	if err != nil {
		slog.Error("failed to count events", "error", err)
		writeJSON(w, http.StatusInternalServerError, jsonResponse{Error: "internal server error"})
		return
	}

	// Pages past the end are empty.
	pages := totalPages(total, limit)
	out := []eventJSON{}
	if q.Page <= pages {
		events, err := h.stats.List(r.Context(), q.Filter, (q.Page-1)*limit, limit)
		if err != nil {
			slog.Error("failed to list events", "error", err)
			writeJSON(w, http.StatusInternalServerError, jsonResponse{Error: "internal server error"})
			return
		}
		loc := h.stats.Location()
		for _, e := range events {
			out = append(out, newEventJSON(e, loc))
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":  total,
		"page":   q.Page,
		"limit":  limit,
		"pages":  pages,
		"events": out,
	})
}

type rawEventJSON struct {
	PublicID          string          `json:"public_id"`
	EventType         string          `json:"event_type"`
	ProviderTimestamp *int64          `json:"provider_timestamp,omitempty"`
	Source            string          `json:"source,omitempty"`
	Details           json.RawMessage `json:"details,omitempty"`
	BlobKey           string          `json:"blob_key,omitempty"`
	ReceivedAt        int64           `json:"received_at"`
}

// HandleGetEvent returns one event with its audit rows.
func (h *APIHandler) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	d, err := h.stats.EventDetails(r.Context(), id)
	if err != nil {
		if errors.Is(err, stats.ErrEventNotFound) {
			writeJSON(w, http.StatusNotFound, jsonResponse{Error: "event not found"})
			return
		}
		slog.Error("failed to load event", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, jsonResponse{Error: "internal server error"})
		return
	}

	raw := make([]rawEventJSON, 0, len(d.Raw))
	for _, re := range d.Raw {
		item := rawEventJSON{
			PublicID:          re.PublicID.String(),
			EventType:         re.EventType,
			ProviderTimestamp: re.ProviderTimestamp,
			Source:            re.Source,
			BlobKey:           re.BlobKey,
			ReceivedAt:        re.ReceivedAt,
		}
		if json.Valid(re.Details) {
			item.Details = re.Details
		}
		raw = append(raw, item)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event":       newEventJSON(d.Event, h.stats.Location()),
		"category":    d.Category,
		"description": d.Description,
		"raw":         raw,
	})
}

// jsonResponse is the envelope for API error and acknowledgement responses.
type jsonResponse struct {
	OK    bool   `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

type labelCountJSON struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// HandleAnalytics returns the analytics breakdowns for the requested
// timeframe. An optional domain narrows the domain table.
func (h *APIHandler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tf := stats.ParseTimeframe(r.URL.Query().Get("timeframe"), h.stats.DefaultTimeframe())
	a, err := h.stats.Analytics(r.Context(), tf, r.URL.Query().Get("domain"))
	h.metrics.ObserveQuery("analytics", start)
	h.metrics.ReportGenerated("analytics", err)
	if err != nil {
		slog.Error("failed to build analytics", "timeframe", tf, "error", err)
		writeJSON(w, http.StatusInternalServerError, jsonResponse{Error: "internal server error"})
		return
	}

	bounces := make([]labelCountJSON, 0, len(a.BounceTypes))
	for _, b := range a.BounceTypes {
		bounces = append(bounces, labelCountJSON{Label: b.Label, Count: b.Count})
	}
	domains := a.Domains
	if domains == nil {
		domains = []stats.DomainStats{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"window":       newWindowJSON(a.Window),
		"domain":       a.Domain,
		"domains":      domains,
		"hours":        a.Hours,
		"weekdays":     a.Weekdays,
		"bounce_types": bounces,
		"engagement":   a.Engagement,
	})
}

type messageRecordsJSON struct {
	MessageID string   `json:"message_id"`
	Count     int64    `json:"count"`
	Statuses  []string `json:"statuses"`
}

type recipientStatusesJSON struct {
	Recipient string   `json:"recipient"`
	Records   int64    `json:"records"`
	Statuses  []string `json:"statuses"`
}

// HandleDataQuality returns repeated message ids, recipients with several
// statuses and distinct counts for the requested timeframe.
func (h *APIHandler) HandleDataQuality(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tf := stats.ParseTimeframe(r.URL.Query().Get("timeframe"), h.stats.DefaultTimeframe())
	q, err := h.stats.DataQuality(r.Context(), tf)
	h.metrics.ObserveQuery("data_quality", start)
	h.metrics.ReportGenerated("data_quality", err)
	if err != nil {
		slog.Error("failed to build data quality report", "timeframe", tf, "error", err)
		writeJSON(w, http.StatusInternalServerError, jsonResponse{Error: "internal server error"})
		return
	}

	repeated := make([]messageRecordsJSON, 0, len(q.RepeatedMessages))
	for _, m := range q.RepeatedMessages {
		repeated = append(repeated, messageRecordsJSON{MessageID: m.MessageID, Count: m.Count, Statuses: m.Statuses})
	}
	mixed := make([]recipientStatusesJSON, 0, len(q.MixedRecipients))
	for _, m := range q.MixedRecipients {
		mixed = append(mixed, recipientStatusesJSON{Recipient: m.Recipient, Records: m.Records, Statuses: m.Statuses})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"window":                newWindowJSON(q.Window),
		"summary":               q.Summary,
		"repeated_messages":     repeated,
		"mixed_recipients":      mixed,
		"records":               q.Distinct.Records,
		"recipients":            q.Distinct.Recipients,
		"message_ids":           q.Distinct.MessageIDs,
		"records_per_recipient": q.RecordsPerRecipient,
		"records_per_message":   q.RecordsPerMessage,
	})
}
