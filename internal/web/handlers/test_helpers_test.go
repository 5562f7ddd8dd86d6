package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/znz-systems/sesdash/internal/ingest"
	"github.com/znz-systems/sesdash/internal/models"
	"github.com/znz-systems/sesdash/internal/pkg/clock"
	"github.com/znz-systems/sesdash/internal/stats"
	"github.com/znz-systems/sesdash/internal/web/render"
	"github.com/znz-systems/sesdash/templates"
)

// testNow is the fixed clock of every handler test: Saturday 2024-06-01 15:30 UTC.
var testNow = time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC)

// --- Shared mock event store used by every handler test ---

type mockEventStore struct {
	events []models.EmailEvent
	raw    map[int64][]models.RawEvent
	err    error
}

func newMockEventStore() *mockEventStore {
	return &mockEventStore{raw: make(map[int64][]models.RawEvent)}
}

func (m *mockEventStore) add(status, recipient, subject string, at time.Time) int64 {
	id := int64(len(m.events) + 1)
	m.events = append(m.events, models.EmailEvent{
		ID:         id,
		MessageID:  "msg-" + strings.ToLower(status),
		Recipient:  recipient,
		Subject:    subject,
		Status:     status,
		EventType:  status,
		OccurredAt: at.Unix(),
	})
	return id
}

func (m *mockEventStore) RecordEvent(_ context.Context, e models.EmailEventCreateParams, r models.RawEventCreateParams) (*models.EmailEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	ev := models.EmailEvent{
		ID:         int64(len(m.events) + 1),
		MessageID:  e.MessageID,
		Recipient:  e.Recipient,
		Subject:    e.Subject,
		Status:     e.Status,
		EventType:  e.EventType,
		OccurredAt: e.OccurredAt,
	}
	m.events = append(m.events, ev)
	m.raw[ev.ID] = append(m.raw[ev.ID], models.RawEvent{
		ID:                int64(len(m.raw) + 1),
		PublicID:          r.PublicID,
		EmailEventID:      ev.ID,
		MessageID:         r.MessageID,
		EventType:         r.EventType,
		ProviderTimestamp: r.ProviderTimestamp,
		Source:            r.Source,
		Destination:       r.Destination,
		Subject:           r.Subject,
		Details:           r.Details,
		BlobKey:           r.BlobKey,
		ReceivedAt:        r.ReceivedAt,
	})
	return &ev, nil
}

func (m *mockEventStore) GetEvent(_ context.Context, id int64) (*models.EmailEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, e := range m.events {
		if e.ID == id {
			e := e
			return &e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockEventStore) GetRawEventsByEventID(_ context.Context, id int64) ([]models.RawEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.raw[id], nil
}

func (m *mockEventStore) match(f models.EventFilter) []models.EmailEvent {
	search := strings.ToLower(f.Search)
	var out []models.EmailEvent
	for _, e := range m.events {
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.From != nil && e.OccurredAt < *f.From {
			continue
		}
		if f.To != nil && e.OccurredAt >= *f.To {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(e.Recipient), search) &&
			!strings.Contains(strings.ToLower(e.Subject), search) &&
			!strings.Contains(strings.ToLower(e.MessageID), search) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OccurredAt != out[j].OccurredAt {
			return out[i].OccurredAt > out[j].OccurredAt
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *mockEventStore) CountEvents(_ context.Context, f models.EventFilter) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return int64(len(m.match(f))), nil
}

func (m *mockEventStore) ListEvents(_ context.Context, f models.EventFilter, offset, limit int) ([]models.EmailEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	all := m.match(f)
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *mockEventStore) CountByStatus(_ context.Context, r models.TimeRange) ([]models.StatusCount, error) {
	if m.err != nil {
		return nil, m.err
	}
	counts := map[string]int64{}
	for _, e := range m.events {
		if r.Contains(e.OccurredAt) {
			counts[e.Status]++
		}
	}
	var out []models.StatusCount
	for s, n := range counts {
		out = append(out, models.StatusCount{Status: s, Count: n})
	}
	return out, nil
}

func (m *mockEventStore) CountByStatusSlot(_ context.Context, r models.TimeRange, width int64) ([]models.SlotCount, error) {
	if m.err != nil {
		return nil, m.err
	}
	type key struct {
		slot   int64
		status string
	}
	counts := map[key]int64{}
	for _, e := range m.events {
		if r.Contains(e.OccurredAt) {
			counts[key{e.OccurredAt - e.OccurredAt%width, e.Status}]++
		}
	}
	var out []models.SlotCount
	for k, n := range counts {
		out = append(out, models.SlotCount{SlotStart: k.slot, Status: k.status, Count: n})
	}
	return out, nil
}

func (m *mockEventStore) inRange(r models.TimeRange) []models.EmailEvent {
	var out []models.EmailEvent
	for _, e := range m.events {
		if r.Contains(e.OccurredAt) {
			out = append(out, e)
		}
	}
	return out
}

func (m *mockEventStore) CountByDomainStatus(_ context.Context, r models.TimeRange, domain string) ([]models.DomainStatusCount, error) {
	if m.err != nil {
		return nil, m.err
	}
	counts := map[[2]string]int64{}
	for _, e := range m.inRange(r) {
		rcpt := strings.ToLower(e.Recipient)
		if domain != "" && !strings.Contains(rcpt, "@"+strings.ToLower(domain)) {
			continue
		}
		_, d, _ := strings.Cut(rcpt, "@")
		counts[[2]string{d, e.Status}]++
	}
	var out []models.DomainStatusCount
	for k, n := range counts {
		out = append(out, models.DomainStatusCount{Domain: k[0], Status: k[1], Count: n})
	}
	return out, nil
}

func (m *mockEventStore) CountBounceTypes(_ context.Context, r models.TimeRange) ([]models.LabelCount, error) {
	if m.err != nil {
		return nil, m.err
	}
	counts := map[string]int64{}
	for _, e := range m.inRange(r) {
		if e.Status != models.StatusBounce {
			continue
		}
		label := "Undetermined"
		for _, raw := range m.raw[e.ID] {
			var d struct {
				BounceType string `json:"bounceType"`
			}
			if json.Unmarshal(raw.Details, &d) == nil && d.BounceType != "" {
				label = d.BounceType
			}
		}
		counts[label]++
	}
	var out []models.LabelCount
	for l, n := range counts {
		out = append(out, models.LabelCount{Label: l, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (m *mockEventStore) RepeatedMessageIDs(_ context.Context, r models.TimeRange, limit int) ([]models.MessageRecords, error) {
	if m.err != nil {
		return nil, m.err
	}
	byID := map[string]*models.MessageRecords{}
	var order []string
	for _, e := range m.inRange(r) {
		rec := byID[e.MessageID]
		if rec == nil {
			rec = &models.MessageRecords{MessageID: e.MessageID}
			byID[e.MessageID] = rec
			order = append(order, e.MessageID)
		}
		rec.Count++
		rec.Statuses = append(rec.Statuses, e.Status)
	}
	var out []models.MessageRecords
	for _, id := range order {
		if byID[id].Count > 1 && (limit <= 0 || len(out) < limit) {
			out = append(out, *byID[id])
		}
	}
	return out, nil
}

func (m *mockEventStore) RecipientsWithManyStatuses(_ context.Context, r models.TimeRange, limit int) ([]models.RecipientStatuses, error) {
	if m.err != nil {
		return nil, m.err
	}
	records := map[string]int64{}
	statuses := map[string]map[string]bool{}
	var order []string
	for _, e := range m.inRange(r) {
		if statuses[e.Recipient] == nil {
			statuses[e.Recipient] = map[string]bool{}
			order = append(order, e.Recipient)
		}
		records[e.Recipient]++
		statuses[e.Recipient][e.Status] = true
	}
	var out []models.RecipientStatuses
	for _, rcpt := range order {
		if len(statuses[rcpt]) < 2 || (limit > 0 && len(out) >= limit) {
			continue
		}
		rs := models.RecipientStatuses{Recipient: rcpt, Records: records[rcpt]}
		for s := range statuses[rcpt] {
			rs.Statuses = append(rs.Statuses, s)
		}
		sort.Strings(rs.Statuses)
		out = append(out, rs)
	}
	return out, nil
}

func (m *mockEventStore) CountDistinct(_ context.Context, r models.TimeRange) (models.DistinctCounts, error) {
	if m.err != nil {
		return models.DistinctCounts{}, m.err
	}
	rcpts, ids := map[string]bool{}, map[string]bool{}
	var c models.DistinctCounts
	for _, e := range m.inRange(r) {
		c.Records++
		rcpts[e.Recipient] = true
		ids[e.MessageID] = true
	}
	c.Recipients, c.MessageIDs = int64(len(rcpts)), int64(len(ids))
	return c, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(context.Context) error { return m.err }

var errDBDown = errors.New("db down")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStats(st *mockEventStore) *stats.Service {
	return stats.NewService(st, clock.NewMockClock(testNow), stats.Options{
		Location:         time.UTC,
		DefaultTimeframe: 7,
		Logger:           discardLogger(),
	})
}

func newTestRenderer() *render.Renderer {
	return render.NewRenderer(templates.FS, time.UTC)
}

// setupTestRouter mounts every handler on a bare chi router, without auth or
// rate limiting.
func setupTestRouter(st *mockEventStore) *chi.Mux {
	svc := newTestStats(st)
	renderer := newTestRenderer()
	ingestSvc := ingest.NewService(st, ingest.Options{
		Clock:  clock.NewMockClock(testNow),
		Logger: discardLogger(),
	})

	dashboard := NewDashboardHandler(svc, renderer, nil, false)
	report := NewReportHandler(svc, renderer, nil, 2, false)
	api := NewAPIHandler(svc, nil, 2)
	analytics := NewAnalyticsHandler(svc, renderer, nil, false)
	webhook := NewWebhookHandler(ingestSvc, 1024)

	r := chi.NewRouter()
	r.Get("/", dashboard.ShowDashboard)
	r.Get("/report", report.ShowReport)
	r.Get("/report/events/{id}", report.ShowEvent)
	r.Get("/report/export.csv", report.HandleExportCSV)
	r.Get("/analytics", analytics.ShowAnalytics)
	r.Get("/analytics/data", analytics.ShowDataQuality)
	r.Post("/webhooks/ses", webhook.HandleSES)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/summary", api.HandleSummary)
		r.Get("/timeseries", api.HandleTimeSeries)
		r.Get("/dashboard", api.HandleDashboard)
		r.Get("/events", api.HandleListEvents)
		r.Get("/events/{id}", api.HandleGetEvent)
		r.Get("/analytics", api.HandleAnalytics)
		r.Get("/data-quality", api.HandleDataQuality)
	})
	return r
}

// seedToday stores a send, delivery and open for one message earlier today
// and a bounce two days ago.
func seedToday(st *mockEventStore) {
	st.add(models.StatusSend, "alice@example.com", "Welcome", time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	st.add(models.StatusDelivery, "alice@example.com", "Welcome", time.Date(2024, 6, 1, 9, 1, 0, 0, time.UTC))
	st.add(models.StatusOpen, "alice@example.com", "Welcome", time.Date(2024, 6, 1, 10, 5, 0, 0, time.UTC))
	st.add(models.StatusBounce, "bob@example.org", "Invoice 42", time.Date(2024, 5, 30, 8, 0, 0, 0, time.UTC))
}

func newRawEvent(eventID int64, details string) models.RawEvent {
	ts := time.Date(2024, 6, 1, 8, 59, 58, 0, time.UTC).Unix()
	return models.RawEvent{
		ID:                1,
		PublicID:          uuid.MustParse("0b8f1a52-2d3c-4b59-9d0e-6f3b0c9c1a11"),
		EmailEventID:      eventID,
		EventType:         models.StatusBounce,
		ProviderTimestamp: &ts,
		Source:            "noreply@example.org",
		Details:           []byte(details),
		ReceivedAt:        testNow.Unix(),
	}
}
