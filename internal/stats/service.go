package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/znz-systems/sesdash/internal/models"
	"github.com/znz-systems/sesdash/internal/pkg/clock"
	"github.com/znz-systems/sesdash/internal/store"
)

var ErrEventNotFound = errors.New("event not found")

// SlotSeconds is the widest grouping of the time-series query. Current UTC
// offsets are all multiples of it; see Window.SlotWidth for the rest.
const SlotSeconds = 15 * 60

type Options struct {
	Location         *time.Location
	DefaultTimeframe int
	Logger           *slog.Logger
}

// Service answers the dashboard, report and API read paths.
type Service struct {
	store            store.EventStore
	analytics        store.AnalyticsStore
	clock            clock.Clock
	loc              *time.Location
	defaultTimeframe int
	logger           *slog.Logger
}

func NewService(s store.EventStore, c clock.Clock, opts Options) *Service {
	if c == nil {
		c = clock.NewRealClock()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// Stores without the analytics queries leave the analytics views
	// unavailable.
	analytics, _ := s.(store.AnalyticsStore)
	return &Service{
		store:            s,
		analytics:        analytics,
		clock:            c,
		loc:              loc,
		defaultTimeframe: NormalizeTimeframe(opts.DefaultTimeframe),
		logger:           logger,
	}
}

func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) DefaultTimeframe() int { return s.defaultTimeframe }

// Now returns the current time in the service's location.
func (s *Service) Now() time.Time { return s.clock.Now().In(s.loc) }

// Window snapshots the clock once and resolves the window for timeframe.
func (s *Service) Window(timeframe int) Window {
	return ResolveWindow(timeframe, s.clock.Now(), s.loc)
}

// Summary counts events per status inside w. Statuses with no events are
// absent from the map.
func (s *Service) Summary(ctx context.Context, w Window) (map[string]int64, error) {
	rows, err := s.store.CountByStatus(ctx, w.Range())
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		if r.Count == 0 {
			continue
		}
		if !models.IsKnownStatus(r.Status) {
			s.logger.Warn("unknown status in summary", "status", r.Status, "count", r.Count)
		}
		out[r.Status] += r.Count
	}
	return out, nil
}

// TimeSeries holds per-bucket category counts. Every slice has len(Buckets).
type TimeSeries struct {
	Bucketing string   `json:"bucketing"`
	Buckets   []string `json:"buckets"`
	Sent      []int64  `json:"sent"`
	Delivered []int64  `json:"delivered"`
	Bounced   []int64  `json:"bounced"`
	Opened    []int64  `json:"opened"`
}

func newTimeSeries(w Window) *TimeSeries {
	n := len(w.Labels)
	buckets := make([]string, n)
	copy(buckets, w.Labels)
	return &TimeSeries{
		Bucketing: w.Bucketing.String(),
		Buckets:   buckets,
		Sent:      make([]int64, n),
		Delivered: make([]int64, n),
		Bounced:   make([]int64, n),
		Opened:    make([]int64, n),
	}
}

func (ts *TimeSeries) add(category string, idx int, n int64) {
	switch category {
	case CategorySent:
		ts.Sent[idx] += n
	case CategoryDelivered:
		ts.Delivered[idx] += n
	case CategoryBounced:
		ts.Bounced[idx] += n
	case CategoryOpened:
		ts.Opened[idx] += n
	}
}

// Totals sums each series.
func (ts *TimeSeries) Totals() CategoryTotals {
	var t CategoryTotals
	for i := range ts.Buckets {
		t.Sent += ts.Sent[i]
		t.Delivered += ts.Delivered[i]
		t.Bounced += ts.Bounced[i]
		t.Opened += ts.Opened[i]
	}
	return t
}

// TimeSeries buckets the events of w by hour or day and category.
func (s *Service) TimeSeries(ctx context.Context, w Window) (*TimeSeries, error) {
	rows, err := s.store.CountByStatusSlot(ctx, w.Range(), w.SlotWidth())
	if err != nil {
		return nil, fmt.Errorf("count by status slot: %w", err)
	}

	ts := newTimeSeries(w)
	unknown := map[string]int64{}
	for _, r := range rows {
		category, ok := CategoryOf(r.Status)
		if !ok {
			if !models.IsKnownStatus(r.Status) {
				unknown[r.Status] += r.Count
			}
			continue
		}
		idx, ok := w.BucketIndex(r.SlotStart)
		if !ok {
			s.logger.Warn("time series slot outside window; skipped",
				"slot", r.SlotStart, "status", r.Status, "count", r.Count,
				"from", w.Range().From, "to", w.Range().To)
			continue
		}
		ts.add(category, idx, r.Count)
	}
	for status, n := range unknown {
		s.logger.Warn("unknown status in time series", "status", status, "count", n)
	}
	return ts, nil
}

// Dashboard is everything the dashboard page shows for one window.
type Dashboard struct {
	Window  Window
	Summary map[string]int64
	Totals  CategoryTotals
	Series  *TimeSeries
	Rates   Rates
}

// Dashboard resolves one window and runs every aggregation against it.
func (s *Service) Dashboard(ctx context.Context, timeframe int) (*Dashboard, error) {
	w := s.Window(timeframe)

	summary, err := s.Summary(ctx, w)
	if err != nil {
		return nil, err
	}
	series, err := s.TimeSeries(ctx, w)
	if err != nil {
		return nil, err
	}

	totals := TotalsFromSummary(summary)
	return &Dashboard{
		Window:  w,
		Summary: summary,
		Totals:  totals,
		Series:  series,
		Rates:   ComputeRates(totals),
	}, nil
}

func (s *Service) Count(ctx context.Context, f models.EventFilter) (int64, error) {
	n, err := s.store.CountEvents(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// List returns events matching f, newest first. limit 0 means no limit.
func (s *Service) List(ctx context.Context, f models.EventFilter, offset, limit int) ([]models.EmailEvent, error) {
	events, err := s.store.ListEvents(ctx, f, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// EventDetails is one event with its raw audit rows.
type EventDetails struct {
	Event       models.EmailEvent
	Category    string
	Description string
	Raw         []models.RawEvent
}

func (s *Service) EventDetails(ctx context.Context, id int64) (*EventDetails, error) {
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	raw, err := s.store.GetRawEventsByEventID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get raw events: %w", err)
	}

	category, _ := CategoryOf(e.Status)
	return &EventDetails{
		Event:       *e,
		Category:    category,
		Description: StatusDescription(e.Status),
		Raw:         raw,
	}, nil
}
