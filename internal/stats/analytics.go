package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/znz-systems/sesdash/internal/models"
)

var ErrAnalyticsUnavailable = errors.New("analytics not supported by the event store")

// Rows shown in the analytics tables.
const (
	TopDomains      = 20
	TopRepeatedRows = 20
)

// DomainStats summarises one recipient domain. Rates are relative to every
// row of the domain.
type DomainStats struct {
	Domain       string  `json:"domain"`
	Total        int64   `json:"total"`
	Delivered    int64   `json:"delivered"`
	Bounced      int64   `json:"bounced"`
	Opened       int64   `json:"opened"`
	DeliveryRate float64 `json:"delivery_rate"`
	BounceRate   float64 `json:"bounce_rate"`
}

// Distribution counts all rows and deliveries for one hour of the day or day
// of the week.
type Distribution struct {
	Label     string `json:"label"`
	Total     int64  `json:"total"`
	Delivered int64  `json:"delivered"`
}

// Engagement follows the funnel Send, Delivery, Open, Click. Each rate is
// relative to the previous step.
type Engagement struct {
	Sent         int64   `json:"sent"`
	Delivered    int64   `json:"delivered"`
	Opened       int64   `json:"opened"`
	Clicked      int64   `json:"clicked"`
	DeliveryRate float64 `json:"delivery_rate"`
	OpenRate     float64 `json:"open_rate"`
	ClickRate    float64 `json:"click_rate"`
}

// Analytics is everything the analytics page shows for one window.
type Analytics struct {
	Window      Window
	Domain      string
	Domains     []DomainStats
	Hours       []Distribution
	Weekdays    []Distribution
	BounceTypes []models.LabelCount
	Engagement  Engagement
}

// weekdayOrder starts the week on Monday.
var weekdayOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// Analytics breaks the window for timeframe down by recipient domain, local
// hour and weekday, bounce type and engagement funnel. domain narrows the
// domain table only.
func (s *Service) Analytics(ctx context.Context, timeframe int, domain string) (*Analytics, error) {
	if s.analytics == nil {
		return nil, ErrAnalyticsUnavailable
	}
	w := s.Window(timeframe)
	r := w.Range()
	domain = strings.TrimPrefix(strings.TrimSpace(domain), "@")

	domainRows, err := s.analytics.CountByDomainStatus(ctx, r, domain)
	if err != nil {
		return nil, fmt.Errorf("count by domain: %w", err)
	}
	slots, err := s.store.CountByStatusSlot(ctx, r, w.SlotWidth())
	if err != nil {
		return nil, fmt.Errorf("count by status slot: %w", err)
	}
	bounces, err := s.analytics.CountBounceTypes(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("count bounce types: %w", err)
	}
	summary, err := s.Summary(ctx, w)
	if err != nil {
		return nil, err
	}

	hours, weekdays := distributions(w, slots)
	return &Analytics{
		Window:      w,
		Domain:      domain,
		Domains:     domainStats(domainRows, TopDomains),
		Hours:       hours,
		Weekdays:    weekdays,
		BounceTypes: bounces,
		Engagement:  engagement(summary),
	}, nil
}

func domainStats(rows []models.DomainStatusCount, limit int) []DomainStats {
	byDomain := map[string]*DomainStats{}
	for _, r := range rows {
		d := byDomain[r.Domain]
		if d == nil {
			d = &DomainStats{Domain: r.Domain}
			byDomain[r.Domain] = d
		}
		d.Total += r.Count
		switch r.Status {
		case models.StatusDelivery:
			d.Delivered += r.Count
		case models.StatusBounce:
			d.Bounced += r.Count
		case models.StatusOpen:
			d.Opened += r.Count
		}
	}

	out := make([]DomainStats, 0, len(byDomain))
	for _, d := range byDomain {
		d.DeliveryRate = percent2(d.Delivered, d.Total)
		d.BounceRate = percent2(d.Bounced, d.Total)
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Domain < out[j].Domain
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// distributions folds slot counts into local hour-of-day and weekday
// totals. Slots never straddle a local hour at the window's slot width.
func distributions(w Window, slots []models.SlotCount) ([]Distribution, []Distribution) {
	hours := make([]Distribution, 24)
	for h := range hours {
		hours[h].Label = fmt.Sprintf("%02d:00", h)
	}
	weekdays := make([]Distribution, len(weekdayOrder))
	weekdayIndex := map[time.Weekday]int{}
	for i, d := range weekdayOrder {
		weekdays[i].Label = d.String()
		weekdayIndex[d] = i
	}

	loc := w.Location()
	for _, sc := range slots {
		t := time.Unix(sc.SlotStart, 0).In(loc)
		h := &hours[t.Hour()]
		d := &weekdays[weekdayIndex[t.Weekday()]]
		h.Total += sc.Count
		d.Total += sc.Count
		if sc.Status == models.StatusDelivery {
			h.Delivered += sc.Count
			d.Delivered += sc.Count
		}
	}
	return hours, weekdays
}

func engagement(summary map[string]int64) Engagement {
	e := Engagement{
		Sent:      summary[models.StatusSend],
		Delivered: summary[models.StatusDelivery],
		Opened:    summary[models.StatusOpen],
		Clicked:   summary[models.StatusClick],
	}
	e.DeliveryRate = percent2(e.Delivered, e.Sent)
	e.OpenRate = percent2(e.Opened, e.Delivered)
	e.ClickRate = percent2(e.Clicked, e.Opened)
	return e
}

// DataQuality lists repeated message ids and recipients with mixed statuses
// for one window, plus the row averages behind them.
type DataQuality struct {
	Window              Window
	Summary             map[string]int64
	RepeatedMessages    []models.MessageRecords
	MixedRecipients     []models.RecipientStatuses
	Distinct            models.DistinctCounts
	RecordsPerRecipient float64
	RecordsPerMessage   float64
}

func (s *Service) DataQuality(ctx context.Context, timeframe int) (*DataQuality, error) {
	if s.analytics == nil {
		return nil, ErrAnalyticsUnavailable
	}
	w := s.Window(timeframe)
	r := w.Range()

	summary, err := s.Summary(ctx, w)
	if err != nil {
		return nil, err
	}
	repeated, err := s.analytics.RepeatedMessageIDs(ctx, r, TopRepeatedRows)
	if err != nil {
		return nil, fmt.Errorf("repeated message ids: %w", err)
	}
	mixed, err := s.analytics.RecipientsWithManyStatuses(ctx, r, TopRepeatedRows)
	if err != nil {
		return nil, fmt.Errorf("recipients with many statuses: %w", err)
	}
	distinct, err := s.analytics.CountDistinct(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("count distinct: %w", err)
	}

	return &DataQuality{
		Window:              w,
		Summary:             summary,
		RepeatedMessages:    repeated,
		MixedRecipients:     mixed,
		Distinct:            distinct,
		RecordsPerRecipient: ratio(distinct.Records, distinct.Recipients),
		RecordsPerMessage:   ratio(distinct.Records, distinct.MessageIDs),
	}, nil
}

func ratio(n, d int64) float64 {
	return math.Round(float64(n)/float64(max(d, 1))*100) / 100
}
