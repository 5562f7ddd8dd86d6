package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/znz-systems/sesdash/internal/models"
	"github.com/znz-systems/sesdash/internal/stats"
)

const dateLayout = "2006-01-02"

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// reportQuery is the parsed filter state of the report, export and listing
// endpoints.
type reportQuery struct {
	Status    string
	Search    string
	From      string
	To        string
	Timeframe string
	Page      int

	Filter models.EventFilter
	Window *stats.Window
}

// parseReportQuery reads status, search, from, to, timeframe and page. from
// and to are local dates; to includes the whole day. With no dates, an
// explicit timeframe limits the listing to that dashboard window.
func parseReportQuery(r *http.Request, svc *stats.Service) (reportQuery, error) {
	qp := r.URL.Query()
	q := reportQuery{
		Status:    strings.TrimSpace(qp.Get("status")),
		Search:    strings.TrimSpace(qp.Get("search")),
		From:      strings.TrimSpace(qp.Get("from")),
		To:        strings.TrimSpace(qp.Get("to")),
		Timeframe: strings.TrimSpace(qp.Get("timeframe")),
		Page:      1,
	}
	if p, err := strconv.Atoi(qp.Get("page")); err == nil && p > 1 {
		q.Page = p
	}

	q.Filter.Status = q.Status
	q.Filter.Search = q.Search

	loc := svc.Location()
	if q.From != "" {
		t, err := time.ParseInLocation(dateLayout, q.From, loc)
		if err != nil {
			return q, fmt.Errorf("invalid from date %q", q.From)
		}
		from := t.Unix()
		q.Filter.From = &from
	}
	if q.To != "" {
		t, err := time.ParseInLocation(dateLayout, q.To, loc)
		if err != nil {
			return q, fmt.Errorf("invalid to date %q", q.To)
		}
		y, m, d := t.Date()
		to := time.Date(y, m, d+1, 0, 0, 0, 0, loc).Unix()
		q.Filter.To = &to
	}
	if q.Filter.From != nil && q.Filter.To != nil && *q.Filter.From >= *q.Filter.To {
		return q, fmt.Errorf("from date %s is after to date %s", q.From, q.To)
	}

	if q.From == "" && q.To == "" && q.Timeframe != "" {
		w := svc.Window(stats.ParseTimeframe(q.Timeframe, svc.DefaultTimeframe()))
		q.Window = &w
		wf := w.Filter()
		q.Filter.From, q.Filter.To = wf.From, wf.To
	}
	return q, nil
}

// values encodes the filter state for pagination and export links, leaving
// out page.
func (q reportQuery) values() url.Values {
	v := url.Values{}
	for k, val := range map[string]string{
		"status":    q.Status,
		"search":    q.Search,
		"from":      q.From,
		"to":        q.To,
		"timeframe": q.Timeframe,
	} {
		if val != "" {
			v.Set(k, val)
		}
	}
	return v
}

func totalPages(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 1
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
