package stats

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/znz-systems/sesdash/internal/models"
)

// Bucketing is the granularity of a time series.
type Bucketing int

const (
	Hourly Bucketing = iota
	Daily
)

func (b Bucketing) String() string {
	if b == Daily {
		return "day"
	}
	return "hour"
}

// FallbackTimeframe is used for any timeframe outside AllowedTimeframes.
const FallbackTimeframe = 7

// AllowedTimeframes are the selectable dashboard windows in days. Zero means
// today by the hour.
var AllowedTimeframes = []int{0, 3, 5, 7}

// NormalizeTimeframe maps days onto AllowedTimeframes.
func NormalizeTimeframe(days int) int {
	for _, d := range AllowedTimeframes {
		if d == days {
			return days
		}
	}
	return FallbackTimeframe
}

// ParseTimeframe reads a timeframe query value. Empty input yields def.
func ParseTimeframe(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NormalizeTimeframe(def)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return FallbackTimeframe
	}
	return NormalizeTimeframe(n)
}

// Window is the resolved aggregation window of one page view.
type Window struct {
	Timeframe int
	Start     time.Time
	End       time.Time
	Bucketing Bucketing
	Labels    []string

	loc *time.Location
}

// ResolveWindow builds the window for timeframeDays ending at now. Day
// boundaries are local midnights in loc.
func ResolveWindow(timeframeDays int, now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	days := NormalizeTimeframe(timeframeDays)
	now = now.In(loc)
	y, m, d := now.Date()

	w := Window{Timeframe: days, End: now, loc: loc}

	if days == 0 {
		w.Start = time.Date(y, m, d, 0, 0, 0, 0, loc)
		w.Bucketing = Hourly
		w.Labels = make([]string, 24)
		for h := 0; h < 24; h++ {
			w.Labels[h] = fmt.Sprintf("%02d:00", h)
		}
		return w
	}

	w.Start = time.Date(y, m, d-(days-1), 0, 0, 0, 0, loc)
	w.Bucketing = Daily
	w.Labels = make([]string, days)
	for i := 0; i < days; i++ {
		w.Labels[i] = time.Date(y, m, d-(days-1)+i, 0, 0, 0, 0, loc).Format("2006-01-02")
	}
	return w
}

// Location returns the zone the window was resolved in.
func (w Window) Location() *time.Location {
	if w.loc == nil {
		return time.Local
	}
	return w.loc
}

// Range is the half-open epoch-second range covering [Start, End].
func (w Window) Range() models.TimeRange {
	return models.TimeRange{From: w.Start.Unix(), To: w.End.Unix() + 1}
}

// Filter returns a listing filter covering exactly the window.
func (w Window) Filter() models.EventFilter {
	r := w.Range()
	return models.EventFilter{From: &r.From, To: &r.To}
}

// BucketIndex maps an epoch second to its bucket. ok is false when ts is
// outside the window.
func (w Window) BucketIndex(ts int64) (int, bool) {
	if !w.Range().Contains(ts) {
		return 0, false
	}
	t := time.Unix(ts, 0).In(w.Location())

	if w.Bucketing == Hourly {
		return t.Hour(), true
	}

	idx := civilDays(w.Start, t)
	if idx < 0 || idx >= len(w.Labels) {
		return 0, false
	}
	return idx, true
}

// SlotWidth is the largest divisor of SlotSeconds that every UTC offset in
// the window is a multiple of. Bucket edges fall on slot edges at that width,
// so historical offsets such as +00:19:32 still bucket exactly.
func (w Window) SlotWidth() int64 {
	width := int64(SlotSeconds)
	for t := w.Start; !t.After(w.End) && width > 1; t = t.Add(time.Hour) {
		_, off := t.In(w.Location()).Zone()
		width = gcd(width, int64(off))
	}
	_, off := w.End.In(w.Location()).Zone()
	return gcd(width, int64(off))
}

func gcd(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// civilDays counts calendar days from a to b ignoring DST length changes.
func civilDays(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
